package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/change-monitor/internal/model"
)

func content(text string) model.ExtractedContent {
	return model.ExtractedContent{FullText: text}
}

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"both empty", "", "", 0},
		{"identical", "pricing", "pricing", 0},
		{"insert all", "", "abc", 3},
		{"delete all", "abc", "", 3},
		{"kitten sitting", "kitten", "sitting", 3},
		{"flaw lawn", "flaw", "lawn", 2},
		{"suffix append", "The quick brown fox", "The quick brown fox jumps", 6},
		{"code points not bytes", "café", "cafe", 1},
		{"cjk", "日本語", "日本人", 1},
		{"symmetric", "sitting", "kitten", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func TestMagnitude_FirstObservation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100.0, Magnitude(nil, content("")))
	assert.Equal(t, 100.0, Magnitude(nil, content("anything")))
}

func TestMagnitude_BothEmpty(t *testing.T) {
	t.Parallel()

	prev := content("")
	assert.Equal(t, 0.0, Magnitude(&prev, content("")))
}

func TestMagnitude_Examples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		prev, curr string
		want       float64
	}{
		{"identical", "same text", "same text", 0},
		{"six edits over 25", "The quick brown fox", "The quick brown fox jumps", 24.00},
		{"six edits over 26", "The quick brown fox.", "The quick brown fox. jumps", 23.08},
		{"total replacement", "abc", "xyz", 100},
		{"empty to text", "", "hello", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prev := content(tt.prev)
			assert.Equal(t, tt.want, Magnitude(&prev, content(tt.curr)))
		})
	}
}

func TestMagnitude_BoundsAndDeterminism(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "a", "hello world", strings.Repeat("ab", 200), "über straße", "✓ done"}
	for _, a := range inputs {
		for _, b := range inputs {
			prev := content(a)
			m := Magnitude(&prev, content(b))
			assert.GreaterOrEqual(t, m, 0.0)
			assert.LessOrEqual(t, m, 100.0)
			assert.Equal(t, m, Magnitude(&prev, content(b)))
		}
	}
}
