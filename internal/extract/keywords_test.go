package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "", 20, []string{}},
		{"ranked by frequency then alpha", "beta alpha beta gamma alpha beta", 20, []string{"beta", "alpha", "gamma"}},
		{"lowercased and deduplicated", "Pricing PRICING pricing plans", 20, []string{"pricing", "plans"}},
		{"short tokens and stopwords dropped", "the an ox and cat with dog", 20, []string{"cat", "dog"}},
		{"digits split tokens", "v2release 2024 launch", 20, []string{"launch", "release"}},
		{"limit applied", "aaa bbb ccc ddd", 2, []string{"aaa", "bbb"}},
		{"zero limit", "aaa bbb", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Keywords(tt.text, tt.limit)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", CleanText("  a\n\tb  c  "))
	assert.Equal(t, "zerowidth", CleanText("zero\u200bwidth\ufeff"))
	assert.Equal(t, "\u00e9", CleanText("e\u0301"))
}
