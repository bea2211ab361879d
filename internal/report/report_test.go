package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/change-monitor/internal/model"
)

func ptr[T any](v T) *T { return &v }

var checked = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// sampleRuns covers a changed entity with one significant page, a stable
// entity and an entity with a failed fetch.
func sampleRuns() []*model.Run {
	acme := []model.URLResult{
		{
			URL: "https://acme.com/pricing", Status: model.URLStatusSuccess,
			PreviousHash: "old", CurrentHash: "new",
			ChangeMagnitude: ptr(42.5), Threshold: 20, IsSignificant: true,
			Score:            &model.ScoreResult{Score: 9, Method: model.ScoreMethodAI, Reasoning: "New enterprise tier"},
			CriticalKeywords: []string{"pricing"},
			CheckedAt:        checked,
		},
		{URL: "https://acme.com/blog", Status: model.URLStatusSuccess, ChangeMagnitude: ptr(3.0), Threshold: 20,
			Score: &model.ScoreResult{Score: 5, Method: model.ScoreMethodRuleBased}, CheckedAt: checked},
	}
	globex := []model.URLResult{
		{URL: "https://globex.com", Status: model.URLStatusSuccess, ChangeMagnitude: ptr(0.0), CheckedAt: checked},
	}
	initech := []model.URLResult{
		{URL: "https://initech.com", Status: model.URLStatusError, Error: "fetch https://initech.com: HTTP 503", CheckedAt: checked},
	}
	mk := func(entity string, results []model.URLResult) *model.Run {
		r := &model.Run{EntityID: entity, Results: results}
		r.Summary = model.RunSummary{TotalURLs: len(results)}
		for _, res := range results {
			if res.Status == model.URLStatusError {
				r.Summary.Errors++
			}
			if res.Changed() {
				r.Summary.Changed++
			}
		}
		return r
	}
	return []*model.Run{mk("acme", acme), mk("globex", globex), mk("initech", initech)}
}

type stubPublisher struct {
	name  string
	err   error
	calls int
}

func (s *stubPublisher) Name() string { return s.name }

func (s *stubPublisher) Publish(context.Context, []*model.Run) error {
	s.calls++
	return s.err
}

func TestDispatch_ContinuesPastFailures(t *testing.T) {
	a := &stubPublisher{name: "a", err: errors.New("smtp down")}
	b := &stubPublisher{name: "b"}
	c := &stubPublisher{name: "c", err: errors.New("timeout")}

	failed := Dispatch(context.Background(), []Publisher{a, b, c}, sampleRuns())
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.calls)

	assert.Equal(t, 0, Dispatch(context.Background(), nil, nil))
}

func TestChangeType(t *testing.T) {
	tests := map[string]string{
		"https://acme.com/Pricing":       "Pricing Strategy",
		"https://acme.com/blog/post":     "Thought Leadership",
		"https://acme.com/products/x":    "Product Update",
		"https://acme.com/features":      "Feature Enhancement",
		"https://acme.com/news/2026":     "Public Announcement",
		"https://acme.com/api/reference": "API/Technical Update",
		"https://acme.com/about":         "General Content Update",
	}
	for url, want := range tests {
		assert.Equal(t, want, ChangeType(url), url)
	}
}

func TestAlertLevel(t *testing.T) {
	assert.Equal(t, "Low", AlertLevel(nil))
	assert.Equal(t, "High", AlertLevel(&model.ScoreResult{Score: 8}))
	assert.Equal(t, "Medium", AlertLevel(&model.ScoreResult{Score: 6}))
	assert.Equal(t, "Low", AlertLevel(&model.ScoreResult{Score: 5}))
}

func TestBuildDigest(t *testing.T) {
	d := BuildDigest(sampleRuns(), checked)

	assert.Equal(t, 3, d.Entities)
	assert.Equal(t, 2, d.TotalChanges)
	assert.False(t, d.Quiet())

	if assert.Len(t, d.Significant, 1) {
		c := d.Significant[0]
		assert.Equal(t, "acme", c.EntityID)
		assert.Equal(t, 42.5, c.Magnitude)
		assert.Equal(t, "High", c.Level)
		assert.Equal(t, "Pricing Strategy", c.ChangeType)
	}
	if assert.Len(t, d.WithChanges, 1) {
		assert.Equal(t, "acme", d.WithChanges[0].EntityID)
	}
	if assert.Len(t, d.Stable, 1) {
		assert.Equal(t, "globex", d.Stable[0].EntityID)
	}
	if assert.Len(t, d.WithErrors, 1) {
		assert.Equal(t, "initech", d.WithErrors[0].EntityID)
	}
}

func TestBuildDigest_Ordering(t *testing.T) {
	runs := []*model.Run{
		{EntityID: "b", Summary: model.RunSummary{TotalURLs: 2, Changed: 1}, Results: []model.URLResult{
			{URL: "https://b.com", IsSignificant: true, ChangeMagnitude: ptr(90.0)},
		}},
		{EntityID: "a", Summary: model.RunSummary{TotalURLs: 2, Changed: 1}, Results: []model.URLResult{
			{URL: "https://a.com", IsSignificant: true, ChangeMagnitude: ptr(10.0), Score: &model.ScoreResult{Score: 9}},
		}},
		{EntityID: "c", Summary: model.RunSummary{TotalURLs: 2, Changed: 2}},
		nil,
	}
	d := BuildDigest(runs, checked)

	assert.Equal(t, []string{"c", "a", "b"}, []string{d.WithChanges[0].EntityID, d.WithChanges[1].EntityID, d.WithChanges[2].EntityID})
	assert.Equal(t, "https://a.com", d.Significant[0].URL, "scored change ranks above unscored")
}

func TestBuildDigest_Quiet(t *testing.T) {
	d := BuildDigest([]*model.Run{{EntityID: "acme", Summary: model.RunSummary{TotalURLs: 3, Successes: 3}}}, checked)
	assert.True(t, d.Quiet())
}
