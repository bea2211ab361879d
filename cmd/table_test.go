package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/change-monitor/internal/model"
)

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"A", "B"}, [][]string{{"one"}, {"two", "2"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two")
	assert.Contains(t, out, "╭")
}

func TestResultsTable(t *testing.T) {
	mag := 24.0
	runs := []*model.Run{{
		EntityID: "acme",
		Results: []model.URLResult{
			{URL: "https://acme.com/pricing", Status: model.URLStatusSuccess, ChangeMagnitude: &mag, Threshold: 20,
				Score: &model.ScoreResult{Score: 9, Method: model.ScoreMethodAI}, IsSignificant: true},
			{URL: "https://acme.com/down", Status: model.URLStatusError, Error: "fetch https://acme.com/down: HTTP 500"},
		},
	}}
	out := resultsTable(runs)
	assert.Contains(t, out, "24.00%")
	assert.Contains(t, out, "9 (ai)")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "HTTP 500")
}

func TestRunsTable(t *testing.T) {
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	score := 7
	out := runsTable([]model.Run{{
		ID: "0123456789abcdef", EntityID: "acme",
		StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
		Summary: model.RunSummary{TotalURLs: 3, Errors: 1, Changed: 2, Significant: 1, MaxScore: &score},
	}})
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "2026-04-01 09:00")
	assert.Contains(t, out, "1.5s")
}

func TestWriteRuns_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRuns(&buf, []*model.Run{{EntityID: "acme"}}, "json"))

	var got []model.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "acme", got[0].EntityID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncateID("abc"))
}
