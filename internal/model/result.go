package model

import "time"

// ScoreMethod identifies how a relevance score was produced.
type ScoreMethod string

const (
	ScoreMethodAI        ScoreMethod = "ai"
	ScoreMethodRuleBased ScoreMethod = "rule-based"
)

// ScoreResult is a 0-10 relevance score for one change.
type ScoreResult struct {
	Score           int         `json:"score"`
	Reasoning       string      `json:"reasoning"`
	Method          ScoreMethod `json:"method"`
	Error           string      `json:"error,omitempty"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
}

// URLStatus is the outcome of one URL pipeline.
type URLStatus string

const (
	URLStatusSuccess URLStatus = "success"
	URLStatusError   URLStatus = "error"
)

// URLResult is the per-URL record emitted by a monitoring run. It is
// immutable once emitted.
type URLResult struct {
	URL              string            `json:"url"`
	Status           URLStatus         `json:"status"`
	PreviousHash     string            `json:"previous_hash,omitempty"`
	CurrentHash      string            `json:"current_hash,omitempty"`
	ChangeMagnitude  *float64          `json:"change_magnitude"`
	Threshold        float64           `json:"threshold"`
	Score            *ScoreResult      `json:"score"`
	IsSignificant    bool              `json:"is_significant"`
	CriticalKeywords []string          `json:"critical_keywords,omitempty"`
	Extracted        *ExtractedContent `json:"extracted,omitempty"`
	Error            string            `json:"error,omitempty"`
	CheckedAt        time.Time         `json:"checked_at"`
}

// Changed reports whether the URL has a positive change magnitude.
func (r URLResult) Changed() bool {
	return r.ChangeMagnitude != nil && *r.ChangeMagnitude > 0
}

// RunSummary aggregates the URL results of one run.
type RunSummary struct {
	TotalURLs        int      `json:"total_urls"`
	Successes        int      `json:"successes"`
	Errors           int      `json:"errors"`
	Changed          int      `json:"changed"`
	Significant      int      `json:"significant"`
	MaxScore         *int     `json:"max_score"`
	AverageMagnitude *float64 `json:"average_magnitude"`
}

// Run is one monitoring pass over a single target.
type Run struct {
	ID         string      `json:"id"`
	EntityID   string      `json:"entity_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Results    []URLResult `json:"results"`
	Summary    RunSummary  `json:"summary"`
}

// SignificantResults returns the results flagged as significant.
func (r *Run) SignificantResults() []URLResult {
	var out []URLResult
	for _, res := range r.Results {
		if res.IsSignificant {
			out = append(out, res)
		}
	}
	return out
}

// ErrorRate returns the fraction of URLs that failed, or 0 for an empty run.
func (s RunSummary) ErrorRate() float64 {
	if s.TotalURLs == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.TotalURLs)
}
