package monitoring

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/change-monitor/internal/store"
)

// collectLimit caps the runs read for one snapshot.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of monitoring health.
type MetricsSnapshot struct {
	Runs     int `json:"runs"`
	Entities int `json:"entities"`

	// URL checks within the lookback window.
	TotalURLs   int     `json:"total_urls"`
	Successes   int     `json:"successes"`
	Errors      int     `json:"errors"`
	Changed     int     `json:"changed"`
	Significant int     `json:"significant"`
	ErrorRate   float64 `json:"error_rate"`

	MaxScore         *int     `json:"max_score"`
	AverageMagnitude *float64 `json:"average_magnitude"`

	LastRunAt     time.Time `json:"last_run_at"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector aggregates the run log.
type Collector struct {
	runs store.RunLog
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs store.RunLog) *Collector {
	return &Collector{runs: runs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	entities := make(map[string]bool)
	var magSum float64
	var magCount int
	for _, r := range runs {
		snap.Runs++
		entities[r.EntityID] = true
		if r.StartedAt.After(snap.LastRunAt) {
			snap.LastRunAt = r.StartedAt
		}

		s := r.Summary
		snap.TotalURLs += s.TotalURLs
		snap.Successes += s.Successes
		snap.Errors += s.Errors
		snap.Changed += s.Changed
		snap.Significant += s.Significant
		if s.MaxScore != nil && (snap.MaxScore == nil || *s.MaxScore > *snap.MaxScore) {
			v := *s.MaxScore
			snap.MaxScore = &v
		}
		for _, res := range r.Results {
			if res.ChangeMagnitude != nil {
				magSum += *res.ChangeMagnitude
				magCount++
			}
		}
	}

	snap.Entities = len(entities)
	if snap.TotalURLs > 0 {
		snap.ErrorRate = float64(snap.Errors) / float64(snap.TotalURLs)
	}
	if magCount > 0 {
		avg := math.Round(magSum/float64(magCount)*100) / 100
		snap.AverageMagnitude = &avg
	}
	return snap, nil
}
