package report

import (
	"sort"
	"time"

	"github.com/sells-group/change-monitor/internal/model"
)

// Change is one significant URL result with its entity.
type Change struct {
	EntityID   string
	URL        string
	Magnitude  float64
	Score      *model.ScoreResult
	Level      string
	ChangeType string
	Keywords   []string
	CheckedAt  time.Time
}

// EntityLine is one entity row in the digest.
type EntityLine struct {
	EntityID string
	URLs     int
	Changed  int
	Errors   int
}

// Digest is the view model of the daily summary email.
type Digest struct {
	Date         time.Time
	Entities     int
	TotalChanges int
	Significant  []Change
	WithChanges  []EntityLine
	Stable       []EntityLine
	WithErrors   []EntityLine
}

// Quiet reports whether nothing changed and nothing failed.
func (d Digest) Quiet() bool {
	return d.TotalChanges == 0 && len(d.WithErrors) == 0
}

// BuildDigest summarizes runs. Entities with changes are ordered by change
// count, then entity ID; significant changes by score, then magnitude.
func BuildDigest(runs []*model.Run, now time.Time) Digest {
	d := Digest{Date: now}

	for _, run := range runs {
		if run == nil {
			continue
		}
		d.Entities++
		line := EntityLine{
			EntityID: run.EntityID,
			URLs:     run.Summary.TotalURLs,
			Changed:  run.Summary.Changed,
			Errors:   run.Summary.Errors,
		}
		d.TotalChanges += line.Changed

		switch {
		case line.Errors > 0:
			d.WithErrors = append(d.WithErrors, line)
		case line.Changed == 0:
			d.Stable = append(d.Stable, line)
		}
		if line.Changed > 0 {
			d.WithChanges = append(d.WithChanges, line)
		}

		for _, res := range run.SignificantResults() {
			c := Change{
				EntityID:   run.EntityID,
				URL:        res.URL,
				Score:      res.Score,
				Level:      AlertLevel(res.Score),
				ChangeType: ChangeType(res.URL),
				Keywords:   res.CriticalKeywords,
				CheckedAt:  res.CheckedAt,
			}
			if res.ChangeMagnitude != nil {
				c.Magnitude = *res.ChangeMagnitude
			}
			d.Significant = append(d.Significant, c)
		}
	}

	sort.SliceStable(d.WithChanges, func(i, j int) bool {
		if d.WithChanges[i].Changed != d.WithChanges[j].Changed {
			return d.WithChanges[i].Changed > d.WithChanges[j].Changed
		}
		return d.WithChanges[i].EntityID < d.WithChanges[j].EntityID
	})
	sort.SliceStable(d.Significant, func(i, j int) bool {
		si, sj := scoreOf(d.Significant[i].Score), scoreOf(d.Significant[j].Score)
		if si != sj {
			return si > sj
		}
		return d.Significant[i].Magnitude > d.Significant[j].Magnitude
	})
	return d
}

func scoreOf(s *model.ScoreResult) int {
	if s == nil {
		return -1
	}
	return s.Score
}
