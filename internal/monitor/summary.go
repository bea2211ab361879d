package monitor

import (
	"math"

	"github.com/sells-group/change-monitor/internal/model"
)

// Summarize folds URL results into a run summary. MaxScore ignores results
// without a score; AverageMagnitude covers results with a magnitude. Both
// are nil when nothing qualifies.
func Summarize(results []model.URLResult) model.RunSummary {
	s := model.RunSummary{TotalURLs: len(results)}

	var magSum float64
	var magCount int
	for _, r := range results {
		switch r.Status {
		case model.URLStatusSuccess:
			s.Successes++
		case model.URLStatusError:
			s.Errors++
		}
		if r.Changed() {
			s.Changed++
		}
		if r.IsSignificant {
			s.Significant++
		}
		if r.Score != nil && (s.MaxScore == nil || r.Score.Score > *s.MaxScore) {
			v := r.Score.Score
			s.MaxScore = &v
		}
		if r.ChangeMagnitude != nil {
			magSum += *r.ChangeMagnitude
			magCount++
		}
	}

	if magCount > 0 {
		avg := math.Round(magSum/float64(magCount)*100) / 100
		s.AverageMagnitude = &avg
	}
	return s
}
