// Package report delivers finished monitoring runs to downstream
// collaborators: a digest email, a Notion change log and webhook alerts.
package report

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
)

// Publisher delivers runs somewhere outside the process.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, runs []*model.Run) error
}

// Dispatch hands runs to every publisher in order. A failing publisher is
// logged and skipped. It returns the number of publishers that failed.
func Dispatch(ctx context.Context, publishers []Publisher, runs []*model.Run) int {
	failed := 0
	for _, p := range publishers {
		if err := p.Publish(ctx, runs); err != nil {
			failed++
			zap.L().Error("report: publish failed",
				zap.String("publisher", p.Name()),
				zap.Error(err),
			)
			continue
		}
		zap.L().Debug("report: published", zap.String("publisher", p.Name()), zap.Int("runs", len(runs)))
	}
	return failed
}

// ChangeType classifies a page by its URL path.
func ChangeType(url string) string {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "/pricing"):
		return "Pricing Strategy"
	case strings.Contains(u, "/blog"):
		return "Thought Leadership"
	case strings.Contains(u, "/product"):
		return "Product Update"
	case strings.Contains(u, "/features"):
		return "Feature Enhancement"
	case strings.Contains(u, "/news"):
		return "Public Announcement"
	case strings.Contains(u, "/api"):
		return "API/Technical Update"
	default:
		return "General Content Update"
	}
}

// AlertLevel buckets a relevance score. Unscored changes are Low.
func AlertLevel(score *model.ScoreResult) string {
	switch {
	case score == nil:
		return "Low"
	case score.Score >= 8:
		return "High"
	case score.Score >= 6:
		return "Medium"
	default:
		return "Low"
	}
}
