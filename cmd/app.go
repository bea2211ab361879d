package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/extract"
	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/monitor"
	"github.com/sells-group/change-monitor/internal/monitoring"
	"github.com/sells-group/change-monitor/internal/report"
	"github.com/sells-group/change-monitor/internal/scorer"
	"github.com/sells-group/change-monitor/internal/scrape"
	"github.com/sells-group/change-monitor/internal/store"
	"github.com/sells-group/change-monitor/internal/targets"
	"github.com/sells-group/change-monitor/internal/threshold"
	"github.com/sells-group/change-monitor/pkg/notion"
)

// monitorEnv holds the store, runner and scheduler shared by the run,
// watch and serve commands.
type monitorEnv struct {
	Store   store.Store
	Runner  *monitor.Runner
	Checker *monitoring.Checker
	Targets []model.MonitorTarget
}

// Close releases resources held by the environment.
func (e *monitorEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initMonitor opens the store, builds the pipeline collaborators and loads
// the target list. Callers should defer env.Close().
func initMonitor(ctx context.Context, c *config.Config) (*monitorEnv, error) {
	tgts, err := loadTargets(c)
	if err != nil {
		return nil, err
	}

	ai, err := scorer.NewAIScorer(ctx, c)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}

	runner := monitor.New(
		scrape.NewHTTPFetcher(c.Fetch),
		extract.New(c.Selectors),
		st,
		scorer.New(c.Scoring, ai),
		threshold.NewResolver(c.Thresholds),
		c,
	)

	var alerter *monitoring.Alerter
	if c.Alerts.WebhookURL != "" {
		alerter = monitoring.NewAlerter(c.Alerts)
	}

	checker := monitoring.NewChecker(runner, st, buildPublishers(c, alerter), alerter, tgts, monitoring.CheckerConfig{
		Interval:      time.Duration(c.Schedule.IntervalMins) * time.Minute,
		RetentionDays: c.Store.RetentionDays,
		LookbackHours: c.Alerts.LookbackHours,
	})

	zap.L().Debug("monitor initialized",
		zap.String("store", c.Store.Driver),
		zap.String("scoring", c.Scoring.Provider),
		zap.Int("targets", len(tgts)),
	)
	return &monitorEnv{Store: st, Runner: runner, Checker: checker, Targets: tgts}, nil
}

// loadTargets merges inline targets with the targets file, if any.
func loadTargets(c *config.Config) ([]model.MonitorTarget, error) {
	tgts := c.Targets
	if c.TargetsFile != "" {
		extra, err := targets.Load(c.TargetsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "load targets file %s", c.TargetsFile)
		}
		tgts = targets.Merge(tgts, extra)
	}
	return tgts, nil
}

// buildPublishers returns the configured downstream collaborators.
func buildPublishers(c *config.Config, alerter *monitoring.Alerter) []report.Publisher {
	var pubs []report.Publisher
	if c.Email.Enabled() {
		pubs = append(pubs, report.NewEmailPublisher(c.Email))
	}
	if c.Notion.Token != "" && c.Notion.ChangeDB != "" {
		pubs = append(pubs, report.NewNotionPublisher(notion.NewClient(c.Notion.Token, notion.WithRateLimit(c.Notion.RateLimit)), c.Notion.ChangeDB))
	}
	if alerter != nil {
		pubs = append(pubs, alerter)
	}
	return pubs
}
