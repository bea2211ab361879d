package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/report"
	"github.com/sells-group/change-monitor/internal/store"
)

// ErrPassInProgress is returned when a pass is requested while another runs.
var ErrPassInProgress = errors.New("monitoring: pass already in progress")

// PassRunner checks a set of targets. *monitor.Runner satisfies it.
type PassRunner interface {
	RunAll(ctx context.Context, targets []model.MonitorTarget) ([]*model.Run, error)
}

// Archive records runs and ages out old snapshots.
type Archive interface {
	store.RunLog
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// CheckerConfig tunes the scheduling loop.
type CheckerConfig struct {
	Interval      time.Duration
	RetentionDays int
	LookbackHours int
}

// Checker runs monitoring passes on a schedule. Each pass checks all
// targets, records the runs, hands them to the publishers, prunes old
// snapshots and checks run health.
type Checker struct {
	runner     PassRunner
	archive    Archive
	publishers []report.Publisher
	collector  *Collector
	alerter    *Alerter
	targets    []model.MonitorTarget
	cfg        CheckerConfig

	mu  sync.Mutex
	now func() time.Time
}

// NewChecker creates a scheduled checker. alerter may be nil.
func NewChecker(runner PassRunner, archive Archive, publishers []report.Publisher, alerter *Alerter, targets []model.MonitorTarget, cfg CheckerConfig) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 24
	}
	return &Checker{
		runner:     runner,
		archive:    archive,
		publishers: publishers,
		collector:  NewCollector(archive),
		alerter:    alerter,
		targets:    targets,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Targets returns the configured targets.
func (c *Checker) Targets() []model.MonitorTarget { return c.targets }

// Run performs a pass immediately and then once per interval. It blocks
// until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting scheduled checks",
		zap.Duration("interval", c.cfg.Interval),
		zap.Int("targets", len(c.targets)),
	)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		_, err := c.Pass(ctx, c.targets)
		switch {
		case errors.Is(err, ErrPassInProgress):
			log.Info("monitoring: previous pass still running, tick skipped")
		case err != nil && ctx.Err() == nil:
			log.Error("monitoring: scheduled pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("scheduled checks stopped")
			return
		case <-ticker.C:
		}
	}
}

// Pass checks targets once and runs the post-pass steps. Only one pass
// runs at a time; a concurrent call returns ErrPassInProgress.
func (c *Checker) Pass(ctx context.Context, targets []model.MonitorTarget) ([]*model.Run, error) {
	if !c.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer c.mu.Unlock()
	return c.pass(ctx, targets)
}

// Start reserves the pass slot and runs the pass in the background, calling
// done with its outcome when done is non-nil. It returns ErrPassInProgress
// without starting anything when another pass holds the slot.
func (c *Checker) Start(ctx context.Context, targets []model.MonitorTarget, done func([]*model.Run, error)) error {
	if !c.mu.TryLock() {
		return ErrPassInProgress
	}
	go func() {
		runs, err := c.pass(ctx, targets)
		c.mu.Unlock()
		if done != nil {
			done(runs, err)
		}
	}()
	return nil
}

// pass runs with c.mu held.
func (c *Checker) pass(ctx context.Context, targets []model.MonitorTarget) ([]*model.Run, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	runs, err := c.runner.RunAll(ctx, targets)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: run targets")
	}

	// Bookkeeping outlives a cancelled pass so finished work is kept.
	bg := context.WithoutCancel(ctx)
	for _, run := range runs {
		if err := c.archive.SaveRun(bg, run); err != nil {
			log.Error("monitoring: save run failed", zap.String("entity", run.EntityID), zap.Error(err))
		}
	}

	if failed := report.Dispatch(bg, c.publishers, runs); failed > 0 {
		log.Warn("monitoring: some publishers failed", zap.Int("failed", failed))
	}

	c.prune(bg, log)
	c.checkHealth(bg, log)
	return runs, nil
}

func (c *Checker) prune(ctx context.Context, log *zap.Logger) {
	if c.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := c.now().AddDate(0, 0, -c.cfg.RetentionDays)
	n, err := c.archive.Prune(ctx, cutoff)
	if err != nil {
		log.Error("monitoring: prune snapshots failed", zap.Error(err))
		return
	}
	log.Debug("monitoring: pruned snapshots", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}

func (c *Checker) checkHealth(ctx context.Context, log *zap.Logger) {
	if c.alerter == nil {
		return
	}
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.EvaluateHealth(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: health check passed", zap.Float64("error_rate", snap.ErrorRate))
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: health check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}

// Busy reports whether a pass is running.
func (c *Checker) Busy() bool {
	if c.mu.TryLock() {
		c.mu.Unlock()
		return false
	}
	return true
}
