// Package monitor runs the change-detection pipeline over monitor targets:
// fetch, extract, hash, diff, score, evaluate and record.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/diff"
	"github.com/sells-group/change-monitor/internal/fingerprint"
	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/scorer"
	"github.com/sells-group/change-monitor/internal/scrape"
	"github.com/sells-group/change-monitor/internal/store"
)

var (
	// ErrNoTargets is returned when a pass is started with nothing to check.
	ErrNoTargets = eris.New("monitor: no targets")
	// ErrInvalidTarget is returned for a target without an entity ID or URLs.
	ErrInvalidTarget = eris.New("monitor: invalid target")
)

const errDeadline = "run deadline exceeded"

// Extractor turns a fetched page into normalized content.
type Extractor interface {
	Extract(raw, url string) model.ExtractedContent
}

// Scorer rates a detected change and reports critical keywords.
type Scorer interface {
	Score(ctx context.Context, c scorer.Change) model.ScoreResult
	CriticalKeywords(text string) []string
}

// ThresholdResolver picks the significance threshold for a URL.
type ThresholdResolver interface {
	Resolve(entityID, url string) float64
}

// Runner orchestrates monitoring passes. It is safe for concurrent use.
type Runner struct {
	fetcher   scrape.PageFetcher
	extractor Extractor
	store     store.SnapshotStore
	scorer    Scorer
	resolver  ThresholdResolver

	concurrency    int
	maxTargets     int
	deadline       time.Duration
	readPolicy     string
	writeTimeout   time.Duration
	alertThreshold int

	log *zap.Logger
}

// New creates a Runner from its collaborators and the runner, store and
// scoring sections of cfg.
func New(fetcher scrape.PageFetcher, extractor Extractor, snapshots store.SnapshotStore, sc Scorer, resolver ThresholdResolver, cfg *config.Config) *Runner {
	r := &Runner{
		fetcher:        fetcher,
		extractor:      extractor,
		store:          snapshots,
		scorer:         sc,
		resolver:       resolver,
		concurrency:    cfg.Runner.Concurrency,
		maxTargets:     cfg.Runner.MaxConcurrentTargets,
		deadline:       time.Duration(cfg.Runner.RunDeadlineSecs) * time.Second,
		readPolicy:     cfg.Store.ReadFailurePolicy,
		writeTimeout:   time.Duration(cfg.Store.WriteTimeoutSecs) * time.Second,
		alertThreshold: cfg.Scoring.AlertThreshold,
		log:            zap.L().With(zap.String("component", "monitor")),
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if r.maxTargets <= 0 {
		r.maxTargets = 1
	}
	if r.writeTimeout <= 0 {
		r.writeTimeout = 10 * time.Second
	}
	if r.readPolicy == "" {
		r.readPolicy = config.ReadPolicyFail
	}
	return r
}

// Run checks every URL of target. URL failures are recorded in the results;
// only an invalid target returns an error. Blank and repeated URLs are
// dropped first, so a URL listed twice is checked once and yields a single
// result.
func (r *Runner) Run(ctx context.Context, target model.MonitorTarget) (*model.Run, error) {
	return r.runTarget(ctx, target, r.deadlineFrom(time.Now()))
}

// RunAll runs each target, a bounded number at a time. Runs are returned in
// target order. All targets share one run deadline.
func (r *Runner) RunAll(ctx context.Context, targets []model.MonitorTarget) ([]*model.Run, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	for _, t := range targets {
		if err := validate(t.Normalize()); err != nil {
			return nil, err
		}
	}

	deadline := r.deadlineFrom(time.Now())
	runs := make([]*model.Run, len(targets))

	var g errgroup.Group
	g.SetLimit(r.maxTargets)
	for i, t := range targets {
		g.Go(func() error {
			run, err := r.runTarget(ctx, t, deadline)
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *Runner) deadlineFrom(start time.Time) time.Time {
	if r.deadline <= 0 {
		return time.Time{}
	}
	return start.Add(r.deadline)
}

func validate(t model.MonitorTarget) error {
	if t.EntityID == "" {
		return eris.Wrap(ErrInvalidTarget, "monitor: empty entity id")
	}
	if len(t.URLs) == 0 {
		return eris.Wrapf(ErrInvalidTarget, "monitor: entity %s has no urls", t.EntityID)
	}
	return nil
}

func (r *Runner) runTarget(ctx context.Context, target model.MonitorTarget, deadline time.Time) (*model.Run, error) {
	given := len(target.URLs)
	target = target.Normalize()
	if err := validate(target); err != nil {
		return nil, err
	}
	if dropped := given - len(target.URLs); dropped > 0 {
		r.log.Warn("monitor: dropped blank or duplicate urls",
			zap.String("entity", target.EntityID),
			zap.Int("given", given),
			zap.Int("dropped", dropped),
		)
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		EntityID:  target.EntityID,
		StartedAt: time.Now().UTC(),
		Results:   make([]model.URLResult, len(target.URLs)),
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range target.URLs {
		g.Go(func() error {
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				run.Results[i] = failed(u, eris.New(errDeadline))
				return nil
			}
			run.Results[i] = r.checkURL(ctx, target.EntityID, u)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = time.Now().UTC()
	run.Summary = Summarize(run.Results)

	r.log.Info("monitor: run complete",
		zap.String("entity", run.EntityID),
		zap.String("run_id", run.ID),
		zap.Int("urls", run.Summary.TotalURLs),
		zap.Int("errors", run.Summary.Errors),
		zap.Int("changed", run.Summary.Changed),
		zap.Int("significant", run.Summary.Significant),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

// checkURL runs one URL through the pipeline. It never returns an error;
// failures become an error result.
func (r *Runner) checkURL(ctx context.Context, entityID, url string) model.URLResult {
	log := r.log.With(zap.String("entity", entityID), zap.String("url", url))
	checkedAt := time.Now().UTC()

	resp, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("monitor: fetch failed", zap.Error(err))
		return failed(url, err)
	}

	content := r.extractor.Extract(resp.Body, url)
	if content.Degraded {
		log.Debug("monitor: selector matched nothing, used whole document")
	}
	hash := fingerprint.Sum(content.FullText)

	prev, err := r.store.GetLatest(ctx, url)
	if err != nil {
		if r.readPolicy != config.ReadPolicyFirstObservation {
			log.Error("monitor: read previous snapshot", zap.Error(err))
			return failed(url, eris.Wrap(err, "monitor: read previous snapshot"))
		}
		log.Warn("monitor: previous snapshot unreadable, treating as first observation", zap.Error(err))
		prev = nil
	}

	res := model.URLResult{
		URL:         url,
		Status:      model.URLStatusSuccess,
		CurrentHash: hash,
		Extracted:   &content,
		CheckedAt:   checkedAt,
	}

	var previous *model.ExtractedContent
	if prev != nil {
		res.PreviousHash = prev.ContentHash
		previous = &prev.Extracted
	}

	var magnitude float64
	if prev != nil && fingerprint.Equal(prev.ContentHash, hash) {
		magnitude = 0
	} else {
		magnitude = diff.Magnitude(previous, content)
	}
	res.ChangeMagnitude = &magnitude

	if magnitude > 0 {
		score := r.scorer.Score(ctx, scorer.Change{
			EntityID:  entityID,
			URL:       url,
			Previous:  previous,
			Current:   content,
			Magnitude: magnitude,
		})
		res.Score = &score
	}

	res.Threshold = r.resolver.Resolve(entityID, url)
	res.CriticalKeywords = r.scorer.CriticalKeywords(content.FullText)
	res.IsSignificant = Significant(magnitude, res.Threshold, res.Score, r.alertThreshold, len(res.CriticalKeywords) > 0)

	r.persist(ctx, log, &model.Snapshot{
		URL:         url,
		TakenAt:     checkedAt,
		ContentHash: hash,
		Extracted:   content,
	})

	fields := []zap.Field{
		zap.Float64("magnitude", magnitude),
		zap.Float64("threshold", res.Threshold),
		zap.Bool("significant", res.IsSignificant),
	}
	if res.Score != nil {
		fields = append(fields, zap.Int("score", res.Score.Score), zap.String("method", string(res.Score.Method)))
	}
	log.Info("monitor: url checked", fields...)
	return res
}

// persist writes the snapshot on a context detached from run cancellation
// so a cancelled pass never abandons a write halfway. Failures are logged.
func (r *Runner) persist(ctx context.Context, log *zap.Logger, snap *model.Snapshot) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()
	if err := r.store.Put(wctx, snap); err != nil {
		log.Error("monitor: persist snapshot", zap.Error(err))
	}
}

func failed(url string, err error) model.URLResult {
	return model.URLResult{
		URL:       url,
		Status:    model.URLStatusError,
		Error:     err.Error(),
		CheckedAt: time.Now().UTC(),
	}
}

// Significant reports whether a successful check warrants attention: the
// magnitude reaches the threshold, the score reaches the alert threshold,
// or a critical keyword is present.
func Significant(magnitude, threshold float64, score *model.ScoreResult, alertThreshold int, critical bool) bool {
	if magnitude >= threshold {
		return true
	}
	if score != nil && score.Score >= alertThreshold {
		return true
	}
	return critical
}
