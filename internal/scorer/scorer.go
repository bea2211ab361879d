// Package scorer assigns a 0-10 relevance score to a detected page change,
// using an AI model when one is configured and keyword rules otherwise.
package scorer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/diff"
	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/resilience"
)

const (
	MinScore  = 0
	MaxScore  = 10
	baseScore = 5
)

// Change is the input to scoring. A zero Magnitude is recomputed from
// Previous and Current.
type Change struct {
	EntityID  string
	URL       string
	Previous  *model.ExtractedContent
	Current   model.ExtractedContent
	Magnitude float64
}

// AIScorer scores a change with a language model.
type AIScorer interface {
	ScoreChange(ctx context.Context, previousText, currentText, entityID string) (*model.ScoreResult, error)
}

// Scorer produces relevance scores. The AI strategy is optional; rule-based
// scoring is used when it is absent or fails.
type Scorer struct {
	ai       AIScorer
	keywords []string
	timeout  time.Duration
	breaker  *resilience.Breaker
	retry    resilience.Policy
	log      *zap.Logger
}

// New creates a Scorer. ai may be nil.
func New(cfg config.ScoringConfig, ai AIScorer) *Scorer {
	kws := make([]string, 0, len(cfg.CriticalKeywords))
	seen := make(map[string]bool)
	for _, k := range cfg.CriticalKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		kws = append(kws, k)
	}

	timeout := time.Duration(cfg.AITimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Scorer{
		ai:       ai,
		keywords: kws,
		timeout:  timeout,
		breaker:  resilience.NewBreaker("ai_scorer", cfg.BreakerThreshold, time.Duration(cfg.BreakerResetSecs)*time.Second),
		retry:    resilience.NewPolicy("ai_scorer", cfg.MaxAttempts),
		log:      zap.L().With(zap.String("component", "scorer")),
	}
}

// HasAI reports whether an AI strategy is configured.
func (s *Scorer) HasAI() bool { return s.ai != nil }

// Score returns the relevance of c. It never fails: AI errors, an open
// circuit or an out-of-range AI score fall back to RuleBased with Error set.
func (s *Scorer) Score(ctx context.Context, c Change) model.ScoreResult {
	if s.ai == nil {
		return s.RuleBased(c)
	}

	res, err := resilience.Call(ctx, s.breaker, func(ctx context.Context) (*model.ScoreResult, error) {
		return resilience.Retry(ctx, s.retry, func(ctx context.Context) (*model.ScoreResult, error) {
			return s.callAI(ctx, c)
		})
	})
	if err != nil {
		s.log.Warn("scorer: ai unavailable, using rules",
			zap.String("entity", c.EntityID),
			zap.String("url", c.URL),
			zap.Error(err),
		)
		fb := s.RuleBased(c)
		fb.Error = err.Error()
		return fb
	}

	out := *res
	out.Method = model.ScoreMethodAI
	out.MatchedKeywords = s.CriticalKeywords(c.Current.FullText)
	return out
}

func (s *Scorer) callAI(ctx context.Context, c Change) (*model.ScoreResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var prev string
	if c.Previous != nil {
		prev = promptText(*c.Previous)
	}
	res, err := s.ai.ScoreChange(ctx, prev, promptText(c.Current), c.EntityID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, eris.New("scorer: empty ai result")
	}
	if res.Score < MinScore || res.Score > MaxScore {
		return nil, eris.Errorf("scorer: ai score %d out of range", res.Score)
	}
	return res, nil
}

// promptText prefers the markdown rendering, which keeps headings and lists.
func promptText(c model.ExtractedContent) string {
	if c.Markdown != "" {
		return c.Markdown
	}
	return c.FullText
}

// RuleBased scores c from keyword and size signals alone. It is pure.
func (s *Scorer) RuleBased(c Change) model.ScoreResult {
	score := baseScore
	var reasons []string

	matched := s.CriticalKeywords(c.Current.FullText)
	if len(matched) > 0 {
		score += 3
		reasons = append(reasons, "Critical keywords found: "+strings.Join(matched, ", "))
	}

	magnitude := c.Magnitude
	if magnitude == 0 {
		magnitude = diff.Magnitude(c.Previous, c.Current)
	}
	mag := strconv.FormatFloat(magnitude, 'f', -1, 64)
	switch {
	case magnitude > 50:
		score += 2
		reasons = append(reasons, "Large change detected: "+mag+"%")
	case magnitude > 25:
		score++
		reasons = append(reasons, "Moderate change detected: "+mag+"%")
	}

	if c.Previous != nil {
		prev := float64(c.Previous.WordCount)
		curr := float64(c.Current.WordCount)
		switch {
		case curr > prev*1.5:
			score++
			reasons = append(reasons, "Significant content addition")
		case curr < prev*0.5:
			score++
			reasons = append(reasons, "Significant content removal")
		}
	}

	return model.ScoreResult{
		Score:           min(max(score, MinScore), MaxScore),
		Reasoning:       strings.Join(reasons, "; "),
		Method:          model.ScoreMethodRuleBased,
		MatchedKeywords: matched,
	}
}

// CriticalKeywords returns the configured critical keywords found in text,
// case-insensitively, in configuration order.
func (s *Scorer) CriticalKeywords(text string) []string {
	if len(s.keywords) == 0 || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}
