// Package threshold resolves the change-magnitude threshold that applies to a
// URL from tiered configuration: URL pattern, then entity, then global.
package threshold

import (
	"regexp"
	"strings"

	"github.com/sells-group/change-monitor/internal/model"
)

// Source names the tier that produced a resolved threshold.
type Source string

const (
	SourcePattern Source = "pattern"
	SourceEntity  Source = "entity"
	SourceGlobal  Source = "global"
)

type rule struct {
	pattern   string
	re        *regexp.Regexp // nil for substring patterns
	threshold float64
}

func (r rule) matches(url string) bool {
	if r.re != nil {
		return r.re.MatchString(url)
	}
	return strings.Contains(url, r.pattern)
}

// Resolver picks thresholds. Pattern rules are compiled once at construction
// and evaluated in configured order.
type Resolver struct {
	global    float64
	perEntity map[string]float64
	rules     []rule
}

// NewResolver compiles cfg into a Resolver.
func NewResolver(cfg model.ThresholdConfig) *Resolver {
	r := &Resolver{
		global:    cfg.Global,
		perEntity: cfg.PerEntity,
		rules:     make([]rule, 0, len(cfg.PerURLPattern)),
	}
	for _, p := range cfg.PerURLPattern {
		r.rules = append(r.rules, rule{
			pattern:   p.Pattern,
			re:        compileWildcard(p.Pattern),
			threshold: p.Threshold,
		})
	}
	return r
}

// compileWildcard turns a "*" glob into an unanchored regexp where every
// other character is literal. Patterns without "*" return nil.
func compileWildcard(pattern string) *regexp.Regexp {
	if !strings.Contains(pattern, "*") {
		return nil
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(strings.Join(parts, ".*"))
}

// Resolve returns the threshold for url under entityID.
func (r *Resolver) Resolve(entityID, url string) float64 {
	v, _ := r.ResolveWithSource(entityID, url)
	return v
}

// ResolveWithSource returns the threshold and the tier it came from.
func (r *Resolver) ResolveWithSource(entityID, url string) (float64, Source) {
	for _, rl := range r.rules {
		if rl.matches(url) {
			return rl.threshold, SourcePattern
		}
	}
	if v, ok := r.perEntity[entityID]; ok {
		return v, SourceEntity
	}
	// Config loaders lowercase map keys.
	if v, ok := r.perEntity[strings.ToLower(entityID)]; ok {
		return v, SourceEntity
	}
	return r.global, SourceGlobal
}
