package scrape

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests to the same host. A non-positive rate disables
// limiting.
type HostLimiter struct {
	rps float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a HostLimiter allowing rps requests per second per
// host with a burst of one.
func NewHostLimiter(rps float64) *HostLimiter {
	return &HostLimiter{rps: rps, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.rps <= 0 {
		return nil
	}
	return h.limiter(hostOf(rawURL)).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.rps), 1)
		h.limiters[host] = l
	}
	return l
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
