package scrape

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/resilience"
)

// HTTPFetcher fetches pages with net/http, decoding bodies to UTF-8.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	limiter   *HostLimiter
	policy    resilience.Policy
	log       *zap.Logger
}

// NewHTTPFetcher creates an HTTPFetcher from fetch configuration.
func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	policy := resilience.NewPolicy("fetch", cfg.MaxAttempts)
	policy.Retryable = retryableFetch

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return eris.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		limiter:   NewHostLimiter(cfg.PerHostRPS),
		policy:    policy,
		log:       zap.L().With(zap.String("component", "fetch")),
	}
}

// Fetch retrieves url. Transient failures are retried; anything else returns
// a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	return resilience.Retry(ctx, f.policy, func(ctx context.Context) (*Response, error) {
		return f.fetchOnce(ctx, url)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*Response, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return nil, &FetchError{URL: url, Err: eris.Wrap(err, "fetch: rate limit wait")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: eris.Wrap(err, "fetch: create request")}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: eris.Wrap(err, "fetch: do request")}
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("fetch: status %d", resp.StatusCode),
		}
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBytes), contentType)
	if err != nil {
		return nil, &FetchError{URL: url, Err: eris.Wrap(err, "fetch: detect charset")}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{URL: url, Err: eris.Wrap(err, "fetch: read body")}
	}

	out := &Response{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        string(body),
		Block:       DetectBlock(resp.StatusCode, resp.Header, body),
	}
	if out.Block != BlockNone {
		f.log.Warn("fetch: page looks like an anti-bot interstitial",
			zap.String("url", url),
			zap.String("block", string(out.Block)),
		)
	}
	return out, nil
}

// retryableFetch retries transient statuses and transport failures but not
// other HTTP errors.
func retryableFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode > 0 {
		return resilience.TransientStatus(fe.StatusCode)
	}
	return resilience.IsTransient(err)
}
