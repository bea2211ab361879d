// Package notion is the change log's view of the Notion API. The change log
// needs two calls: a filtered database query, used to find a change already
// logged under the same content hash, and page creation for each new entry.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is Notion's documented average request rate per
// integration.
const DefaultRateLimit = 3.0

// Client is the subset of the Notion API the change log calls.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// ClientOption configures NewClient.
type ClientOption func(*changeLogClient)

// WithRateLimit sets the shared request budget in requests per second. A
// pass that logs many changes alternates lookups and page creations, so
// both draw from the same bucket. A non-positive rps disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *changeLogClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type changeLogClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a Client authenticated with an integration token that
// has access to the change log database.
func NewClient(token string, opts ...ClientOption) Client {
	c := &changeLogClient{api: notionapi.NewClient(notionapi.Token(token))}
	WithRateLimit(DefaultRateLimit)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// throttled waits for a request slot, then performs op and wraps its
// error with action.
func throttled[T any](ctx context.Context, c *changeLogClient, action string, op func() (T, error)) (T, error) {
	var zero T
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	v, err := op()
	if err != nil {
		return zero, eris.Wrap(err, "notion: "+action)
	}
	return v, nil
}

func (c *changeLogClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return throttled(ctx, c, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *changeLogClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c, "create page", func() (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
}
