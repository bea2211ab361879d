// Package scrape retrieves raw page bodies over HTTP for the monitoring
// pipeline.
package scrape

import (
	"context"
	"fmt"
)

// Response is a fetched page.
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        string
	Block       BlockType
}

// PageFetcher retrieves the body of a URL. Implementations must bound each
// call with a timeout and return a *FetchError for failures.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetchError reports a failed retrieval: a network error, a timeout or a
// non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
