package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/change-monitor/internal/config"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		TimeoutSecs:  5,
		UserAgent:    "TestMonitor/1.0",
		MaxBytes:     1 << 20,
		MaxRedirects: 3,
		MaxAttempts:  1,
	}
}

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Acme</title></head><body>Hello</body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testFetchConfig())
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, srv.URL, resp.URL)
	assert.Contains(t, resp.Body, "<title>Acme</title>")
	assert.Equal(t, BlockNone, resp.Block)
	assert.Equal(t, "TestMonitor/1.0", gotUA)
}

func TestHTTPFetcher_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1.
		_, _ = w.Write([]byte{'<', 'p', '>', 'c', 'a', 'f', 0xe9, '<', '/', 'p', '>'})
	}))
	defer srv.Close()

	resp, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", resp.Body)
}

func TestHTTPFetcher_ServerErrorIsFetchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 3
	_, err := NewHTTPFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 500, fe.StatusCode)
	assert.Equal(t, srv.URL, fe.URL)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Equal(t, int32(1), calls.Load(), "500 is not retried")
}

func TestHTTPFetcher_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<p>back</p>"))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 2
	resp, err := NewHTTPFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>back</p>", resp.Body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 404, fe.StatusCode)
}

func TestHTTPFetcher_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/old", resp.URL)
	assert.Equal(t, srv.URL+"/new", resp.FinalURL)
	assert.Equal(t, "moved", resp.Body)
}

func TestHTTPFetcher_RedirectLoopCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), srv.URL+"/a")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Err.Error(), "stopped after 3 redirects")
}

func TestHTTPFetcher_TruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 5000)))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxBytes = 1000
	resp, err := NewHTTPFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 1000)
}

func TestHTTPFetcher_AnnotatesBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>Please solve the captcha</body></html>"))
	}))
	defer srv.Close()

	resp, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, BlockCaptcha, resp.Block)
}

func TestHTTPFetcher_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPFetcher(testFetchConfig()).Fetch(ctx, srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	_, err := NewHTTPFetcher(testFetchConfig()).Fetch(context.Background(), "://bad")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}
