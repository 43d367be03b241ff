package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/httpretry"
)

// newTestFetcher shrinks the retry delays so tests stay fast.
func newTestFetcher(client *http.Client) *Fetcher {
	f := NewFetcher(client, nil)
	fast := httpretry.Options{MaxRetries: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	f.standard = httpretry.NewRetryClientWithOptions(client, fast)
	f.prewarm = httpretry.NewRetryClientWithOptions(client, httpretry.Options{
		MaxRetries: 4, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond,
	})
	return f
}

func TestFetchFooterSubstitutesLogo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div><img src="{{LOGO_URL}}"/>Thanks!</div>`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	logo := "https://cdn.example.com/logo.png"
	html := f.FetchFooter(context.Background(), 1, srv.URL, &logo)

	assert.Contains(t, html, `src="https://cdn.example.com/logo.png"`)
	assert.NotContains(t, html, "{{LOGO_URL}}")
}

func TestFetchFooterLeavesTokenWithoutLogo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div>{{LOGO_URL}}</div>`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	html := f.FetchFooter(context.Background(), 1, srv.URL, nil)

	assert.Contains(t, html, "{{LOGO_URL}}")
}

func TestFetchFooterRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<div>footer</div>"))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	html := f.FetchFooter(context.Background(), 1, srv.URL, nil)

	assert.Equal(t, "<div>footer</div>", html)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchFooterEmptyOnPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	assert.Empty(t, f.FetchFooter(context.Background(), 1, srv.URL, nil))
}

func TestFetchFooterCacheKeyedByTenantAndLogo(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`<img src="{{LOGO_URL}}"/>`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	ctx := context.Background()
	logoA := "https://cdn.example.com/a.png"
	logoB := "https://cdn.example.com/b.png"

	first := f.FetchFooter(ctx, 1, srv.URL, &logoA)
	second := f.FetchFooter(ctx, 1, srv.URL, &logoA)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "same tenant and logo should hit the cache")

	changed := f.FetchFooter(ctx, 1, srv.URL, &logoB)
	assert.Contains(t, changed, "b.png")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "logo change must invalidate the cache")

	f.ClearCache()
	f.FetchFooter(ctx, 1, srv.URL, &logoA)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchFooterFailureNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<div>recovered</div>"))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	ctx := context.Background()

	require.Empty(t, f.FetchFooter(ctx, 1, srv.URL, nil))
	assert.Equal(t, "<div>recovered</div>", f.FetchFooter(ctx, 1, srv.URL, nil),
		"a failed fetch must not poison the cache")
}

func TestPrewarmStopsAtDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	start := time.Now()
	html := f.PrewarmFooter(ctx, 1, srv.URL, nil)
	assert.Empty(t, html)
	assert.Less(t, time.Since(start), 300*time.Millisecond, "deadline should cut the prewarm envelope short")
}

func TestParseS3URL(t *testing.T) {
	bucket, key, ok := parseS3URL("s3://assets-bucket/tenants/42/footer.html")
	require.True(t, ok)
	assert.Equal(t, "assets-bucket", bucket)
	assert.Equal(t, "tenants/42/footer.html", key)

	_, _, ok = parseS3URL("https://example.com/footer.html")
	assert.False(t, ok)

	_, _, ok = parseS3URL("s3://bucket-only")
	assert.False(t, ok)
}
