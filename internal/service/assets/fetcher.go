package assets

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/httpretry"
)

const (
	logoToken = "{{LOGO_URL}}"

	cacheMaxEntries = 1000
	cacheTTL        = time.Hour
)

// Fetcher downloads footer HTML documents. The standard envelope retries
// up to 3 attempts with a 1s base delay; the prewarm envelope stretches to
// 5 attempts with a 2s base and relies on the caller's deadline to stop
// early.
type Fetcher struct {
	standard *httpretry.RetryClient
	prewarm  *httpretry.RetryClient
	store    ObjectStore
	cache    *footerCache
}

// NewFetcher builds a fetcher around the given HTTP client. store may be
// nil when no s3:// footer URLs are in use.
func NewFetcher(client *http.Client, store ObjectStore) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		standard: httpretry.NewRetryClientWithOptions(client, httpretry.Options{
			MaxRetries: 2,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		}),
		prewarm: httpretry.NewRetryClientWithOptions(client, httpretry.Options{
			MaxRetries: 4,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		}),
		store: store,
		cache: newFooterCache(cacheMaxEntries, cacheTTL),
	}
}

// FetchFooter returns the tenant's footer HTML with the logo token
// substituted, or an empty string when the document cannot be fetched.
func (f *Fetcher) FetchFooter(ctx context.Context, tenantID int64, footerURL string, logoURL *string) string {
	return f.fetchCached(ctx, tenantID, footerURL, logoURL, f.standard)
}

// PrewarmFooter fetches with the longer prewarm envelope so the cache is
// hot before a fanout starts. The caller bounds it with a deadline.
func (f *Fetcher) PrewarmFooter(ctx context.Context, tenantID int64, footerURL string, logoURL *string) string {
	return f.fetchCached(ctx, tenantID, footerURL, logoURL, f.prewarm)
}

// ClearCache drops all cached footers.
func (f *Fetcher) ClearCache() {
	f.cache.clear()
}

func (f *Fetcher) fetchCached(ctx context.Context, tenantID int64, footerURL string, logoURL *string, rc *httpretry.RetryClient) string {
	if footerURL == "" {
		return ""
	}

	logo := ""
	if logoURL != nil {
		logo = *logoURL
	}
	key := cacheKey{tenantID: tenantID, logoURL: logo}
	if html, ok := f.cache.get(key); ok {
		return html
	}

	body := f.download(ctx, footerURL, rc)
	if body == "" {
		return ""
	}

	html := body
	if logo != "" {
		html = strings.ReplaceAll(body, logoToken, logo)
	}
	f.cache.set(key, html)
	return html
}

func (f *Fetcher) download(ctx context.Context, url string, rc *httpretry.RetryClient) string {
	if bucket, objKey, ok := parseS3URL(url); ok {
		if f.store == nil {
			log.Printf("[Assets] s3 footer URL but no object store configured: %s", url)
			return ""
		}
		data, err := f.store.Fetch(ctx, bucket, objKey)
		if err != nil {
			log.Printf("[Assets] Failed to fetch footer from S3: %v", err)
			return ""
		}
		return string(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("[Assets] Invalid footer URL %s: %v", url, err)
		return ""
	}

	resp, err := rc.Do(req)
	if err != nil {
		log.Printf("[Assets] Failed to fetch footer: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Assets] Footer fetch returned status %d for %s", resp.StatusCode, url)
		return ""
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Assets] Failed to read footer body: %v", err)
		return ""
	}
	return string(data)
}
