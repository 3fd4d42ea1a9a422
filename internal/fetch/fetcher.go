// Package fetch acquires website content for enrichment: a schedule-driven
// retrying HTTP fetch with TLS relaxation on retry, same-origin contact/about
// page discovery, HTML-to-text conversion, and a shared read-through cache.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment-worker/internal/model"
	"github.com/sells-group/lead-enrichment-worker/internal/resilience"
)

const (
	userAgent   = "Mozilla/5.0 (compatible; EnrichmentBot/1.0)"
	maxBodySize = 512 * 1024
)

// Error is the terminal fetch failure for a work item: the attempt budget is
// spent (or the address was unusable) and the item must not be acknowledged.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch: failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cache is the slice of the store the fetcher needs. Cache failures are
// never fatal: a read error counts as a miss, a write error is dropped.
type Cache interface {
	GetCachedContent(ctx context.Context, siteKey string) (*model.SiteContent, error)
	SetCachedContent(ctx context.Context, siteKey string, content *model.SiteContent, ttl time.Duration) error
}

// Config holds the per-attempt fetch schedule. Attempt n runs with
// Timeouts[n]; a retryable failure sleeps Backoffs[n] before the next
// attempt. The attempt budget is len(Timeouts).
type Config struct {
	Timeouts []time.Duration
	Backoffs []time.Duration
	CacheTTL time.Duration
}

// DefaultConfig returns the standard escalating schedule: three attempts at
// 20s/30s/40s with 1s/2s backoffs and a 24h cache TTL.
func DefaultConfig() Config {
	return Config{
		Timeouts: []time.Duration{20 * time.Second, 30 * time.Second, 40 * time.Second},
		Backoffs: []time.Duration{1 * time.Second, 2 * time.Second},
		CacheTTL: 24 * time.Hour,
	}
}

// Fetcher retrieves site content with bounded retries and caching.
type Fetcher struct {
	cache    Cache
	cfg      Config
	strict   *http.Client
	insecure *http.Client
}

// New creates a Fetcher backed by the given cache. Zero-value schedule
// fields fall back to the defaults.
func New(cache Cache, cfg Config) *Fetcher {
	def := DefaultConfig()
	if len(cfg.Timeouts) == 0 {
		cfg.Timeouts = def.Timeouts
	}
	if len(cfg.Backoffs) == 0 {
		cfg.Backoffs = def.Backoffs
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	return &Fetcher{
		cache:    cache,
		cfg:      cfg,
		strict:   &http.Client{Transport: newTransport(false)},
		insecure: &http.Client{Transport: newTransport(true)},
	}
}

func newTransport(insecureTLS bool) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if insecureTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// NormalizeURL prepares a lead's website value for fetching: trims
// whitespace, prepends https:// when no scheme is present, and rejects
// non-web schemes.
func NormalizeURL(website string) (*url.URL, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, eris.New("fetch: empty website")
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}

	u, err := url.Parse(website)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", website)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, eris.Errorf("fetch: missing host in %q", website)
	}
	return u, nil
}

// SiteKey derives the cache key for a normalized URL. The key is the
// lowercased host without a www. prefix, so http/https and www variants of
// the same site share one cache entry.
func SiteKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Fetch returns the site content for a lead's website, from cache when
// fresh, otherwise fetched live with the configured retry schedule. The
// returned attempt count is 0 on a cache hit. A non-nil error is always a
// *fetch.Error and terminal for the item.
func (f *Fetcher) Fetch(ctx context.Context, website string) (*model.SiteContent, int, error) {
	u, err := NormalizeURL(website)
	if err != nil {
		return nil, 0, &Error{Attempts: 0, Err: err}
	}
	siteKey := SiteKey(u)

	if cached, cacheErr := f.cache.GetCachedContent(ctx, siteKey); cacheErr != nil {
		zap.L().Warn("fetch: cache read failed, treating as miss",
			zap.String("site_key", siteKey),
			zap.Error(cacheErr),
		)
	} else if cached != nil {
		zap.L().Debug("fetch: cache hit", zap.String("site_key", siteKey))
		return cached, 0, nil
	}

	content, attempts, err := f.fetchSite(ctx, u, siteKey)
	if err != nil {
		return nil, attempts, &Error{Attempts: attempts, Err: err}
	}

	if cacheErr := f.cache.SetCachedContent(ctx, siteKey, content, f.cfg.CacheTTL); cacheErr != nil {
		zap.L().Warn("fetch: cache write failed",
			zap.String("site_key", siteKey),
			zap.Error(cacheErr),
		)
	}
	return content, attempts, nil
}

// fetchSite runs the retry schedule against the main page, then fetches
// discovered contact/about pages best-effort with the final attempt's
// timeout. After a certificate error, remaining attempts use the relaxed
// TLS transport.
func (f *Fetcher) fetchSite(ctx context.Context, u *url.URL, siteKey string) (*model.SiteContent, int, error) {
	var lastErr error
	relaxTLS := false

	for i, timeout := range f.cfg.Timeouts {
		attempt := i + 1

		page, body, err := f.fetchPage(ctx, u.String(), timeout, relaxTLS)
		if err == nil {
			content := &model.SiteContent{
				SiteKey:   siteKey,
				Main:      *page,
				FetchedAt: time.Now().UTC(),
			}
			f.fetchSecondary(ctx, u, body, relaxTLS, content)
			return content, attempt, nil
		}
		lastErr = err

		if resilience.IsCertError(err) && !relaxTLS {
			relaxTLS = true
			zap.L().Info("fetch: certificate error, relaxing TLS verification for remaining attempts",
				zap.String("site_key", siteKey),
				zap.Error(err),
			)
		} else if !resilience.IsTransient(err) {
			return nil, attempt, err
		}

		if attempt < len(f.cfg.Timeouts) {
			zap.L().Debug("fetch: attempt failed, backing off",
				zap.String("site_key", siteKey),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if err := sleep(ctx, f.backoff(i)); err != nil {
				return nil, attempt, err
			}
		}
	}

	return nil, len(f.cfg.Timeouts), lastErr
}

// fetchSecondary discovers at most one contact and one about link in the
// main page and fetches each. Failures are logged and skipped: secondary
// pages only ever add context.
func (f *Fetcher) fetchSecondary(ctx context.Context, base *url.URL, mainBody []byte, relaxTLS bool, content *model.SiteContent) {
	timeout := f.cfg.Timeouts[len(f.cfg.Timeouts)-1]

	for _, link := range discoverLinks(base, mainBody) {
		page, _, err := f.fetchPage(ctx, link, timeout, relaxTLS)
		if err != nil {
			zap.L().Debug("fetch: secondary page failed",
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		content.Secondary = append(content.Secondary, *page)
	}
}

// fetchPage retrieves one URL within the given timeout and converts it to
// plaintext. Any HTTP response, error statuses included, is content; only
// transport-level failures return an error.
func (f *Fetcher) fetchPage(ctx context.Context, targetURL string, timeout time.Duration, relaxTLS bool) (*model.Page, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	client := f.strict
	if relaxTLS {
		client = f.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetch: get")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetch: read body")
	}

	page := &model.Page{
		URL:        targetURL,
		Title:      extractTitle(body),
		Text:       stripHTML(string(body)),
		StatusCode: resp.StatusCode,
	}
	return page, body, nil
}

func (f *Fetcher) backoff(attemptIdx int) time.Duration {
	if attemptIdx < len(f.cfg.Backoffs) {
		return f.cfg.Backoffs[attemptIdx]
	}
	return f.cfg.Backoffs[len(f.cfg.Backoffs)-1]
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
