// Package scraper fetches web pages for agents with the web tool flag.
//
// Security:
//   - DNS resolution checked before every request: private/internal IPs blocked
//   - Optional domain allowlist enforced on the initial URL and every redirect
//   - Response body capped to prevent OOM
//   - GET only; timeout enforced via context
//
// Successful fetches are cached in a bounded LRU with TTL so that plans
// fanning out over the same sources do not hammer them.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jkaninda/busara/internal/observability"
)

const userAgent = "Busara/1.0"

// Page is one fetched document.
type Page struct {
	URL        string
	Content    string
	StatusCode int
	Truncated  bool
	FromCache  bool
	FetchedAt  time.Time
}

// Config restricts scraper behavior.
type Config struct {
	AllowedDomains   []string      // Empty = any public host.
	MaxResponseBytes int64         // Default: 2 MB.
	Timeout          time.Duration // Default: 15s.
	CacheSize        int           // Default: 256 entries.
	CacheTTL         time.Duration // Default: 5m.
}

func (c Config) maxBytes() int64 {
	if c.MaxResponseBytes > 0 {
		return c.MaxResponseBytes
	}
	return 2 << 20
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 15 * time.Second
}

func (c Config) cacheSize() int {
	if c.CacheSize > 0 {
		return c.CacheSize
	}
	return 256
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTL > 0 {
		return c.CacheTTL
	}
	return 5 * time.Minute
}

// Scraper fetches pages within the configured restrictions.
type Scraper struct {
	config  Config
	client  *http.Client
	cache   *pageCache
	logger  *slog.Logger
	metrics *observability.MetricsCollector

	// resolve is swapped out in tests.
	resolve func(host string) ([]net.IP, error)
}

// Option configures the Scraper.
type Option func(*Scraper)

// WithMetrics attaches fetch and cache metrics. nil disables them.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithHTTPClient sets a custom HTTP client. The redirect policy is still
// replaced with the allowlist-checking one.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) { s.client = client }
}

// New creates a Scraper.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		config:  cfg,
		client:  &http.Client{},
		cache:   newPageCache(cfg.cacheSize(), cfg.cacheTTL()),
		logger:  logger,
		resolve: lookupIPs,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client.CheckRedirect = s.checkRedirect
	return s
}

// Fetch retrieves the page at rawURL, serving from cache when possible.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only http/https schemes allowed, got %q", parsed.Scheme)
	}
	if err := s.checkHost(parsed.Hostname()); err != nil {
		s.countFetch("blocked")
		return nil, err
	}

	if page, ok := s.cache.get(rawURL); ok {
		s.countCache("hit")
		cached := *page
		cached.FromCache = true
		return &cached, nil
	}
	s.countCache("miss")

	ctx, cancel := context.WithTimeout(ctx, s.config.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	s.logger.DebugContext(ctx, "fetching page", slog.String("url", rawURL))

	resp, err := s.client.Do(req)
	if err != nil {
		s.countFetch("error")
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	maxBytes := s.config.maxBytes()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		s.countFetch("error")
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}

	truncated := false
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}

	page := &Page{
		URL:        resp.Request.URL.String(),
		Content:    string(body),
		StatusCode: resp.StatusCode,
		Truncated:  truncated,
		FetchedAt:  time.Now().UTC(),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		s.cache.put(rawURL, page)
		s.countFetch("success")
	} else {
		s.countFetch("http_error")
	}
	return page, nil
}

// checkHost enforces the allowlist and blocks hosts resolving to private
// address space.
func (s *Scraper) checkHost(host string) error {
	if len(s.config.AllowedDomains) > 0 && !domainAllowed(host, s.config.AllowedDomains) {
		return fmt.Errorf("domain %q is not in the allowlist", host)
	}

	ips, err := s.resolve(host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("fetch blocked: host %q resolves to private address %s", host, ip)
		}
	}
	return nil
}

// checkRedirect re-validates every redirect target.
func (s *Scraper) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("too many redirects (max 5)")
	}
	if err := s.checkHost(req.URL.Hostname()); err != nil {
		return fmt.Errorf("redirect blocked: %w", err)
	}
	return nil
}

func (s *Scraper) countFetch(status string) {
	if s.metrics != nil {
		s.metrics.ScrapeFetchesTotal.WithLabelValues(status).Inc()
	}
}

func (s *Scraper) countCache(event string) {
	if s.metrics != nil {
		s.metrics.ScrapeCacheEvents.WithLabelValues(event).Inc()
	}
}
