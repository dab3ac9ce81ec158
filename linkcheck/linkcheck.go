// Package linkcheck finds unreachable links in post content.
package linkcheck

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/stats"
)

// Link cache entry
type linkCacheEntry struct {
	accessible bool
	details    string
	timestamp  time.Time
}

// Checker probes links with HEAD requests, falling back to GET when HEAD is refused.
type Checker struct {
	client       *http.Client
	limiter      *rate.Limiter
	userAgent    string
	concurrency  int
	cache        map[string]linkCacheEntry
	cacheMutex   sync.RWMutex
	cacheTTL     time.Duration
	maxCacheSize int
	stats        *stats.Storage
}

// Option configures a Checker.
type Option func(*Checker)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

// WithConcurrency bounds the number of links probed at once.
func WithConcurrency(n int) Option {
	return func(ch *Checker) {
		if n > 0 {
			ch.concurrency = n
		}
	}
}

// WithCacheTTL sets how long a probe result is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(ch *Checker) { ch.cacheTTL = d }
}

// WithRateLimit paces outgoing probes.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(ch *Checker) { ch.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithStats records checked links and cache hits.
func WithStats(s *stats.Storage) Option {
	return func(ch *Checker) { ch.stats = s }
}

// New creates a Checker with a 5s per-link timeout, 10 concurrent probes and a 10 minute cache.
func New(opts ...Option) *Checker {
	c := &Checker{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:    "SureRankAnalyzer/1.0",
		concurrency:  10,
		cache:        make(map[string]linkCacheEntry),
		cacheTTL:     10 * time.Minute,
		maxCacheSize: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check probes every URL, resolving relative ones against base, and returns the unreachable ones.
// Broken links keep the href as written so they can be matched against the page's links later.
func (c *Checker) Check(ctx context.Context, base string, urls []string) []checks.BrokenLink {
	baseURL, _ := url.Parse(base)

	type result struct {
		href    string
		ok      bool
		details string
	}
	results := make([]result, len(urls))
	for i, href := range urls {
		results[i] = result{href: href, ok: true}
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, c.concurrency)

probing:
	for i, href := range urls {
		if checks.ShouldSkipURL(href) {
			continue
		}
		target, err := resolve(baseURL, href)
		if err != nil {
			continue
		}

		select {
		case <-ctx.Done():
			break probing
		default:
		}

		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ok, details := c.isLinkAccessible(ctx, target)
			results[i].ok = ok
			results[i].details = details
		}(i, target)
	}
	wg.Wait()

	broken := make([]checks.BrokenLink, 0)
	for _, r := range results {
		if !r.ok {
			broken = append(broken, checks.NewBrokenLink(r.href, r.details))
		}
	}

	c.stats.Add(stats.Counters{LinksChecked: len(urls), BrokenLinks: len(broken)})
	return broken
}

func resolve(base *url.URL, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("cannot check relative URL without a base")
	}
	return u.String(), nil
}

// isLinkAccessible probes one absolute URL, consulting the cache first.
func (c *Checker) isLinkAccessible(ctx context.Context, target string) (bool, string) {
	cacheKey := generateCacheKey(target)
	c.cacheMutex.RLock()
	if entry, found := c.cache[cacheKey]; found && time.Since(entry.timestamp) < c.cacheTTL {
		c.cacheMutex.RUnlock()
		c.stats.Add(stats.Counters{LinkCacheHits: 1})
		return entry.accessible, entry.details
	}
	c.cacheMutex.RUnlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return true, ""
		}
	}

	status, err := c.probe(ctx, http.MethodHead, target)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.probe(ctx, http.MethodGet, target)
	}
	if ctx.Err() != nil {
		// Cancelled probes say nothing about the link.
		return true, ""
	}

	var entry linkCacheEntry
	switch {
	case err != nil:
		entry = linkCacheEntry{details: err.Error()}
	case status >= 200 && status < 400:
		entry = linkCacheEntry{accessible: true}
	default:
		entry = linkCacheEntry{details: fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))}
	}
	c.cacheAndReturnLinkStatus(cacheKey, entry)
	return entry.accessible, entry.details
}

func (c *Checker) probe(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func (c *Checker) cacheAndReturnLinkStatus(cacheKey string, entry linkCacheEntry) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	entry.timestamp = time.Now()
	c.cache[cacheKey] = entry
	if len(c.cache) > c.maxCacheSize {
		c.cleanupLocked()
	}
}

// cleanupLocked drops expired entries, then the oldest ones until the cache fits.
func (c *Checker) cleanupLocked() {
	now := time.Now()
	for key, entry := range c.cache {
		if now.Sub(entry.timestamp) > c.cacheTTL {
			delete(c.cache, key)
		}
	}
	if len(c.cache) <= c.maxCacheSize {
		return
	}

	type aged struct {
		key       string
		timestamp time.Time
	}
	entries := make([]aged, 0, len(c.cache))
	for key, entry := range c.cache {
		entries = append(entries, aged{key, entry.timestamp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].timestamp.Before(entries[j].timestamp)
	})
	for i := 0; i < len(entries)-c.maxCacheSize; i++ {
		delete(c.cache, entries[i].key)
	}
}

// ClearCache forgets every probe result.
func (c *Checker) ClearCache() {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache = make(map[string]linkCacheEntry)
}

func generateCacheKey(u string) string {
	hash := md5.Sum([]byte(u))
	return hex.EncodeToString(hash[:])
}
