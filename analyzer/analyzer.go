// Package analyzer orchestrates the SEO check battery for posts, terms and whole sites.
package analyzer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/logging"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

// Cache entry with expiration
type cacheEntry struct {
	analyzer  *SiteAnalyzer
	timestamp time.Time
}

// CacheStats describes the site cache.
type CacheStats struct {
	Entries int           `json:"entries"`
	Hits    int           `json:"hits"`
	Misses  int           `json:"misses"`
	TTL     time.Duration `json:"ttl"`
}

// SiteCache keeps one site analyzer per URL for a limited time, so repeated checks of a page
// reuse a single fetch while different URLs never share an analyzer.
type SiteCache struct {
	deps            SiteDeps
	cache           map[string]cacheEntry
	cacheMutex      sync.RWMutex
	cacheTTL        time.Duration
	maxCacheSize    int
	cleanupInterval time.Duration
	hits, misses    int
	stats           *stats.Storage
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewSiteCache creates a cache holding analyzers for ttl and starts its cleanup goroutine.
func NewSiteCache(deps SiteDeps, ttl time.Duration, st *stats.Storage) *SiteCache {
	deps.fill()
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	c := &SiteCache{
		deps:            deps,
		cache:           make(map[string]cacheEntry),
		cacheTTL:        ttl,
		maxCacheSize:    100,
		cleanupInterval: 5 * time.Minute,
		stats:           st,
		stop:            make(chan struct{}),
	}
	go c.periodicCleanup()
	return c
}

// generateCacheKey creates a unique key for the URL
func generateCacheKey(url string) string {
	hash := md5.Sum([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached analyzer for rawURL or builds a new one.
// Analyzers whose page could not be loaded are not cached so the next call retries.
func (c *SiteCache) Get(ctx context.Context, rawURL string) *SiteAnalyzer {
	key := generateCacheKey(rawURL)

	c.cacheMutex.RLock()
	entry, found := c.cache[key]
	c.cacheMutex.RUnlock()
	if found && time.Since(entry.timestamp) < c.cacheTTL {
		c.count(true)
		return entry.analyzer
	}

	c.count(false)
	a := NewSiteAnalyzer(ctx, rawURL, c.deps)
	if a.Usable() {
		c.cacheMutex.Lock()
		c.cache[key] = cacheEntry{analyzer: a, timestamp: time.Now()}
		c.cacheMutex.Unlock()
	}
	return a
}

// IsCached checks if a URL is in the cache and not expired
func (c *SiteCache) IsCached(rawURL string) bool {
	c.cacheMutex.RLock()
	defer c.cacheMutex.RUnlock()

	entry, found := c.cache[generateCacheKey(rawURL)]
	return found && time.Since(entry.timestamp) < c.cacheTTL
}

// Invalidate drops the analyzer cached for rawURL.
func (c *SiteCache) Invalidate(rawURL string) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	delete(c.cache, generateCacheKey(rawURL))
}

// ClearCache empties the cache.
func (c *SiteCache) ClearCache() {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// Stats returns statistics about the cache.
func (c *SiteCache) Stats() CacheStats {
	c.cacheMutex.RLock()
	defer c.cacheMutex.RUnlock()
	return CacheStats{Entries: len(c.cache), Hits: c.hits, Misses: c.misses, TTL: c.cacheTTL}
}

func (c *SiteCache) count(hit bool) {
	c.cacheMutex.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.cacheMutex.Unlock()

	if hit {
		c.stats.Add(stats.Counters{SiteCacheHits: 1})
	} else {
		c.stats.Add(stats.Counters{SiteCacheMisses: 1})
	}
}

func (c *SiteCache) periodicCleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes expired entries, then the oldest ones while over the size limit.
func (c *SiteCache) cleanup() {
	now := time.Now()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	for key, entry := range c.cache {
		if now.Sub(entry.timestamp) > c.cacheTTL {
			delete(c.cache, key)
		}
	}
	if len(c.cache) <= c.maxCacheSize {
		return
	}

	entries := make([]struct {
		key       string
		timestamp time.Time
	}, 0, len(c.cache))
	for key, entry := range c.cache {
		entries = append(entries, struct {
			key       string
			timestamp time.Time
		}{key, entry.timestamp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].timestamp.Before(entries[j].timestamp)
	})
	for i := 0; i < len(entries)-c.maxCacheSize; i++ {
		delete(c.cache, entries[i].key)
	}
}

// Shutdown stops the cleanup goroutine and drops every entry.
func (c *SiteCache) Shutdown() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
	c.ClearCache()
}

// SiteService runs site audits through the cache and persists their results.
type SiteService struct {
	cache  *SiteCache
	store  ChecksStore
	stats  *stats.Storage
	logger *slog.Logger
	now    func() time.Time
}

// NewSiteService creates a site service.
func NewSiteService(cache *SiteCache, st ChecksStore, statsStorage *stats.Storage, logger *slog.Logger) *SiteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteService{cache: cache, store: st, stats: statsStorage, logger: logger, now: time.Now}
}

// Analyze audits rawURL, or the configured home URL when rawURL is empty.
// With fresh set the cached page is refetched.
func (s *SiteService) Analyze(ctx context.Context, rawURL string, fresh bool) (*checks.ResultSet, error) {
	const op = "analyzer.SiteService.Analyze"

	home := s.cache.deps.Settings.Site.HomeURL
	target := strings.TrimSpace(rawURL)
	if target == "" {
		target = home
	}
	if target == "" {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "no URL given and no home URL configured")
	}
	if fresh {
		s.cache.Invalidate(target)
	}

	start := time.Now()
	a := s.cache.Get(ctx, target)
	rs := a.Run(ctx)

	if !a.Usable() {
		s.stats.Add(stats.Counters{Failures: 1})
	}
	// Only the home page audit is the stored site record.
	if s.store != nil && sameURL(target, home) {
		if _, err := s.store.MergeChecks(ctx, store.KindSite, 0, rs, s.now()); err != nil {
			return nil, err
		}
	}

	s.stats.Add(stats.Counters{SiteAnalyses: 1})
	s.logger.Info("Analyzed site", "url", logging.CleanURL(target), "duration", time.Since(start), "worst", rs.Worst())
	return rs, nil
}

// sameURL compares two URLs ignoring scheme and host case and a trailing slash.
func sameURL(a, b string) bool {
	ua, errA := url.Parse(strings.TrimSpace(a))
	ub, errB := url.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil || ua.Host == "" || ub.Host == "" {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/") &&
		ua.RawQuery == ub.RawQuery
}
