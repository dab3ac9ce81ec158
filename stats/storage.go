// Package stats keeps monthly analysis counters in a JSON file under the data directory.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

const (
	monthLayout   = "2006-01"
	fileName      = "stats.json"
	flushInterval = 5 * time.Minute
	flushDebounce = time.Minute
)

// Counters are the analysis events tracked per month.
type Counters struct {
	PostAnalyses    int `json:"post_analyses"`
	TermAnalyses    int `json:"term_analyses"`
	SiteAnalyses    int `json:"site_analyses"`
	Failures        int `json:"failures"`
	SiteCacheHits   int `json:"site_cache_hits"`
	SiteCacheMisses int `json:"site_cache_misses"`
	LinksChecked    int `json:"links_checked"`
	LinkCacheHits   int `json:"link_cache_hits"`
	BrokenLinks     int `json:"broken_links"`
	APIRequests     int `json:"api_requests"`
}

func (c *Counters) add(d Counters) {
	c.PostAnalyses += d.PostAnalyses
	c.TermAnalyses += d.TermAnalyses
	c.SiteAnalyses += d.SiteAnalyses
	c.Failures += d.Failures
	c.SiteCacheHits += d.SiteCacheHits
	c.SiteCacheMisses += d.SiteCacheMisses
	c.LinksChecked += d.LinksChecked
	c.LinkCacheHits += d.LinkCacheHits
	c.BrokenLinks += d.BrokenLinks
	c.APIRequests += d.APIRequests
}

// MonthlyStats are the counters of one calendar month.
type MonthlyStats struct {
	Counters
	LastUpdated time.Time `json:"last_updated"`
}

// Storage accumulates counters in memory and flushes them to disk from a background goroutine.
// A nil *Storage accepts Add and Shutdown calls and records nothing.
type Storage struct {
	mu        sync.RWMutex
	months    map[string]*MonthlyStats // keyed by YYYY-MM
	path      string
	lastFlush time.Time
	dirty     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewStorage opens the counters file in dataDir, creating the directory when needed.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	s := &Storage{
		months: make(map[string]*MonthlyStats),
		path:   filepath.Join(dataDir, fileName),
		dirty:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	if err := s.read(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	go s.flusher()
	return s, nil
}

func (s *Storage) read() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.months)
}

// flush replaces the counters file atomically.
func (s *Storage) flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.months, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *Storage) flusher() {
	defer close(s.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-s.dirty:
		case <-ticker.C:
		}
		if err := s.flush(); err != nil {
			slog.Error("Failed to save statistics", "path", s.path, "error", err)
		}
	}
}

func (s *Storage) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Add adds delta to the current month's counters.
func (s *Storage) Add(delta Counters) {
	if s == nil {
		return
	}
	now := s.now()
	key := now.Format(monthLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.months[key]
	if m == nil {
		m = &MonthlyStats{}
		s.months[key] = m
	}
	m.add(delta)
	m.LastUpdated = now

	if now.Sub(s.lastFlush) > flushDebounce {
		s.lastFlush = now
		s.markDirty()
	}
}

// Current returns a copy of this month's counters.
func (s *Storage) Current() MonthlyStats {
	m, _ := s.Month(s.now().Format(monthLayout))
	return m
}

// Month returns the counters of yearMonth (YYYY-MM).
func (s *Storage) Month(yearMonth string) (MonthlyStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.months[yearMonth]; ok {
		return *m, true
	}
	return MonthlyStats{}, false
}

// Months lists the recorded months, newest first.
func (s *Storage) Months() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.months))
	for k := range s.months {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	slices.Reverse(keys)
	return keys
}

// Cleanup keeps the current month and the retainMonths-1 months before it.
func (s *Storage) Cleanup(retainMonths int) {
	retainMonths = max(retainMonths, 1)
	now := s.now()
	keep := make(map[string]bool, retainMonths)
	for i := range retainMonths {
		first := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		keep[first.Format(monthLayout)] = true
	}

	s.mu.Lock()
	removed := 0
	for k := range s.months {
		if !keep[k] {
			delete(s.months, k)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.markDirty()
	}
	slog.Debug("Pruned statistics", "retain_months", retainMonths, "removed", removed)
}

// Shutdown stops the background writer and flushes the counters to disk.
func (s *Storage) Shutdown() error {
	if s == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.flush()
}
