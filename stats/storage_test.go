package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStorage(t *testing.T) {
	dir := t.TempDir()

	storage, err := NewStorage(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	t.Run("Add", func(t *testing.T) {
		storage.Add(Counters{PostAnalyses: 1, SiteAnalyses: 2, SiteCacheHits: 3, BrokenLinks: 4})
		storage.Add(Counters{PostAnalyses: 1})
		got := storage.Current()

		want := Counters{PostAnalyses: 2, SiteAnalyses: 2, SiteCacheHits: 3, BrokenLinks: 4}
		if got.Counters != want {
			t.Errorf("counters = %+v, want %+v", got.Counters, want)
		}
		if got.LastUpdated.IsZero() {
			t.Error("LastUpdated should be set")
		}
	})

	t.Run("Persistence", func(t *testing.T) {
		if err := storage.flush(); err != nil {
			t.Fatalf("flush failed: %v", err)
		}

		reopened, err := NewStorage(dir)
		if err != nil {
			t.Fatalf("Failed to reopen storage: %v", err)
		}
		defer reopened.Shutdown()

		if got := reopened.Current().PostAnalyses; got != 2 {
			t.Errorf("post analyses after reload = %d, want 2", got)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		now := time.Now()
		old := time.Date(now.Year(), now.Month()-2, 1, 0, 0, 0, 0, now.Location()).Format(monthLayout)
		prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location()).Format(monthLayout)
		storage.mu.Lock()
		storage.months[old] = &MonthlyStats{Counters: Counters{PostAnalyses: 100}}
		storage.months[prev] = &MonthlyStats{Counters: Counters{PostAnalyses: 50}}
		storage.mu.Unlock()

		storage.Cleanup(2)

		if _, ok := storage.Month(old); ok {
			t.Error("month outside the retention window should be removed")
		}
		if _, ok := storage.Month(prev); !ok {
			t.Error("previous month should be retained")
		}
		if months := storage.Months(); len(months) != 2 || months[1] != prev {
			t.Errorf("unexpected months %v", months)
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		before := storage.Current()

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					storage.Add(Counters{TermAnalyses: 1, APIRequests: 1})
					storage.Current()
				}
			}()
		}
		wg.Wait()

		after := storage.Current()
		if got := after.TermAnalyses - before.TermAnalyses; got != 1000 {
			t.Errorf("term analyses delta = %d, want 1000", got)
		}
		if got := after.APIRequests - before.APIRequests; got != 1000 {
			t.Errorf("API requests delta = %d, want 1000", got)
		}
	})

	t.Run("Shutdown", func(t *testing.T) {
		if err := storage.Shutdown(); err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
		if err := storage.Shutdown(); err != nil {
			t.Fatalf("second Shutdown failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, fileName)); err != nil {
			t.Errorf("stats file missing after shutdown: %v", err)
		}
	})
}

func TestCleanupAtMonthEnd(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Shutdown()

	storage.now = func() time.Time { return time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC) }
	storage.mu.Lock()
	storage.months["2026-01"] = &MonthlyStats{Counters: Counters{PostAnalyses: 1}}
	storage.months["2026-02"] = &MonthlyStats{Counters: Counters{PostAnalyses: 2}}
	storage.months["2026-03"] = &MonthlyStats{Counters: Counters{PostAnalyses: 3}}
	storage.mu.Unlock()

	storage.Cleanup(2)

	got := storage.Months()
	if len(got) != 2 || got[0] != "2026-03" || got[1] != "2026-02" {
		t.Errorf("months after cleanup = %v, want [2026-03 2026-02]", got)
	}
}

func TestNilStorage(t *testing.T) {
	var s *Storage
	s.Add(Counters{PostAnalyses: 1})
	if err := s.Shutdown(); err != nil {
		t.Errorf("nil Shutdown returned %v", err)
	}
}
