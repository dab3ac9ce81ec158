package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/surerank/seo-analyzer/checks"
)

type fakeAuditor struct {
	mu    sync.Mutex
	calls []string
	fresh []bool
	err   error
}

func (f *fakeAuditor) Analyze(_ context.Context, rawURL string, fresh bool) (*checks.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	f.fresh = append(f.fresh, fresh)
	if f.err != nil {
		return nil, f.err
	}
	rs := checks.NewResultSet()
	rs.Set(checks.KeyReachability, checks.Reachability(nil))
	return rs, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantNil  bool
		wantErr  bool
	}{
		{"empty schedule disables", "", true, false},
		{"descriptor", "@every 6h", false, false},
		{"five fields", "0 3 * * *", false, false},
		{"invalid", "not a schedule", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.schedule, &fakeAuditor{}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (s == nil) != tt.wantNil {
				t.Errorf("scheduler nil = %v, want %v", s == nil, tt.wantNil)
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	auditor := &fakeAuditor{}
	s, err := New("@daily", auditor, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.RunOnce()
	auditor.err = errors.New("site down")
	s.RunOnce()

	if len(auditor.calls) != 2 {
		t.Fatalf("expected 2 audits, got %d", len(auditor.calls))
	}
	for i := range auditor.calls {
		if auditor.calls[i] != "" || !auditor.fresh[i] {
			t.Errorf("audit %d: url=%q fresh=%v, want home page and fresh", i, auditor.calls[i], auditor.fresh[i])
		}
	}
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", &fakeAuditor{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()

	var disabled *Scheduler
	disabled.Start(context.Background())
	disabled.Stop()
}
