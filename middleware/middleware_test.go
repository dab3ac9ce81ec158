package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surerank/seo-analyzer/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestErrorHandler(t *testing.T) {
	var logs bytes.Buffer
	r := gin.New()
	r.Use(ErrorHandler(quietLogger(&logs)))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["status"] != "error" || body["message"] == "" {
		t.Errorf("unexpected body %v", body)
	}
	if !strings.Contains(logs.String(), "kaboom") {
		t.Errorf("panic not logged: %s", logs.String())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	tests := []struct {
		name    string
		ip      string
		advance time.Duration
		want    bool
	}{
		{"first request", "10.0.0.1", 0, true},
		{"burst", "10.0.0.1", 0, true},
		{"over the limit", "10.0.0.1", 0, false},
		{"other client", "10.0.0.2", 0, true},
		{"refilled", "10.0.0.1", time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			if got := rl.Allow(tt.ip); got != tt.want {
				t.Errorf("Allow(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}

	now = now.Add(time.Hour)
	if removed := rl.Sweep(); removed != 2 {
		t.Errorf("expected 2 idle clients removed, got %d", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes %v", codes)
	}
}

func TestRequestLogger(t *testing.T) {
	var logs bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(quietLogger(&logs)))
	r.GET("/api/health", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	id := w.Header().Get(RequestIDHeader)
	if len(id) != 36 || w.Body.String() != id {
		t.Errorf("request id %q not generated or not stored (body %q)", id, w.Body.String())
	}
	if !strings.Contains(logs.String(), "request_id="+id) {
		t.Errorf("request not logged with its id: %s", logs.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("incoming request id not reused, got %q", got)
	}
}

func TestStatsMiddleware(t *testing.T) {
	storage, err := stats.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer storage.Shutdown()

	r := gin.New()
	r.Use(StatsMiddleware(storage))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/favicon.ico", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/api/health", "/api/health", "/favicon.ico"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := storage.Current().APIRequests; got != 2 {
		t.Errorf("expected 2 API requests counted, got %d", got)
	}
}
