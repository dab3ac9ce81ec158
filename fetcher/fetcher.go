// Package fetcher retrieves raw HTML over HTTP and keeps the last response around for header queries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/surerank/seo-analyzer/seoerr"
)

const (
	// DefaultTimeout bounds a single GET.
	DefaultTimeout = 10 * time.Second

	// FinalURLHeader is set on the cached response when redirects were followed.
	FinalURLHeader = "X-Final-Url"

	defaultUserAgent = "SureRankAnalyzer/1.0"
	maxBodySize      = 10 * 1024 * 1024
)

// Fetcher performs blocking GETs and caches the last response, body and status code.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter

	// Headers are sent with every request and override the defaults.
	Headers http.Header

	mu       sync.Mutex
	lastURL  string
	lastResp *http.Response
	body     string
	status   int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithClient swaps the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRateLimit paces outgoing requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		if perSecond > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(name, value string) Option {
	return func(f *Fetcher) { f.Headers.Set(name, value) }
}

// New creates a Fetcher with a pooled transport and a 10s timeout.
func New(opts ...Option) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		Headers: http.Header{},
	}
	f.Headers.Set("User-Agent", defaultUserAgent)
	f.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a GET for rawURL and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.do(ctx, rawURL); err != nil {
		return "", err
	}
	return f.body, nil
}

// FetchStatus returns the status code for rawURL, reusing the cached response when it is for the same URL.
func (f *Fetcher) FetchStatus(ctx context.Context, rawURL string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastResp != nil && f.lastURL == rawURL {
		return f.status, nil
	}
	if err := f.do(ctx, rawURL); err != nil && !errorsIsEmpty(err) {
		return 0, err
	}
	return f.status, nil
}

// Header returns a header of the last response.
func (f *Fetcher) Header(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastResp == nil {
		return "", seoerr.New(seoerr.KindInvalidInput, "fetcher.Header", "no response available")
	}
	return f.lastResp.Header.Get(name), nil
}

// Body returns the body of the last response.
func (f *Fetcher) Body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body
}

// StatusCode returns the status of the last response, 0 when nothing was fetched.
func (f *Fetcher) StatusCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

func (f *Fetcher) do(ctx context.Context, rawURL string) error {
	const op = "fetcher.Fetch"

	f.lastURL = rawURL
	f.lastResp = nil
	f.body = ""
	f.status = 0

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return seoerr.Wrap(seoerr.KindTransport, op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return seoerr.Wrap(seoerr.KindTransport, op, err)
	}
	for name, values := range f.Headers {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return seoerr.Wrap(seoerr.KindTransport, op, categorize(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return seoerr.Wrap(seoerr.KindTransport, op, fmt.Errorf("failed to read body: %w", err))
	}

	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != rawURL {
			resp.Header.Set(FinalURLHeader, final)
		}
	}

	f.lastResp = resp
	f.body = string(data)
	f.status = resp.StatusCode

	if resp.StatusCode == http.StatusOK && strings.TrimSpace(f.body) == "" {
		return seoerr.New(seoerr.KindEmptyResponse, op, "empty response body from %s", rawURL)
	}
	return nil
}

func errorsIsEmpty(err error) bool {
	return seoerr.KindOf(err) == seoerr.KindEmptyResponse
}

// categorize labels common network failures.
func categorize(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("DNS error: %w", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("connection failed: %w", err)
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "certificate") {
		return fmt.Errorf("TLS error: %w", err)
	}
	return err
}
