package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/surerank/seo-analyzer/seoerr"
)

// RedirectHop is one step of a redirect chain.
type RedirectHop struct {
	URL        string
	StatusCode int
	Location   string
}

// ProbeResult describes where a HEAD request ended up.
type ProbeResult struct {
	RequestURL    string
	FinalURL      string
	StatusCode    int
	RedirectChain []RedirectHop
}

// Redirected reports whether at least one redirect was followed.
func (p *ProbeResult) Redirected() bool {
	return len(p.RedirectChain) > 0
}

// Probe issues HEAD requests for rawURL, following up to maxHops redirects by hand so the chain is recorded.
// timeout bounds the whole chain, not each hop.
func (f *Fetcher) Probe(ctx context.Context, rawURL string, maxHops int, timeout time.Duration) (*ProbeResult, error) {
	const op = "fetcher.Probe"

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Transport: f.client.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	result := &ProbeResult{RequestURL: rawURL}
	current := rawURL

	for hop := 0; hop <= maxHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
		if err != nil {
			return nil, seoerr.Wrap(seoerr.KindTransport, op, err)
		}
		req.Header.Set("User-Agent", f.Headers.Get("User-Agent"))

		resp, err := client.Do(req)
		if err != nil {
			return nil, seoerr.Wrap(seoerr.KindTransport, op, categorize(err))
		}
		resp.Body.Close()

		location := resp.Header.Get("Location")
		if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
			result.FinalURL = current
			result.StatusCode = resp.StatusCode
			return result, nil
		}

		result.RedirectChain = append(result.RedirectChain, RedirectHop{
			URL:        current,
			StatusCode: resp.StatusCode,
			Location:   location,
		})

		next, err := resolveRedirect(current, location)
		if err != nil {
			return nil, seoerr.Wrap(seoerr.KindTransport, op, fmt.Errorf("invalid redirect location: %w", err))
		}
		current = next
	}

	return nil, seoerr.New(seoerr.KindTransport, op, "max redirects (%d) exceeded", maxHops)
}

func resolveRedirect(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(loc).String(), nil
}
