package analyzer

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/fetcher"
	"github.com/surerank/seo-analyzer/htmldoc"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/settings"
)

const (
	wwwProbeHops    = 5
	wwwProbeTimeout = 8 * time.Second
)

var errInvalidURL = seoerr.New(seoerr.KindInvalidInput, "analyzer.NewSiteAnalyzer", "invalid URL format")

// SiteDeps are the collaborators of a site analyzer.
type SiteDeps struct {
	Settings *settings.Settings
	// NewFetcher returns a fetcher for one analysis. Fetchers keep the last response, so they are not shared.
	NewFetcher func() *fetcher.Fetcher
}

func (d *SiteDeps) fill() {
	if d.Settings == nil {
		d.Settings = settings.Default()
	}
	if d.NewFetcher == nil {
		d.NewFetcher = func() *fetcher.Fetcher { return fetcher.New() }
	}
}

// SiteAnalyzer holds one fetched and parsed page and runs the site level checks against it.
// Every check is safe to call when the page could not be fetched or parsed.
type SiteAnalyzer struct {
	deps     SiteDeps
	lib      checks.Library
	url      string
	host     string
	finalURL string
	raw      string
	doc      *htmldoc.Document
	errs     []string
	fetchErr error
}

// NewSiteAnalyzer validates rawURL, fetches it once and parses the body.
func NewSiteAnalyzer(ctx context.Context, rawURL string, deps SiteDeps) *SiteAnalyzer {
	deps.fill()
	a := &SiteAnalyzer{deps: deps, lib: deps.Settings.Library(), url: strings.TrimSpace(rawURL)}

	u, err := url.Parse(a.url)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		a.fetchErr = errInvalidURL
		a.errs = append(a.errs, errInvalidURL.Error())
		return a
	}
	a.host = u.Hostname()

	f := deps.NewFetcher()
	defer f.Close()

	body, err := f.Fetch(ctx, a.url)
	if err != nil {
		a.fetchErr = err
		a.errs = append(a.errs, err.Error())
		return a
	}
	a.raw = body
	if final, err := f.Header(fetcher.FinalURLHeader); err == nil {
		a.finalURL = final
	}

	doc, err := htmldoc.Parse(body)
	if err != nil {
		a.errs = append(a.errs, err.Error())
		return a
	}
	a.doc = doc
	return a
}

// URL is the analyzed URL.
func (a *SiteAnalyzer) URL() string { return a.url }

// Host is the host of the analyzed URL.
func (a *SiteAnalyzer) Host() string { return a.host }

// Raw is the fetched HTML.
func (a *SiteAnalyzer) Raw() string { return a.raw }

// Document is the parsed page, nil when fetching or parsing failed.
func (a *SiteAnalyzer) Document() *htmldoc.Document { return a.doc }

// Errors lists why the page is unavailable.
func (a *SiteAnalyzer) Errors() []string { return append([]string(nil), a.errs...) }

// Usable reports whether a document is held.
func (a *SiteAnalyzer) Usable() bool { return a.doc != nil }

func (a *SiteAnalyzer) withDoc(check func(*htmldoc.Document) checks.Finding) checks.Finding {
	if a.doc == nil {
		return checks.MissingDocument(a.errs)
	}
	return check(a.doc)
}

func (a *SiteAnalyzer) Title() checks.Finding { return a.withDoc(a.lib.SiteTitle) }

func (a *SiteAnalyzer) Description() checks.Finding { return a.withDoc(a.lib.SiteDescription) }

func (a *SiteAnalyzer) H1() checks.Finding { return a.withDoc(checks.SiteH1) }

func (a *SiteAnalyzer) H2() checks.Finding { return a.withDoc(checks.SiteH2) }

func (a *SiteAnalyzer) Images() checks.Finding {
	return a.withDoc(func(doc *htmldoc.Document) checks.Finding {
		return checks.SiteImageAlt(doc, a.deps.Settings.AutoImageAlt)
	})
}

func (a *SiteAnalyzer) Links() checks.Finding {
	return a.withDoc(func(doc *htmldoc.Document) checks.Finding {
		return checks.SiteInternalLinks(doc, a.host)
	})
}

func (a *SiteAnalyzer) Canonical() checks.Finding { return a.withDoc(checks.SiteCanonical) }

func (a *SiteAnalyzer) Indexing() checks.Finding { return a.withDoc(checks.SiteIndexing) }

func (a *SiteAnalyzer) OpenGraph() checks.Finding { return a.withDoc(checks.SiteOpenGraph) }

func (a *SiteAnalyzer) Schema() checks.Finding { return a.withDoc(checks.SiteSchema) }

// Reachability trusts the initial fetch when the page is the configured home page.
// Otherwise the scanned URL is fetched again.
func (a *SiteAnalyzer) Reachability(ctx context.Context) checks.Finding {
	if errors.Is(a.fetchErr, seoerr.ErrInvalidInput) {
		return checks.Reachability(a.fetchErr)
	}
	if a.fetchErr == nil && a.host != "" && strings.EqualFold(a.host, a.deps.Settings.HomeHost()) {
		return checks.Reachability(nil)
	}

	f := a.deps.NewFetcher()
	defer f.Close()
	_, err := f.Fetch(ctx, a.url)
	return checks.Reachability(err)
}

// SecureConnection looks at the URL reached after redirects. Without one it falls back to the
// configured home URL, then to the analyzed URL.
func (a *SiteAnalyzer) SecureConnection() checks.Finding {
	effective := a.finalURL
	if effective == "" {
		effective = a.deps.Settings.Site.HomeURL
	}
	if effective == "" {
		effective = a.url
	}
	return checks.SecureConnection(effective)
}

// WWWCanonicalization probes the www-toggled host and expects it to stay put or redirect back.
// Subdomains other than www are skipped.
func (a *SiteAnalyzer) WWWCanonicalization(ctx context.Context) checks.Finding {
	u, err := url.Parse(a.url)
	if err != nil || a.host == "" {
		return checks.WWWCanonicalization(checks.WWWOutcome{Err: errInvalidURL})
	}

	host := strings.ToLower(a.host)
	labels := strings.Split(host, ".")
	if len(labels) > 2 && !strings.HasPrefix(host, "www.") {
		return checks.WWWCanonicalization(checks.WWWOutcome{Skipped: true, OriginalHost: host})
	}

	alternate := "www." + host
	if strings.HasPrefix(host, "www.") {
		alternate = strings.TrimPrefix(host, "www.")
	}
	alt := *u
	alt.Host = alternate
	if port := u.Port(); port != "" {
		alt.Host = alternate + ":" + port
	}

	outcome := checks.WWWOutcome{OriginalHost: host, AlternateURL: alt.String()}

	f := a.deps.NewFetcher()
	defer f.Close()
	res, err := f.Probe(ctx, outcome.AlternateURL, wwwProbeHops, wwwProbeTimeout)
	if err != nil {
		outcome.Err = err
		return checks.WWWCanonicalization(outcome)
	}
	outcome.Redirected = res.Redirected()
	if final, err := url.Parse(res.FinalURL); err == nil {
		outcome.FinalHost = strings.ToLower(final.Hostname())
	}
	return checks.WWWCanonicalization(outcome)
}

// Pipeline returns the full site battery bound to ctx.
func (a *SiteAnalyzer) Pipeline(ctx context.Context) *checks.Pipeline[*SiteAnalyzer] {
	return checks.NewPipeline(
		checks.Check[*SiteAnalyzer]{Name: checks.KeyTitle, Fn: (*SiteAnalyzer).Title},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyDescription, Fn: (*SiteAnalyzer).Description},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyH1, Fn: (*SiteAnalyzer).H1},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyH2, Fn: (*SiteAnalyzer).H2},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyImageAltText, Fn: (*SiteAnalyzer).Images},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyLinks, Fn: (*SiteAnalyzer).Links},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyCanonicalURL, Fn: (*SiteAnalyzer).Canonical},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyIndexing, Fn: (*SiteAnalyzer).Indexing},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyReachability, Fn: func(s *SiteAnalyzer) checks.Finding {
			return s.Reachability(ctx)
		}},
		checks.Check[*SiteAnalyzer]{Name: checks.KeySecureConnection, Fn: (*SiteAnalyzer).SecureConnection},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyOpenGraph, Fn: (*SiteAnalyzer).OpenGraph},
		checks.Check[*SiteAnalyzer]{Name: checks.KeySchema, Fn: (*SiteAnalyzer).Schema},
		checks.Check[*SiteAnalyzer]{Name: checks.KeyWWWCanonicalizing, Fn: func(s *SiteAnalyzer) checks.Finding {
			return s.WWWCanonicalization(ctx)
		}},
	)
}

// Run executes every site check.
func (a *SiteAnalyzer) Run(ctx context.Context) *checks.ResultSet {
	return a.Pipeline(ctx).Run(a)
}
