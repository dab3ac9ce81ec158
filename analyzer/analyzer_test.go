package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/fetcher"
	"github.com/surerank/seo-analyzer/meta"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/store"
)

type entityKey struct {
	kind store.Kind
	id   int64
}

// memStore is an in-memory ChecksStore.
type memStore struct {
	mu      sync.Mutex
	sets    map[entityKey]*checks.ResultSet
	updated map[entityKey]time.Time
}

func newMemStore() *memStore {
	return &memStore{sets: make(map[entityKey]*checks.ResultSet), updated: make(map[entityKey]time.Time)}
}

func (m *memStore) Checks(_ context.Context, kind store.Kind, id int64) (*checks.ResultSet, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entityKey{kind, id}
	if rs, ok := m.sets[k]; ok {
		return rs.Merge(nil), m.updated[k], nil
	}
	return checks.NewResultSet(), time.Time{}, nil
}

func (m *memStore) MergeChecks(_ context.Context, kind store.Kind, id int64, rs *checks.ResultSet, now time.Time) (*checks.ResultSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entityKey{kind, id}
	merged := m.sets[k].Merge(rs)
	m.sets[k] = merged
	m.updated[k] = now
	return merged, nil
}

type stubLinks struct {
	broken []checks.BrokenLink
	base   string
	urls   []string
}

func (s *stubLinks) Check(_ context.Context, base string, urls []string) []checks.BrokenLink {
	s.base, s.urls = base, urls
	return s.broken
}

func testSettings() *settings.Settings {
	s := settings.Default()
	s.Site.Name = "Coffee Corner"
	s.Site.HomeURL = "https://coffee.example"
	return s
}

func newPostAnalyzer(s *settings.Settings, st *memStore, links LinkChecker) *PostAnalyzer {
	return NewPostAnalyzer(Deps{
		Settings: s,
		Resolver: meta.NewResolver(s, nil),
		Store:    st,
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	}, links)
}

const postContent = `<h2>Brewing</h2><p>Great coffee needs fresh beans.
<a href="https://coffee.example/grinders/">grinders</a>
<a href="/old-page/">old page</a>
<a href="mailto:hello@coffee.example">mail</a>
<img src="/beans.jpg" alt="Beans"></p>`

func TestPostAnalyzerGuards(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	a := newPostAnalyzer(s, newMemStore(), nil)

	if _, err := a.RunChecks(ctx, 0, &store.Post{}); !errors.Is(err, seoerr.ErrInvalidInput) {
		t.Errorf("expected invalid_input for id 0, got %v", err)
	}
	if _, err := a.RunChecks(ctx, 1, nil); !errors.Is(err, seoerr.ErrInvalidInput) {
		t.Errorf("expected invalid_input for nil post, got %v", err)
	}
	if _, err := a.RunChecks(ctx, 1, &store.Post{ID: 2}); !errors.Is(err, seoerr.ErrInvalidInput) {
		t.Errorf("expected invalid_input for mismatched post, got %v", err)
	}
	if _, err := a.CheckLinks(ctx, 1, &store.Post{ID: 1}); !errors.Is(err, seoerr.ErrDisabled) {
		t.Errorf("expected disabled without a link checker, got %v", err)
	}

	s.EnablePageLevelSEO = false
	if _, err := a.RunChecks(ctx, 1, &store.Post{ID: 1}); !errors.Is(err, seoerr.ErrDisabled) {
		t.Errorf("expected disabled, got %v", err)
	}
}

func TestPostAnalyzerRunChecks(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	a := newPostAnalyzer(testSettings(), st, nil)
	post := &store.Post{ID: 7, Title: "Fresh Coffee", Slug: "fresh-coffee", Content: postContent}

	rs, err := a.RunChecks(ctx, 7, post)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}

	want := []string{
		checks.KeyTitle, checks.KeyDescription, checks.KeyCanonicalURL, checks.KeyURLLength,
		checks.KeySubheadings, checks.KeyMediaPresent, checks.KeyLinksPresent, checks.KeyImageAltText,
		checks.KeyOpenGraph, checks.KeyKeywordTitle, checks.KeyKeywordDesc, checks.KeyKeywordURL,
		checks.KeyKeywordContent, checks.KeyBrokenLinks,
	}
	if got := strings.Join(rs.Keys(), ","); got != strings.Join(want, ",") {
		t.Errorf("unexpected keys:\n got %s\nwant %s", got, strings.Join(want, ","))
	}

	expect := map[string]checks.Status{
		checks.KeyTitle:          checks.StatusSuccess,
		checks.KeyCanonicalURL:   checks.StatusSuccess,
		checks.KeySubheadings:    checks.StatusSuccess,
		checks.KeyImageAltText:   checks.StatusSuccess,
		checks.KeyKeywordTitle:   checks.StatusSuggestion,
		checks.KeyKeywordContent: checks.StatusSuggestion,
		checks.KeyBrokenLinks:    checks.StatusSuccess,
	}
	for key, status := range expect {
		if f, _ := rs.Get(key); f.Status != status {
			t.Errorf("%s: got %s, want %s", key, f.Status, status)
		}
	}

	stored, updated, _ := st.Checks(ctx, store.KindPost, 7)
	if stored.Len() != len(want) || updated.IsZero() {
		t.Errorf("results not persisted: %d keys, updated %v", stored.Len(), updated)
	}
}

func TestPostAnalyzerIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newPostAnalyzer(testSettings(), newMemStore(), nil)
	post := &store.Post{ID: 3, Title: "Beans", Slug: "beans", Content: postContent}

	first, err := a.RunChecks(ctx, 3, post)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	second, err := a.RunChecks(ctx, 3, post)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}

	a1, _ := json.Marshal(first)
	a2, _ := json.Marshal(second)
	if string(a1) != string(a2) {
		t.Errorf("second run differs:\n%s\n%s", a1, a2)
	}
}

func TestPostAnalyzerMergeNotOverwrite(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	prior := checks.NewResultSet()
	prior.Set("readability", checks.Finding{Status: checks.StatusWarning, Message: "from another tool"})
	st.MergeChecks(ctx, store.KindPost, 4, prior, time.Now())

	a := newPostAnalyzer(testSettings(), st, nil)
	if _, err := a.RunChecks(ctx, 4, &store.Post{ID: 4, Title: "T", Slug: "t"}); err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}

	stored, _, _ := st.Checks(ctx, store.KindPost, 4)
	if f, ok := stored.Get("readability"); !ok || f.Message != "from another tool" {
		t.Errorf("prior key lost: %+v", f)
	}
}

func TestPostAnalyzerBrokenLinkCarryForward(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	links := &stubLinks{broken: []checks.BrokenLink{
		checks.NewBrokenLink("/old-page/", "HTTP 404 Not Found"),
		checks.NewBrokenLink("https://gone.example/", ""),
	}}
	a := newPostAnalyzer(testSettings(), st, links)
	post := &store.Post{ID: 9, Title: "Coffee", Slug: "coffee", Content: postContent}

	recorded, err := a.CheckLinks(ctx, 9, post)
	if err != nil {
		t.Fatalf("CheckLinks failed: %v", err)
	}
	if links.base != "https://coffee.example/coffee/" {
		t.Errorf("links resolved against %q", links.base)
	}
	if len(links.urls) != 2 {
		t.Errorf("mailto links should not be checked: %v", links.urls)
	}
	if f, _ := recorded.Get(checks.KeyBrokenLinks); f.Status != checks.StatusError {
		t.Errorf("recorded finding should be an error, got %s", f.Status)
	}

	rs, err := a.RunChecks(ctx, 9, post)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	f, _ := rs.Get(checks.KeyBrokenLinks)
	if f.Status != checks.StatusError {
		t.Fatalf("broken link still present should be kept, got %+v", f)
	}
	if got := strings.Join(f.ListBlock().URLs(), ","); got != "/old-page/" {
		t.Errorf("kept links = %s", got)
	}

	post.Content = `<p>All links fixed. <a href="/new-page/">new</a></p>`
	rs, err = a.RunChecks(ctx, 9, post)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	if f, _ := rs.Get(checks.KeyBrokenLinks); f.Status != checks.StatusSuccess {
		t.Errorf("removed links should clear the finding, got %s", f.Status)
	}
}

func TestPostAnalyzerExtensions(t *testing.T) {
	ctx := context.Background()
	a := newPostAnalyzer(testSettings(), newMemStore(), nil)
	a.ContentFilters = append(a.ContentFilters, func(_ context.Context, _ *store.Post, content string) string {
		return content + `<h2>Added by a filter</h2>`
	})
	a.Pipeline().Append("word_count", func(in PageInput) checks.Finding {
		if in.Doc == nil {
			panic("no document")
		}
		return checks.Finding{Status: checks.StatusSuccess, Message: "ok"}
	})

	rs, err := a.RunChecks(ctx, 5, &store.Post{ID: 5, Slug: "x", Content: "<p>plain</p>"})
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	if f, _ := rs.Get(checks.KeySubheadings); f.Status != checks.StatusSuccess {
		t.Errorf("content filter not applied, got %s", f.Status)
	}
	if f, _ := rs.Get("word_count"); f.Status != checks.StatusSuccess {
		t.Errorf("custom check not run, got %s", f.Status)
	}

	// Empty content gives no document. The panicking custom check is contained.
	rs, err = a.RunChecks(ctx, 6, &store.Post{ID: 6, Slug: "y"})
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	if f, _ := rs.Get("word_count"); f.Status != checks.StatusError {
		t.Errorf("panicking check should yield an error finding, got %s", f.Status)
	}
	if f, _ := rs.Get(checks.KeyBrokenLinks); f.Status != checks.StatusSuccess {
		t.Errorf("checks after the panic should still run, got %s", f.Status)
	}
}

func TestTermAnalyzer(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.DisableOpenGraphTags = true
	st := newMemStore()
	a := NewTermAnalyzer(Deps{Settings: s, Resolver: meta.NewResolver(s, nil), Store: st})

	rs, err := a.RunChecks(ctx, 2, &store.Term{ID: 2, Name: "Arabica", Slug: "arabica", Description: "<p>Smooth <a href='/x'>beans</a></p>"})
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	if rs.Len() != 13 {
		t.Errorf("expected 13 checks, got %v", rs.Keys())
	}
	if _, ok := rs.Get(checks.KeyBrokenLinks); ok {
		t.Error("terms do not carry broken links")
	}
	if f, _ := rs.Get(checks.KeyOpenGraph); f.Status != checks.StatusSuggestion {
		t.Errorf("disabled Open Graph should be a suggestion, got %s", f.Status)
	}
	if f, _ := rs.Get(checks.KeyLinksPresent); f.Status != checks.StatusSuccess {
		t.Errorf("description links not seen, got %s", f.Status)
	}
	if stored, _, _ := st.Checks(ctx, store.KindTerm, 2); stored.Len() != 13 {
		t.Errorf("term results not persisted")
	}

	if _, err := a.RunChecks(ctx, 2, &store.Term{ID: 3}); !errors.Is(err, seoerr.ErrInvalidInput) {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

const scenarioPage = `<!DOCTYPE html><html><head>
<meta name="robots" content="noindex">
<meta property="og:title" content="Home">
</head><body>
<h1>Welcome</h1><h1>Welcome</h1>
<img src="/a.png"><img src="/b.png">
<a href="/about">About</a>
</body></html>`

func TestSiteAnalyzerScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(scenarioPage))
	}))
	defer srv.Close()

	ctx := context.Background()
	a := NewSiteAnalyzer(ctx, srv.URL, SiteDeps{Settings: testSettings()})
	if !a.Usable() {
		t.Fatalf("page not loaded: %v", a.Errors())
	}
	if a.Host() != "127.0.0.1" || !strings.Contains(a.Raw(), "Welcome") {
		t.Errorf("unexpected analyzer state host=%q", a.Host())
	}

	rs := a.Run(ctx)
	if rs.Len() != 13 {
		t.Errorf("expected 13 checks, got %v", rs.Keys())
	}

	want := map[string]checks.Status{
		checks.KeyTitle:             checks.StatusError,
		checks.KeyH1:                checks.StatusWarning,
		checks.KeyImageAltText:      checks.StatusWarning,
		checks.KeyCanonicalURL:      checks.StatusWarning,
		checks.KeyIndexing:          checks.StatusError,
		checks.KeyOpenGraph:         checks.StatusWarning,
		checks.KeyLinks:             checks.StatusSuccess,
		checks.KeyReachability:      checks.StatusSuccess,
		checks.KeySecureConnection:  checks.StatusError,
		checks.KeyWWWCanonicalizing: checks.StatusSuccess,
	}
	for key, status := range want {
		if f, _ := rs.Get(key); f.Status != status {
			t.Errorf("%s: got %s, want %s (%s)", key, f.Status, status, f.Message)
		}
	}
}

func TestSiteAnalyzerWithoutDocument(t *testing.T) {
	ctx := context.Background()

	invalid := NewSiteAnalyzer(ctx, "not a url", SiteDeps{})
	if invalid.Usable() || len(invalid.Errors()) != 1 {
		t.Fatalf("invalid URL should leave no document, errors=%v", invalid.Errors())
	}
	for name, f := range map[string]checks.Finding{
		"title":     invalid.Title(),
		"h1":        invalid.H1(),
		"og":        invalid.OpenGraph(),
		"reachable": invalid.Reachability(ctx),
		"www":       invalid.WWWCanonicalization(ctx),
	} {
		if f.Status != checks.StatusError {
			t.Errorf("%s: expected error, got %s", name, f.Status)
		}
	}
	title := invalid.Title()
	if l := title.ListBlock(); l == nil || !strings.Contains(l.List[0], "invalid URL format") {
		t.Errorf("error list should be cited, got %+v", title.Description)
	}

	fallback := NewSiteAnalyzer(ctx, "not a url", SiteDeps{Settings: testSettings()})
	if f := fallback.SecureConnection(); f.Status != checks.StatusSuccess {
		t.Errorf("secure connection should fall back to the https home URL, got %s", f.Status)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	a := NewSiteAnalyzer(ctx, empty.URL, SiteDeps{})
	if a.Usable() {
		t.Fatal("empty response should leave no document")
	}
	rs := a.Run(ctx)
	if f, _ := rs.Get(checks.KeySchema); f.Status != checks.StatusError {
		t.Errorf("schema: expected error, got %s", f.Status)
	}
	if f, _ := rs.Get(checks.KeyReachability); f.Status != checks.StatusError {
		t.Errorf("reachability: expected error on empty response, got %s", f.Status)
	}
}

func TestSiteAnalyzerReachability(t *testing.T) {
	var mu sync.Mutex
	gets := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gets++
		mu.Unlock()
		w.Write([]byte(scenarioPage))
	}))
	defer srv.Close()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return gets
	}

	ctx := context.Background()
	home := testSettings()
	home.Site.HomeURL = srv.URL

	tests := []struct {
		name     string
		settings *settings.Settings
		want     int
	}{
		{"home host trusts the first fetch", home, 1},
		{"other host refetches the scanned URL", testSettings(), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := count()
			a := NewSiteAnalyzer(ctx, srv.URL, SiteDeps{Settings: tt.settings})
			if f := a.Reachability(ctx); f.Status != checks.StatusSuccess {
				t.Errorf("expected success, got %s", f.Status)
			}
			if got := count() - before; got != tt.want {
				t.Errorf("GET requests = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSiteAnalyzerWWWCanonicalization(t *testing.T) {
	tests := []struct {
		name     string
		www      http.HandlerFunc
		dialFail bool
		want     checks.Status
	}{
		{
			name: "alternate answers directly",
			www:  func(w http.ResponseWriter, r *http.Request) {},
			want: checks.StatusSuccess,
		},
		{
			name: "redirects back to the bare host",
			www: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "http://example.com/", http.StatusMovedPermanently)
			},
			want: checks.StatusSuccess,
		},
		{
			name: "redirects to another host",
			www: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "http://elsewhere.example/", http.StatusMovedPermanently)
			},
			want: checks.StatusWarning,
		},
		{
			name:     "alternate host unreachable",
			dialFail: true,
			want:     checks.StatusError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.Host, "www.") && tt.www != nil {
					tt.www(w, r)
					return
				}
				w.Write([]byte(scenarioPage))
			}))
			defer srv.Close()

			// Every host resolves to the test server, except www.* when dialing should fail.
			dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
				if tt.dialFail && strings.HasPrefix(addr, "www.") {
					return nil, errors.New("no such host")
				}
				var d net.Dialer
				return d.DialContext(ctx, network, srv.Listener.Addr().String())
			}
			deps := SiteDeps{
				Settings: testSettings(),
				NewFetcher: func() *fetcher.Fetcher {
					return fetcher.New(fetcher.WithClient(&http.Client{
						Timeout:   5 * time.Second,
						Transport: &http.Transport{DialContext: dial},
					}))
				},
			}

			ctx := context.Background()
			a := NewSiteAnalyzer(ctx, "http://example.com/", deps)
			if !a.Usable() {
				t.Fatalf("page not loaded: %v", a.Errors())
			}
			if f := a.WWWCanonicalization(ctx); f.Status != tt.want {
				t.Errorf("got %s, want %s (%s)", f.Status, tt.want, f.Message)
			}
		})
	}
}

func TestSiteCache(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Write([]byte(`<html><head><title>` + r.URL.Path + `</title></head><body></body></html>`))
	}))
	defer srv.Close()

	ctx := context.Background()
	cache := NewSiteCache(SiteDeps{}, time.Minute, nil)
	defer cache.Shutdown()

	first := cache.Get(ctx, srv.URL+"/one")
	again := cache.Get(ctx, srv.URL+"/one")
	if first != again {
		t.Error("same URL should reuse the analyzer")
	}
	other := cache.Get(ctx, srv.URL+"/two")
	if other == first {
		t.Fatal("different URLs must not share an analyzer")
	}
	if f := other.Title(); !strings.Contains(f.Message, "present") {
		t.Errorf("second URL analyzed the wrong page: %+v", f)
	}

	mu.Lock()
	if hits["/one"] != 1 || hits["/two"] != 1 {
		t.Errorf("unexpected fetch counts %v", hits)
	}
	mu.Unlock()

	st := cache.Stats()
	if st.Entries != 2 || st.Hits != 1 || st.Misses != 2 {
		t.Errorf("unexpected cache stats %+v", st)
	}

	cache.Invalidate(srv.URL + "/one")
	if cache.IsCached(srv.URL + "/one") {
		t.Error("invalidated URL still cached")
	}
	cache.Get(ctx, "ftp://nope")
	if cache.IsCached("ftp://nope") {
		t.Error("unusable analyzers must not be cached")
	}
}

func TestSiteService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/other" {
			w.Write([]byte(`<html><head><title>Other page</title></head><body><h1>Other</h1></body></html>`))
			return
		}
		w.Write([]byte(scenarioPage))
	}))
	defer srv.Close()

	ctx := context.Background()
	s := testSettings()
	s.Site.HomeURL = srv.URL
	cache := NewSiteCache(SiteDeps{Settings: s}, time.Minute, nil)
	defer cache.Shutdown()
	st := newMemStore()
	svc := NewSiteService(cache, st, nil, nil)

	rs, err := svc.Analyze(ctx, "", false)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if f, _ := rs.Get(checks.KeyIndexing); f.Status != checks.StatusError {
		t.Errorf("indexing: got %s", f.Status)
	}
	if stored, _, _ := st.Checks(ctx, store.KindSite, 0); stored.Len() != rs.Len() {
		t.Errorf("site results not persisted")
	}
	if !cache.IsCached(srv.URL) {
		t.Error("home page should be cached")
	}

	if _, err := svc.Analyze(ctx, srv.URL+"/other", false); err != nil {
		t.Fatalf("Analyze other page failed: %v", err)
	}
	stored, _, _ := st.Checks(ctx, store.KindSite, 0)
	if f, _ := stored.Get(checks.KeyIndexing); f.Status != checks.StatusError {
		t.Errorf("auditing another page must not overwrite the home record, indexing=%s", f.Status)
	}

	s.Site.HomeURL = ""
	if _, err := svc.Analyze(ctx, "", true); !errors.Is(err, seoerr.ErrInvalidInput) {
		t.Errorf("expected invalid_input without a URL, got %v", err)
	}
}
