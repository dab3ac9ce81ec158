package meta

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/store"
)

type fakeSource map[store.Kind]map[int64]map[string]string

func (f fakeSource) AllMeta(_ context.Context, kind store.Kind, id int64) (map[string]string, error) {
	return f[kind][id], nil
}

type failingSource struct{}

func (failingSource) AllMeta(context.Context, store.Kind, int64) (map[string]string, error) {
	return nil, errors.New("database is locked")
}

func testSettings() *settings.Settings {
	s := settings.Default()
	s.Site.Name = "Coffee Corner"
	s.Site.Tagline = "Fresh beans daily"
	s.Site.HomeURL = "https://coffee.example"
	s.Site.Separator = "|"
	return s
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"title": "Beans", "site_name": "Coffee Corner", "tagline": ""}
	tests := []struct {
		in, want string
	}{
		{"%title% - %site_name%", "Beans - Coffee Corner"},
		{"%title%%unknown_token%", "Beans%unknown_token%"},
		{"%site_name%   %tagline%", "Coffee Corner"},
		{"100% pure %title%", "100% pure Beans"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Substitute(tt.in, vars); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolvePost(t *testing.T) {
	src := fakeSource{store.KindPost: {
		2: {
			store.MetaPageTitle:    "%title% for %current_year%",
			store.MetaFocusKeyword: "  espresso ",
			store.MetaCanonicalURL: "%site_url%/espresso/",
		},
	}}
	r := NewResolver(testSettings(), src)
	r.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	plain := &store.Post{ID: 1, Type: "post", Title: "Beans", Slug: "beans", Content: "<p>Roasted <b>today</b>.</p>"}
	got, err := r.ResolvePost(ctx, plain)
	if err != nil {
		t.Fatalf("ResolvePost failed: %v", err)
	}
	if got.PageTitle != "Beans | Coffee Corner" {
		t.Errorf("title = %q", got.PageTitle)
	}
	if got.PageDescription != "Roasted today." {
		t.Errorf("description from content = %q", got.PageDescription)
	}
	if got.CanonicalURL != "" || got.FocusKeyword != "" {
		t.Errorf("unexpected overrides %+v", got)
	}
	if got.Permalink != "https://coffee.example/beans/" {
		t.Errorf("permalink = %q", got.Permalink)
	}

	overridden, err := r.ResolvePost(ctx, &store.Post{ID: 2, Title: "Espresso", Slug: "espresso", Excerpt: "Short and strong"})
	if err != nil {
		t.Fatalf("ResolvePost failed: %v", err)
	}
	if overridden.PageTitle != "Espresso for 2025" {
		t.Errorf("title override = %q", overridden.PageTitle)
	}
	if overridden.PageDescription != "Short and strong" {
		t.Errorf("excerpt = %q", overridden.PageDescription)
	}
	if overridden.FocusKeyword != "espresso" {
		t.Errorf("keyword = %q", overridden.FocusKeyword)
	}
	if overridden.CanonicalURL != "https://coffee.example/espresso/" {
		t.Errorf("canonical = %q", overridden.CanonicalURL)
	}
}

func TestResolvePostLongExcerpt(t *testing.T) {
	r := NewResolver(testSettings(), nil)
	content := "<p>" + strings.Repeat("word ", 80) + "</p>"
	got, err := r.ResolvePost(context.Background(), &store.Post{ID: 1, Slug: "x", Content: content})
	if err != nil {
		t.Fatalf("ResolvePost failed: %v", err)
	}
	if n := len(strings.Fields(got.PageDescription)); n != excerptWords {
		t.Errorf("expected %d words, got %d", excerptWords, n)
	}
	if !strings.HasSuffix(got.PageDescription, "...") {
		t.Errorf("trimmed excerpt should end with an ellipsis: %q", got.PageDescription)
	}
}

func TestResolveHomepage(t *testing.T) {
	s := testSettings()
	s.Site.HomepagePostID = 9
	r := NewResolver(s, nil)

	got, err := r.ResolvePost(context.Background(), &store.Post{ID: 9, Type: "page", Title: "Home", Slug: "home"})
	if err != nil {
		t.Fatalf("ResolvePost failed: %v", err)
	}
	if got.PageTitle != "Coffee Corner | Fresh beans daily" {
		t.Errorf("homepage title = %q", got.PageTitle)
	}
	if got.Permalink != "https://coffee.example/home/" {
		t.Errorf("homepage permalink = %q", got.Permalink)
	}
}

func TestResolveTerm(t *testing.T) {
	r := NewResolver(testSettings(), nil)
	got, err := r.ResolveTerm(context.Background(), &store.Term{ID: 4, Taxonomy: "post_tag", Name: "Arabica", Slug: "arabica", Description: "Smooth beans"})
	if err != nil {
		t.Fatalf("ResolveTerm failed: %v", err)
	}
	if got.PageTitle != "Arabica | Coffee Corner" || got.PageDescription != "Smooth beans" {
		t.Errorf("unexpected term meta %+v", got)
	}
	if got.Permalink != "https://coffee.example/tag/arabica/" {
		t.Errorf("term permalink = %q", got.Permalink)
	}

	if _, err := NewResolver(testSettings(), failingSource{}).ResolveTerm(context.Background(), &store.Term{ID: 1}); err == nil {
		t.Error("expected source error to propagate")
	}
}

func TestPermalinks(t *testing.T) {
	pl := Permalinks{HomeURL: "https://coffee.example", Structure: "/%year%/%monthnum%/%day%/%postname%-%post_id%/"}
	date := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		post *store.Post
		want string
	}{
		{"structure", &store.Post{ID: 5, Slug: "beans", PublishedAt: date}, "https://coffee.example/2024/03/09/beans-5/"},
		{"page", &store.Post{ID: 6, Type: "page", Slug: "about"}, "https://coffee.example/about/"},
		{"custom type", &store.Post{ID: 7, Type: "product", Slug: "mug"}, "https://coffee.example/product/mug/"},
		{"draft", &store.Post{ID: 8, Slug: "wip", Status: "draft"}, "https://coffee.example/?p=8"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		if got := pl.Post(tt.post); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := pl.Term(&store.Term{ID: 2, Taxonomy: "genre"}); got != "https://coffee.example/?genre=2" {
		t.Errorf("term without slug = %q", got)
	}
}
