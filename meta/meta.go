// Package meta resolves the SEO title, description, canonical URL and focus keyword of posts and terms.
//
// Resolution layers global templates from settings, entity overrides from the store,
// then substitutes %placeholder% tokens. Unknown tokens are left as written.
package meta

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/surerank/seo-analyzer/htmldoc"
	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/store"
)

// excerptWords is the length of an excerpt derived from content.
const excerptWords = 55

var placeholder = regexp.MustCompile(`%[a-z_]+%`)

// Source supplies per-entity meta overrides.
type Source interface {
	AllMeta(ctx context.Context, kind store.Kind, id int64) (map[string]string, error)
}

// Resolved is the meta the analyzers check.
type Resolved struct {
	PageTitle       string `json:"page_title"`
	PageDescription string `json:"page_description"`
	CanonicalURL    string `json:"canonical_url"`
	FocusKeyword    string `json:"focus_keyword"`
	Permalink       string `json:"permalink"`
}

// Resolver resolves meta for posts and terms.
type Resolver struct {
	settings   *settings.Settings
	source     Source
	permalinks Permalinks
	now        func() time.Time
}

// NewResolver creates a resolver. A nil source means no entity overrides.
func NewResolver(s *settings.Settings, source Source) *Resolver {
	return &Resolver{
		settings:   s,
		source:     source,
		permalinks: NewPermalinks(s),
		now:        time.Now,
	}
}

// Permalinks returns the permalink builder used by the resolver.
func (r *Resolver) Permalinks() Permalinks {
	return r.permalinks
}

// ResolvePost resolves the meta of p.
func (r *Resolver) ResolvePost(ctx context.Context, p *store.Post) (Resolved, error) {
	overrides, err := r.overrides(ctx, store.KindPost, p.ID)
	if err != nil {
		return Resolved{}, err
	}

	templates := r.settings.PostDefaults
	if r.settings.Site.HomepagePostID != 0 && p.ID == r.settings.Site.HomepagePostID {
		templates = r.settings.HomeDefaults
	}

	vars := r.siteVars()
	vars["title"] = p.Title
	vars["excerpt"] = postExcerpt(p)
	vars["author_name"] = p.Author
	vars["published"] = formatDate(p.PublishedAt)
	vars["modified"] = formatDate(p.ModifiedAt)
	vars["post_type"] = p.Type

	return r.resolve(templates, overrides, vars, r.permalinks.Post(p)), nil
}

// ResolveTerm resolves the meta of t.
func (r *Resolver) ResolveTerm(ctx context.Context, t *store.Term) (Resolved, error) {
	overrides, err := r.overrides(ctx, store.KindTerm, t.ID)
	if err != nil {
		return Resolved{}, err
	}

	vars := r.siteVars()
	vars["term_title"] = t.Name
	vars["term_description"] = t.Description
	vars["title"] = t.Name

	return r.resolve(r.settings.TermDefaults, overrides, vars, r.permalinks.Term(t)), nil
}

func (r *Resolver) overrides(ctx context.Context, kind store.Kind, id int64) (map[string]string, error) {
	if r.source == nil {
		return nil, nil
	}
	m, err := r.source.AllMeta(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d meta: %w", kind, id, err)
	}
	return m, nil
}

func (r *Resolver) resolve(t settings.Templates, overrides, vars map[string]string, permalink string) Resolved {
	pick := func(key, fallback string) string {
		if v := strings.TrimSpace(overrides[key]); v != "" {
			return v
		}
		return fallback
	}
	return Resolved{
		PageTitle:       Substitute(pick(store.MetaPageTitle, t.PageTitle), vars),
		PageDescription: Substitute(pick(store.MetaPageDescription, t.PageDescription), vars),
		CanonicalURL:    Substitute(pick(store.MetaCanonicalURL, ""), vars),
		FocusKeyword:    strings.TrimSpace(overrides[store.MetaFocusKeyword]),
		Permalink:       permalink,
	}
}

func (r *Resolver) siteVars() map[string]string {
	s := r.settings.Site
	return map[string]string{
		"site_name":    s.Name,
		"tagline":      s.Tagline,
		"sep":          s.Separator,
		"site_url":     s.HomeURL,
		"current_year": strconv.Itoa(r.now().Year()),
	}
}

// Substitute replaces %name% tokens with vars[name] and collapses the whitespace left by empty values.
func Substitute(template string, vars map[string]string) string {
	out := placeholder.ReplaceAllStringFunc(template, func(token string) string {
		if v, ok := vars[strings.Trim(token, "%")]; ok {
			return v
		}
		return token
	})
	return strings.Join(strings.Fields(out), " ")
}

func postExcerpt(p *store.Post) string {
	if e := strings.TrimSpace(p.Excerpt); e != "" {
		return e
	}
	words := strings.Fields(htmldoc.ParseFragment(p.Content).Text())
	if len(words) > excerptWords {
		return strings.Join(words[:excerptWords], " ") + "..."
	}
	return strings.Join(words, " ")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}
