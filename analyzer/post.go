package analyzer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/htmldoc"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

// Deps are the collaborators shared by the post and term analyzers.
type Deps struct {
	Settings *settings.Settings
	Resolver MetaResolver
	Store    ChecksStore
	Stats    *stats.Storage
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d *Deps) fill() {
	if d.Settings == nil {
		d.Settings = settings.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewPagePipeline builds the check battery run for posts and terms.
func NewPagePipeline(s *settings.Settings) *checks.Pipeline[PageInput] {
	lib := s.Library()
	return checks.NewPipeline(
		checks.Check[PageInput]{Name: checks.KeyTitle, Fn: func(in PageInput) checks.Finding {
			return lib.AnalyzeTitle(in.Meta.PageTitle)
		}},
		checks.Check[PageInput]{Name: checks.KeyDescription, Fn: func(in PageInput) checks.Finding {
			return lib.AnalyzeDescription(in.Meta.PageDescription)
		}},
		checks.Check[PageInput]{Name: checks.KeyCanonicalURL, Fn: func(in PageInput) checks.Finding {
			return checks.AnalyzeCanonicalURL(in.Meta.CanonicalURL, in.Meta.Permalink)
		}},
		checks.Check[PageInput]{Name: checks.KeyURLLength, Fn: func(in PageInput) checks.Finding {
			return lib.CheckURLLength(in.Meta.Permalink)
		}},
		checks.Check[PageInput]{Name: checks.KeySubheadings, Fn: func(in PageInput) checks.Finding {
			return checks.CheckSubheadings(in.Doc)
		}},
		checks.Check[PageInput]{Name: checks.KeyMediaPresent, Fn: func(in PageInput) checks.Finding {
			return checks.CheckMediaPresent(in.Doc, in.HasFeaturedImage)
		}},
		checks.Check[PageInput]{Name: checks.KeyLinksPresent, Fn: func(in PageInput) checks.Finding {
			return checks.CheckLinksPresent(in.Doc)
		}},
		checks.Check[PageInput]{Name: checks.KeyImageAltText, Fn: func(in PageInput) checks.Finding {
			return checks.CheckImageAltText(in.Doc, s.AutoImageAlt)
		}},
		checks.Check[PageInput]{Name: checks.KeyOpenGraph, Fn: func(PageInput) checks.Finding {
			return checks.OpenGraphToggle(s.DisableOpenGraphTags)
		}},
		checks.Check[PageInput]{Name: checks.KeyKeywordTitle, Fn: func(in PageInput) checks.Finding {
			return checks.KeywordInTitle(in.Meta.PageTitle, in.Meta.FocusKeyword)
		}},
		checks.Check[PageInput]{Name: checks.KeyKeywordDesc, Fn: func(in PageInput) checks.Finding {
			return checks.KeywordInDescription(in.Meta.PageDescription, in.Meta.FocusKeyword)
		}},
		checks.Check[PageInput]{Name: checks.KeyKeywordURL, Fn: func(in PageInput) checks.Finding {
			return checks.KeywordInURL(in.Meta.Permalink, in.Meta.FocusKeyword)
		}},
		checks.Check[PageInput]{Name: checks.KeyKeywordContent, Fn: func(in PageInput) checks.Finding {
			return checks.KeywordInContent(in.Doc, in.Meta.FocusKeyword)
		}},
	)
}

// PostAnalyzer runs the check battery for posts.
type PostAnalyzer struct {
	deps     Deps
	pipeline *checks.Pipeline[PageInput]
	links    LinkChecker

	// ContentFilters rewrite post content, in order, before parsing.
	ContentFilters []ContentFilter
}

// NewPostAnalyzer creates a post analyzer. links may be nil when broken-link checking is not wired.
func NewPostAnalyzer(deps Deps, links LinkChecker) *PostAnalyzer {
	deps.fill()
	return &PostAnalyzer{
		deps:     deps,
		pipeline: NewPagePipeline(deps.Settings),
		links:    links,
	}
}

// Pipeline exposes the check battery so callers can register their own checks.
func (a *PostAnalyzer) Pipeline() *checks.Pipeline[PageInput] {
	return a.pipeline
}

// RunChecks analyzes post id, carries forward broken links still present in its content,
// merges the results into storage and returns the findings of this run.
func (a *PostAnalyzer) RunChecks(ctx context.Context, id int64, post *store.Post) (*checks.ResultSet, error) {
	const op = "analyzer.PostAnalyzer.RunChecks"

	if !a.deps.Settings.EnablePageLevelSEO {
		return nil, seoerr.New(seoerr.KindDisabled, op, "page level SEO is disabled")
	}
	if id <= 0 || post == nil {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "invalid post id %d", id)
	}
	if post.ID != id {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "post object %d does not match id %d", post.ID, id)
	}

	resolved, err := a.deps.Resolver.ResolvePost(ctx, post)
	if err != nil {
		a.deps.Stats.Add(stats.Counters{Failures: 1})
		return nil, err
	}

	content := post.Content
	for _, filter := range a.ContentFilters {
		content = filter(ctx, post, content)
	}
	doc := htmldoc.ParseFragment(content)

	rs := a.pipeline.Run(PageInput{
		Meta:             resolved,
		Doc:              doc,
		HasFeaturedImage: strings.TrimSpace(post.FeaturedImage) != "",
	})

	previous, _, err := a.deps.Store.Checks(ctx, store.KindPost, id)
	if err != nil {
		a.deps.Stats.Add(stats.Counters{Failures: 1})
		return nil, err
	}
	var prevLinks *checks.Finding
	if f, ok := previous.Get(checks.KeyBrokenLinks); ok {
		prevLinks = &f
	}
	rs.Set(checks.KeyBrokenLinks, checks.CarryForwardBrokenLinks(prevLinks, checks.CollectLinks(doc)))

	if _, err := a.deps.Store.MergeChecks(ctx, store.KindPost, id, rs, a.deps.Now()); err != nil {
		a.deps.Stats.Add(stats.Counters{Failures: 1})
		return nil, err
	}

	a.deps.Stats.Add(stats.Counters{PostAnalyses: 1})
	a.deps.Logger.Debug("Analyzed post", "post_id", id, "checks", rs.Len(), "worst", rs.Worst())
	return rs, nil
}

// RecordBrokenLinks stores the broken_links finding for a post from a link checker run.
func (a *PostAnalyzer) RecordBrokenLinks(ctx context.Context, id int64, broken []checks.BrokenLink) (*checks.ResultSet, error) {
	if id <= 0 {
		return nil, seoerr.New(seoerr.KindInvalidInput, "analyzer.PostAnalyzer.RecordBrokenLinks", "invalid post id %d", id)
	}
	rs := checks.NewResultSet()
	rs.Set(checks.KeyBrokenLinks, checks.BrokenLinksFound(broken))
	if _, err := a.deps.Store.MergeChecks(ctx, store.KindPost, id, rs, a.deps.Now()); err != nil {
		return nil, err
	}
	return rs, nil
}

// CheckLinks probes every link of the post content and records the unreachable ones.
func (a *PostAnalyzer) CheckLinks(ctx context.Context, id int64, post *store.Post) (*checks.ResultSet, error) {
	const op = "analyzer.PostAnalyzer.CheckLinks"

	if a.links == nil {
		return nil, seoerr.New(seoerr.KindDisabled, op, "link checking is not configured")
	}
	if id <= 0 || post == nil || post.ID != id {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "invalid post id %d", id)
	}

	resolved, err := a.deps.Resolver.ResolvePost(ctx, post)
	if err != nil {
		return nil, err
	}
	content := post.Content
	for _, filter := range a.ContentFilters {
		content = filter(ctx, post, content)
	}

	broken := a.links.Check(ctx, resolved.Permalink, checks.CollectLinks(htmldoc.ParseFragment(content)))
	a.deps.Logger.Info("Checked post links", "post_id", id, "broken", len(broken))
	return a.RecordBrokenLinks(ctx, id, broken)
}
