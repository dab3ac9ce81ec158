package analyzer

import (
	"context"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/htmldoc"
	"github.com/surerank/seo-analyzer/seoerr"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

// TermAnalyzer runs the check battery for taxonomy terms. Content comes from the term description
// and there is no broken-link carry-forward.
type TermAnalyzer struct {
	deps     Deps
	pipeline *checks.Pipeline[PageInput]
}

// NewTermAnalyzer creates a term analyzer.
func NewTermAnalyzer(deps Deps) *TermAnalyzer {
	deps.fill()
	return &TermAnalyzer{deps: deps, pipeline: NewPagePipeline(deps.Settings)}
}

// Pipeline exposes the check battery so callers can register their own checks.
func (a *TermAnalyzer) Pipeline() *checks.Pipeline[PageInput] {
	return a.pipeline
}

// RunChecks analyzes term id, merges the results into storage and returns the findings of this run.
func (a *TermAnalyzer) RunChecks(ctx context.Context, id int64, term *store.Term) (*checks.ResultSet, error) {
	const op = "analyzer.TermAnalyzer.RunChecks"

	if !a.deps.Settings.EnablePageLevelSEO {
		return nil, seoerr.New(seoerr.KindDisabled, op, "page level SEO is disabled")
	}
	if id <= 0 || term == nil {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "invalid term id %d", id)
	}
	if term.ID != id {
		return nil, seoerr.New(seoerr.KindInvalidInput, op, "term object %d does not match id %d", term.ID, id)
	}

	resolved, err := a.deps.Resolver.ResolveTerm(ctx, term)
	if err != nil {
		a.deps.Stats.Add(stats.Counters{Failures: 1})
		return nil, err
	}

	rs := a.pipeline.Run(PageInput{
		Meta: resolved,
		Doc:  htmldoc.ParseFragment(term.Description),
	})

	if _, err := a.deps.Store.MergeChecks(ctx, store.KindTerm, id, rs, a.deps.Now()); err != nil {
		a.deps.Stats.Add(stats.Counters{Failures: 1})
		return nil, err
	}

	a.deps.Stats.Add(stats.Counters{TermAnalyses: 1})
	a.deps.Logger.Debug("Analyzed term", "term_id", id, "checks", rs.Len(), "worst", rs.Worst())
	return rs, nil
}
