package analyzer

import (
	"context"
	"time"

	"github.com/surerank/seo-analyzer/checks"
	"github.com/surerank/seo-analyzer/htmldoc"
	"github.com/surerank/seo-analyzer/meta"
	"github.com/surerank/seo-analyzer/store"
)

// ChecksStore persists result sets per entity.
type ChecksStore interface {
	Checks(ctx context.Context, kind store.Kind, id int64) (*checks.ResultSet, time.Time, error)
	MergeChecks(ctx context.Context, kind store.Kind, id int64, rs *checks.ResultSet, now time.Time) (*checks.ResultSet, error)
}

// MetaResolver resolves titles, descriptions and permalinks.
type MetaResolver interface {
	ResolvePost(ctx context.Context, p *store.Post) (meta.Resolved, error)
	ResolveTerm(ctx context.Context, t *store.Term) (meta.Resolved, error)
}

// LinkChecker probes links and returns the unreachable ones.
type LinkChecker interface {
	Check(ctx context.Context, base string, urls []string) []checks.BrokenLink
}

// ContentFilter rewrites post content before it is parsed.
type ContentFilter func(ctx context.Context, p *store.Post, content string) string

// PageInput is what the post and term check battery inspects.
type PageInput struct {
	Meta             meta.Resolved
	Doc              *htmldoc.Document
	HasFeaturedImage bool
}
