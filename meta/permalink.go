package meta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/store"
)

// Permalinks builds public URLs for posts and terms.
type Permalinks struct {
	HomeURL        string
	Structure      string
	HomepagePostID int64
}

// NewPermalinks reads the permalink settings.
func NewPermalinks(s *settings.Settings) Permalinks {
	return Permalinks{
		HomeURL:        strings.TrimRight(s.Site.HomeURL, "/"),
		Structure:      s.Site.Permalinks,
		HomepagePostID: s.Site.HomepagePostID,
	}
}

// Post returns the permalink of p.
// The post configured as the front page does not resolve through the structure: it is the home URL plus its slug.
func (pl Permalinks) Post(p *store.Post) string {
	if p == nil {
		return ""
	}
	if pl.HomepagePostID != 0 && p.ID == pl.HomepagePostID {
		if p.Slug == "" {
			return pl.HomeURL + "/"
		}
		return pl.HomeURL + "/" + p.Slug + "/"
	}
	if p.Slug == "" || p.Status == "draft" {
		return fmt.Sprintf("%s/?p=%d", pl.HomeURL, p.ID)
	}

	switch p.Type {
	case "", "post":
	case "page":
		return pl.HomeURL + "/" + p.Slug + "/"
	default:
		return pl.HomeURL + "/" + p.Type + "/" + p.Slug + "/"
	}

	date := p.PublishedAt
	r := strings.NewReplacer(
		"%year%", strconv.Itoa(date.Year()),
		"%monthnum%", fmt.Sprintf("%02d", int(date.Month())),
		"%day%", fmt.Sprintf("%02d", date.Day()),
		"%postname%", p.Slug,
		"%post_id%", strconv.FormatInt(p.ID, 10),
	)
	return pl.HomeURL + r.Replace(pl.Structure)
}

// Term returns the archive URL of t.
func (pl Permalinks) Term(t *store.Term) string {
	if t == nil {
		return ""
	}
	base := t.Taxonomy
	switch t.Taxonomy {
	case "", "category":
		base = "category"
	case "post_tag":
		base = "tag"
	}
	if t.Slug == "" {
		return fmt.Sprintf("%s/?%s=%d", pl.HomeURL, base, t.ID)
	}
	return pl.HomeURL + "/" + base + "/" + t.Slug + "/"
}
