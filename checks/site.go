package checks

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/surerank/seo-analyzer/htmldoc"
)

// SiteTitle checks the <title> of a fetched page.
func (l Library) SiteTitle(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	return l.AnalyzeTitle(doc.Find("title").First().Text())
}

// SiteDescription checks the meta description of a fetched page.
func (l Library) SiteDescription(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	content, _ := MetaContent(doc, "name", "description")
	return l.AnalyzeDescription(content)
}

// SiteH1 wants exactly one H1.
func SiteH1(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	help := []Block{Text("A single H1 states the main topic of the page.")}
	switch n := doc.Find("h1").Length(); {
	case n == 0:
		return Finding{
			Status:      StatusWarning,
			Message:     "No H1 heading found on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	case n > 1:
		return Finding{
			Status:      StatusWarning,
			Message:     fmt.Sprintf("Multiple H1 headings found on the page (%d).", n),
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	default:
		return Finding{
			Status:      StatusSuccess,
			Message:     "Page has exactly one H1 heading.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
}

// SiteH2 wants at least one H2.
func SiteH2(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	f := CheckSubheadings(doc)
	if f.Status == StatusSuccess {
		f.Message = "Page has H2 headings."
	} else {
		f.Message = "No H2 headings found on the page."
	}
	return f
}

// SiteImageAlt applies the alt text check to a fetched page.
func SiteImageAlt(doc *htmldoc.Document, autoAlt bool) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	return CheckImageAltText(doc, autoAlt)
}

// SiteInternalLinks counts links that stay on host: relative links and absolute links with an equal host.
func SiteInternalLinks(doc *htmldoc.Document, host string) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	help := []Block{Text("Internal links spread authority across the site and help crawlers find pages.")}

	internal := 0
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if ShouldSkipURL(href) {
			return
		}
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if u.Host == "" || strings.EqualFold(u.Hostname(), host) {
			internal++
		}
	})

	if internal == 0 {
		return Finding{
			Status:      StatusWarning,
			Message:     "No internal links found on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Page has %d internal links.", internal),
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// SiteCanonical checks for a <link rel="canonical"> with an href.
func SiteCanonical(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	href := ""
	doc.Find("link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if strings.EqualFold(strings.TrimSpace(rel), "canonical") {
			href, _ = s.Attr("href")
			href = strings.TrimSpace(href)
			return href == ""
		}
		return true
	})
	return AnalyzeCanonicalURL(href, "")
}

// SiteIndexing inspects the robots meta tag. A missing tag means indexable.
func SiteIndexing(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	help := []Block{Text("A noindex directive keeps the page out of search results.")}
	content, ok := MetaContent(doc, "name", "robots")
	if ok && strings.Contains(strings.ToLower(content), "noindex") {
		return Finding{
			Status:      StatusError,
			Message:     "Page is blocked from search engines by a noindex directive.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Page can be indexed by search engines.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(ok),
	}
}

// SiteOpenGraph inspects og:* meta tags and requires og:title and og:description.
func SiteOpenGraph(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	help := []Block{Text("Open Graph tags control how the page looks when shared on social networks.")}

	found := make(map[string]bool)
	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		prop = strings.ToLower(strings.TrimSpace(prop))
		if !strings.HasPrefix(prop, "og:") {
			return
		}
		if content, _ := s.Attr("content"); strings.TrimSpace(content) != "" {
			found[prop] = true
		}
	})

	if len(found) == 0 {
		return Finding{
			Status:      StatusWarning,
			Message:     "Open Graph tags are missing on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}

	var missing []string
	for _, required := range []string{"og:title", "og:description"} {
		if !found[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return Finding{
			Status:      StatusWarning,
			Message:     "Required Open Graph tags are missing on the page.",
			Description: append(help, Text("Missing tags:"), List(missing...)),
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Open Graph tags are present on the page.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// SiteSchema looks for JSON-LD or microdata structured data.
func SiteSchema(doc *htmldoc.Document) Finding {
	if doc == nil || doc.Document == nil {
		return MissingDocument(nil)
	}
	help := []Block{Text("Structured data helps search engines understand the page and show rich results.")}

	present := false
	doc.Find("script[type]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, _ := s.Attr("type")
		if strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") && strings.TrimSpace(s.Text()) != "" {
			present = true
		}
		return !present
	})
	if !present {
		present = doc.Find(`[itemtype*="schema.org"]`).Length() > 0
	}

	if !present {
		return Finding{
			Status:      StatusWarning,
			Message:     "Schema markup is missing on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Schema markup is present on the page.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// Reachability reports whether the site answered.
func Reachability(err error) Finding {
	help := []Block{Text("Search engines can only index a site they can reach.")}
	if err != nil {
		return Finding{
			Status:      StatusError,
			Message:     "Site is not reachable.",
			Description: append(help, Text(err.Error())),
			Type:        CategoryPage,
			NotFixable:  true,
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Site is reachable.",
		Description: help,
		Type:        CategoryPage,
	}
}

// SecureConnection passes when the effective URL uses HTTPS.
func SecureConnection(effectiveURL string) Finding {
	help := []Block{Text("HTTPS protects visitors and is a ranking signal.")}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(effectiveURL)), "https://") {
		return Finding{
			Status:      StatusSuccess,
			Message:     "Site is served over a secure HTTPS connection.",
			Description: help,
			Type:        CategoryPage,
		}
	}
	return Finding{
		Status:      StatusError,
		Message:     "Site is not served over a secure HTTPS connection.",
		Description: help,
		Type:        CategoryPage,
		NotFixable:  true,
	}
}

// WWWOutcome is what the www canonicalization probe observed.
type WWWOutcome struct {
	Skipped      bool
	OriginalHost string
	AlternateURL string
	FinalHost    string
	Redirected   bool
	Err          error
}

// WWWCanonicalization passes when the alternate host does not redirect or redirects back to the original host.
func WWWCanonicalization(o WWWOutcome) Finding {
	help := []Block{Text("The www and non-www versions of the site should resolve to a single preferred host.")}
	switch {
	case o.Skipped:
		return Finding{
			Status:      StatusSuccess,
			Message:     "Subdomain site, www canonicalization does not apply.",
			Description: help,
			Type:        CategoryPage,
		}
	case o.Err != nil:
		return Finding{
			Status:      StatusError,
			Message:     "Could not verify www canonicalization.",
			Description: append(help, Text(o.Err.Error())),
			Type:        CategoryPage,
			NotFixable:  true,
		}
	case !o.Redirected || strings.EqualFold(o.FinalHost, o.OriginalHost):
		return Finding{
			Status:      StatusSuccess,
			Message:     "The www and non-www versions of the site resolve correctly.",
			Description: help,
			Type:        CategoryPage,
		}
	default:
		return Finding{
			Status:  StatusWarning,
			Message: "The alternate www version redirects to a different host.",
			Description: append(help,
				Text(fmt.Sprintf("%s redirects to %s instead of %s.", o.AlternateURL, o.FinalHost, o.OriginalHost))),
			Type: CategoryPage,
		}
	}
}

// MetaContent returns the content of the first <meta attr="name"> tag, matching the name case-insensitively.
func MetaContent(doc *htmldoc.Document, attr, name string) (string, bool) {
	if doc == nil || doc.Document == nil {
		return "", false
	}
	var content string
	found := false
	doc.Find("meta[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(attr)
		if strings.EqualFold(strings.TrimSpace(v), name) {
			content, _ = s.Attr("content")
			found = true
			return false
		}
		return true
	})
	return content, found
}
