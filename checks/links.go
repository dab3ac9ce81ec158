package checks

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/surerank/seo-analyzer/htmldoc"
)

// ShouldSkipURL reports whether href is excluded from link harvesting.
// Absolute http(s) and scheme-less relative URLs are kept. Fragment-only hrefs and any other scheme are skipped.
func ShouldSkipURL(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	u, err := url.Parse(href)
	if err != nil {
		return strings.Contains(href, ":")
	}
	if u.Scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme != "http" && scheme != "https"
}

// CollectLinks returns the unique harvestable hrefs of the document in order of appearance.
func CollectLinks(doc *htmldoc.Document) []string {
	if doc == nil || doc.Document == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if ShouldSkipURL(href) {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}

// NoBrokenLinks is the finding for a page without known broken links.
func NoBrokenLinks() Finding {
	return Finding{
		Status:      StatusSuccess,
		Message:     "No broken links found on the page.",
		Description: []Block{Text("Broken links frustrate visitors and waste crawl budget.")},
		Type:        CategoryPage,
	}
}

// BrokenLinksFound reports links the link checker could not reach.
func BrokenLinksFound(links []BrokenLink) Finding {
	if len(links) == 0 {
		return NoBrokenLinks()
	}
	return Finding{
		Status:  StatusError,
		Message: fmt.Sprintf("%d broken links found on the page.", len(links)),
		Description: []Block{
			Text("Broken links frustrate visitors and waste crawl budget."),
			LinkList(links),
		},
		Type: CategoryPage,
	}
}

// NewBrokenLink builds the stored record for a URL flagged as broken.
func NewBrokenLink(rawURL, details string) BrokenLink {
	if details == "" {
		details = "The link could not be reached."
	}
	return BrokenLink{URL: rawURL, Status: string(StatusError), Details: details, Type: "link"}
}

// CarryForwardBrokenLinks keeps the previously flagged links that still appear in current.
// The previous finding keeps its status and text with its list narrowed to the survivors
// and its message recounted.
// When nothing survives the finding collapses to NoBrokenLinks.
func CarryForwardBrokenLinks(previous *Finding, current []string) Finding {
	if previous == nil {
		return NoBrokenLinks()
	}
	block := previous.ListBlock()
	if block == nil {
		return NoBrokenLinks()
	}

	present := make(map[string]struct{}, len(current))
	for _, u := range current {
		present[u] = struct{}{}
	}

	kept := make([]BrokenLink, 0)
	seen := make(map[string]struct{})
	keep := func(l BrokenLink) {
		if _, ok := present[l.URL]; !ok {
			return
		}
		if _, ok := seen[l.URL]; ok {
			return
		}
		seen[l.URL] = struct{}{}
		kept = append(kept, l)
	}
	for _, u := range block.List {
		keep(NewBrokenLink(u, ""))
	}
	for _, l := range block.Links {
		keep(l)
	}

	if len(kept) == 0 {
		return NoBrokenLinks()
	}

	out := *previous
	out.Message = BrokenLinksFound(kept).Message
	out.Description = make([]Block, len(previous.Description))
	copy(out.Description, previous.Description)
	for i := range out.Description {
		if out.Description[i].IsList() {
			out.Description[i] = LinkList(kept)
			break
		}
	}
	return out
}
