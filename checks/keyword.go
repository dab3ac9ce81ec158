package checks

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"github.com/surerank/seo-analyzer/htmldoc"
)

// KeywordInTitle checks the focus keyword against the search engine title.
func KeywordInTitle(title, keyword string) Finding {
	return keywordIn("search engine title", title, keyword, containsFold)
}

// KeywordInDescription checks the focus keyword against the search engine description.
func KeywordInDescription(description, keyword string) Finding {
	return keywordIn("search engine description", description, keyword, containsFold)
}

// KeywordInURL checks the focus keyword against the URL, trying its slug form first.
func KeywordInURL(rawURL, keyword string) Finding {
	return keywordIn("URL", rawURL, keyword, func(haystack, needle string) bool {
		candidates := []string{haystack}
		if unescaped, err := url.PathUnescape(haystack); err == nil && unescaped != haystack {
			candidates = append(candidates, unescaped)
		}
		slug := Slugify(needle)
		for _, c := range candidates {
			if slug != "" && containsFold(c, slug) {
				return true
			}
		}
		for _, c := range candidates {
			if containsFold(c, needle) {
				return true
			}
		}
		return false
	})
}

// KeywordInContent checks the focus keyword against the visible content text.
func KeywordInContent(doc *htmldoc.Document, keyword string) Finding {
	return keywordIn("content", doc.Text(), keyword, containsFold)
}

func keywordIn(field, haystack, keyword string, match func(string, string) bool) Finding {
	keyword = strings.TrimSpace(keyword)
	help := []Block{Text(fmt.Sprintf("Using the focus keyword in the %s signals what the page is about.", field))}

	if keyword == "" {
		return Finding{
			Status:      StatusSuggestion,
			Message:     fmt.Sprintf("No focus keyword set to analyze the %s.", field),
			Description: help,
			Type:        CategoryKeyword,
		}
	}
	if strings.TrimSpace(haystack) == "" {
		return Finding{
			Status:      StatusWarning,
			Message:     fmt.Sprintf("No %s found to analyze.", field),
			Description: help,
			Type:        CategoryKeyword,
		}
	}
	if match(haystack, keyword) {
		return Finding{
			Status:      StatusSuccess,
			Message:     fmt.Sprintf("Focus keyword appears in the %s.", field),
			Description: help,
			Type:        CategoryKeyword,
		}
	}
	return Finding{
		Status:      StatusWarning,
		Message:     fmt.Sprintf("Focus keyword does not appear in the %s.", field),
		Description: help,
		Type:        CategoryKeyword,
	}
}

// containsFold is a Unicode-aware case-insensitive substring test.
func containsFold(haystack, needle string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(haystack), fold.String(needle))
}

// Slugify lowercases s and joins its words with hyphens.
func Slugify(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), "-")
}
