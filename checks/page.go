package checks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/surerank/seo-analyzer/htmldoc"
)

// Check keys shared by the post, term and site analyzers.
const (
	KeyTitle             = "search_engine_title"
	KeyDescription       = "search_engine_description"
	KeyCanonicalURL      = "canonical_url"
	KeyURLLength         = "url_length"
	KeySubheadings       = "h2_subheadings"
	KeyMediaPresent      = "media_present"
	KeyLinksPresent      = "links_present"
	KeyImageAltText      = "image_alt_text"
	KeyOpenGraph         = "open_graph_tags"
	KeyKeywordTitle      = "keyword_in_title"
	KeyKeywordDesc       = "keyword_in_description"
	KeyKeywordURL        = "keyword_in_url"
	KeyKeywordContent    = "keyword_in_content"
	KeyBrokenLinks       = "broken_links"
	KeyH1                = "h1_heading"
	KeyH2                = "h2_headings"
	KeyLinks             = "links"
	KeyIndexing          = "indexing"
	KeyReachability      = "reachability"
	KeySecureConnection  = "secure_connection"
	KeySchema            = "schema_meta_data"
	KeyWWWCanonicalizing = "www_canonicalization"
)

// Thresholds are the configurable length limits.
type Thresholds struct {
	TitleMaxLength       int `yaml:"title_max_length" json:"title_max_length"`
	DescriptionMaxLength int `yaml:"description_max_length" json:"description_max_length"`
	URLMaxLength         int `yaml:"url_max_length" json:"url_max_length"`
}

// DefaultThresholds returns the stock limits: 60, 160 and 90 characters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TitleMaxLength:       60,
		DescriptionMaxLength: 160,
		URLMaxLength:         90,
	}
}

// Library runs the length-sensitive checks against a set of thresholds.
type Library struct {
	Thresholds Thresholds
}

// Default uses DefaultThresholds.
var Default = Library{Thresholds: DefaultThresholds()}

// NewLibrary builds a library, falling back to the default for unset limits.
func NewLibrary(t Thresholds) Library {
	d := DefaultThresholds()
	if t.TitleMaxLength <= 0 {
		t.TitleMaxLength = d.TitleMaxLength
	}
	if t.DescriptionMaxLength <= 0 {
		t.DescriptionMaxLength = d.DescriptionMaxLength
	}
	if t.URLMaxLength <= 0 {
		t.URLMaxLength = d.URLMaxLength
	}
	return Library{Thresholds: t}
}

// textLength counts characters after entity decoding.
func textLength(s string) int {
	return utf8.RuneCountInString(html.UnescapeString(strings.TrimSpace(s)))
}

// AnalyzeTitle checks the search engine title.
func (l Library) AnalyzeTitle(title string) Finding {
	max := l.Thresholds.TitleMaxLength
	help := []Block{
		Text("The search engine title is the clickable headline shown in search results."),
		Text(fmt.Sprintf("Keep it under %d characters so it is not truncated.", max)),
	}
	if strings.TrimSpace(title) == "" {
		return Finding{
			Status:      StatusError,
			Message:     "Search engine title is missing on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	if textLength(title) > max {
		return Finding{
			Status:      StatusWarning,
			Message:     fmt.Sprintf("Search engine title exceeds %d characters.", max),
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Search engine title is present and under %d characters.", max),
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// AnalyzeDescription checks the search engine description. A missing description is only a warning.
func (l Library) AnalyzeDescription(description string) Finding {
	max := l.Thresholds.DescriptionMaxLength
	help := []Block{
		Text("The search engine description is the snippet shown under the title in search results."),
		Text(fmt.Sprintf("Aim for 150 to %d characters that summarize the page.", max)),
	}
	if strings.TrimSpace(description) == "" {
		return Finding{
			Status:      StatusWarning,
			Message:     "Search engine description is missing on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	if textLength(description) > max {
		return Finding{
			Status:      StatusWarning,
			Message:     fmt.Sprintf("Search engine description exceeds %d characters.", max),
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Search engine description is present and under %d characters.", max),
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// CheckURLLength checks the page URL length.
func (l Library) CheckURLLength(url string) Finding {
	max := l.Thresholds.URLMaxLength
	help := []Block{Text("Short, descriptive URLs are easier to read and share.")}
	if strings.TrimSpace(url) == "" {
		return Finding{
			Status:      StatusWarning,
			Message:     "No URL provided.",
			Description: help,
			Type:        CategoryPage,
			NotFixable:  true,
		}
	}
	if utf8.RuneCountInString(url) > max {
		return Finding{
			Status:      StatusWarning,
			Message:     fmt.Sprintf("Page URL is longer than %d characters.", max),
			Description: help,
			Type:        CategoryPage,
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Page URL is under %d characters.", max),
		Description: help,
		Type:        CategoryPage,
	}
}

// AnalyzeCanonicalURL only checks that a canonical or a permalink is present.
// It does not compare the two.
func AnalyzeCanonicalURL(canonical, permalink string) Finding {
	help := []Block{Text("A canonical tag tells search engines which URL is the preferred version of this page.")}
	if strings.TrimSpace(canonical) == "" && strings.TrimSpace(permalink) == "" {
		return Finding{
			Status:      StatusWarning,
			Message:     "Canonical tag is not present on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Canonical tag is present on the page.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// CheckSubheadings looks for at least one H2 in the content.
func CheckSubheadings(doc *htmldoc.Document) Finding {
	help := []Block{Text("Subheadings break content into scannable sections for readers and crawlers.")}
	if count(doc, "h2") == 0 {
		return Finding{
			Status:      StatusWarning,
			Message:     "Page does not contain at least one H2 subheading.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Page contains at least one H2 subheading.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
	}
}

// ImageAltSummary aggregates alt attribute coverage.
type ImageAltSummary struct {
	Total            int
	MissingAlt       int
	MissingAltImages []string
}

// SummarizeImageAlt counts images and those with a missing or blank alt.
func SummarizeImageAlt(doc *htmldoc.Document) ImageAltSummary {
	var s ImageAltSummary
	if doc == nil || doc.Document == nil {
		return s
	}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		s.Total++
		alt, ok := img.Attr("alt")
		if ok && strings.TrimSpace(alt) != "" {
			return
		}
		s.MissingAlt++
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		if src != "" {
			s.MissingAltImages = append(s.MissingAltImages, src)
		}
	})
	return s
}

// CheckImageAltText passes only when images exist and all carry alt text.
// With automatic alt text enabled, missing alts are a suggestion since they will be filled in.
func CheckImageAltText(doc *htmldoc.Document, autoAlt bool) Finding {
	s := SummarizeImageAlt(doc)
	help := []Block{Text("Alt text describes images to screen readers and search engines.")}

	switch {
	case s.Total == 0:
		return Finding{
			Status:      StatusWarning,
			Message:     "No images found on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(false),
		}
	case s.MissingAlt == 0:
		return Finding{
			Status:      StatusSuccess,
			Message:     "Images on the page have alt attributes.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}

	desc := append(help,
		Text(fmt.Sprintf("%d of %d images are missing alt text:", s.MissingAlt, s.Total)),
		List(s.MissingAltImages...),
	)
	f := Finding{
		Status:      StatusWarning,
		Message:     "Images on the page do not have alt attributes.",
		Description: desc,
		Type:        CategoryPage,
		Exists:      boolPtr(true),
		ShowImages:  true,
	}
	if autoAlt {
		f.Status = StatusSuggestion
		f.Message = "Some images are missing alt text. It will be added automatically."
	}
	return f
}

// CheckMediaPresent passes when the content has an image or video, or the post has a featured image.
func CheckMediaPresent(doc *htmldoc.Document, hasFeaturedImage bool) Finding {
	help := []Block{Text("Images and videos make content more engaging and can rank in media search.")}
	if hasFeaturedImage || count(doc, "img, video") > 0 {
		return Finding{
			Status:      StatusSuccess,
			Message:     "This page includes images or videos to enhance content.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusWarning,
		Message:     "No images or videos found on this page.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(false),
	}
}

// CheckLinksPresent passes when the content has at least one link.
func CheckLinksPresent(doc *htmldoc.Document) Finding {
	help := []Block{Text("Links help readers and crawlers discover related content.")}
	if count(doc, "a[href]") > 0 {
		return Finding{
			Status:      StatusSuccess,
			Message:     "Links are present on the page.",
			Description: help,
			Type:        CategoryPage,
			Exists:      boolPtr(true),
		}
	}
	return Finding{
		Status:      StatusWarning,
		Message:     "No links found on this page.",
		Description: help,
		Type:        CategoryPage,
		Exists:      boolPtr(false),
	}
}

// OpenGraphToggle reflects the global Open Graph setting. It does not inspect markup.
func OpenGraphToggle(disabled bool) Finding {
	help := []Block{Text("Open Graph tags control how the page looks when shared on social networks.")}
	if disabled {
		return Finding{
			Status:      StatusSuggestion,
			Message:     "Open Graph tags are disabled in the settings.",
			Description: help,
			Type:        CategoryPage,
		}
	}
	return Finding{
		Status:      StatusSuccess,
		Message:     "Open Graph tags are present on the page.",
		Description: help,
		Type:        CategoryPage,
	}
}

func count(doc *htmldoc.Document, selector string) int {
	if doc == nil || doc.Document == nil {
		return 0
	}
	return doc.Find(selector).Length()
}
