// Package htmldoc turns raw, frequently malformed HTML into a queryable document.
package htmldoc

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/surerank/seo-analyzer/seoerr"
)

// Document is a parsed page together with the notes collected while preparing it.
type Document struct {
	*goquery.Document

	// Raw is the markup after pre-processing.
	Raw string

	// Errors holds non-fatal problems met during pre-processing and parsing.
	Errors []string
}

var (
	entityRef     = regexp.MustCompile(`^&(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]{1,31});`)
	doctypeOrHTML = regexp.MustCompile(`(?i)<!doctype\s+html|<html[\s>]`)
)

// Parse prepares raw scraped HTML and builds a document from it.
func Parse(raw string) (*Document, error) {
	const op = "htmldoc.Parse"

	var notes []string

	if strings.TrimSpace(raw) == "" {
		return nil, seoerr.New(seoerr.KindParseFailed, op, "empty document")
	}

	if !utf8.ValidString(raw) {
		decoded, name, err := toUTF8(raw)
		if err != nil {
			return nil, seoerr.Wrap(seoerr.KindParseFailed, op, err)
		}
		raw = decoded
		notes = append(notes, fmt.Sprintf("input re-encoded from %s", name))
	}

	raw = EscapeBareAmpersands(raw)

	if !doctypeOrHTML.MatchString(raw) {
		raw = "<!DOCTYPE html><html><body>" + raw + "</body></html>"
	}

	if strings.TrimSpace(raw) == "" {
		return nil, seoerr.New(seoerr.KindParseFailed, op, "empty document after pre-processing")
	}

	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, seoerr.Wrap(seoerr.KindParseFailed, op, err)
	}
	if findElement(root, "html") == nil {
		return nil, seoerr.New(seoerr.KindParseFailed, op, "no document tree produced")
	}

	StripEventHandlers(root)

	return &Document{
		Document: goquery.NewDocumentFromNode(root),
		Raw:      raw,
		Errors:   notes,
	}, nil
}

// ParseFragment parses rendered post or term content. It returns nil when nothing usable comes out.
func ParseFragment(content string) *Document {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	encoded := EncodeNonASCII(content)
	root, err := html.Parse(strings.NewReader("<!DOCTYPE html><html><body>" + encoded + "</body></html>"))
	if err != nil {
		return nil
	}
	if findElement(root, "body") == nil {
		return nil
	}
	StripEventHandlers(root)

	return &Document{
		Document: goquery.NewDocumentFromNode(root),
		Raw:      encoded,
	}
}

// EscapeBareAmpersands replaces every & that does not start a character reference with &amp;.
func EscapeBareAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		if m := entityRef.FindString(s[i:]); m != "" {
			b.WriteString(m)
			i += len(m) - 1
			continue
		}
		b.WriteString("&amp;")
	}
	return b.String()
}

// EncodeNonASCII rewrites every non-ASCII rune as a numeric character reference.
func EncodeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "&#%d;", r)
	}
	return b.String()
}

// StripEventHandlers removes on* attributes from every element below n.
func StripEventHandlers(n *html.Node) {
	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if len(a.Key) > 2 && strings.EqualFold(a.Key[:2], "on") {
				continue
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		StripEventHandlers(c)
	}
}

// Text returns the visible text of the body, scripts and styles excluded.
func (d *Document) Text() string {
	if d == nil || d.Document == nil {
		return ""
	}
	body := d.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

func toUTF8(raw string) (string, string, error) {
	enc, name, _ := charset.DetermineEncoding([]byte(raw), "text/html")
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader([]byte(raw)), enc.NewDecoder()))
	if err != nil {
		return "", name, fmt.Errorf("failed to decode %s input: %w", name, err)
	}
	if !utf8.Valid(out) {
		return "", name, fmt.Errorf("input is not decodable as %s", name)
	}
	return string(out), name, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
