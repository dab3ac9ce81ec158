// Package checks holds the SEO finding model and the pure check functions that produce findings.
package checks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusWarning    Status = "warning"
	StatusError      Status = "error"
	StatusSuggestion Status = "suggestion"
)

// Severity orders statuses for aggregate scoring: error > warning > suggestion > success.
func (s Status) Severity() int {
	switch s {
	case StatusError:
		return 3
	case StatusWarning:
		return 2
	case StatusSuggestion:
		return 1
	default:
		return 0
	}
}

// Category groups findings in the UI.
type Category string

const (
	CategoryPage    Category = "page"
	CategoryKeyword Category = "keyword"
)

// Finding is one check's normalized result.
type Finding struct {
	Status      Status   `json:"status"`
	Message     string   `json:"message"`
	Description []Block  `json:"description,omitempty"`
	Type        Category `json:"type,omitempty"`
	Exists      *bool    `json:"exists,omitempty"`
	NotFixable  bool     `json:"not_fixable,omitempty"`
	ShowImages  bool     `json:"show_images,omitempty"`
}

// ListBlock returns the first description block carrying a list, or nil.
func (f *Finding) ListBlock() *Block {
	for i := range f.Description {
		if f.Description[i].IsList() {
			return &f.Description[i]
		}
	}
	return nil
}

// BrokenLink is a link previously reported unreachable by the link checker.
type BrokenLink struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Block is a description entry: either plain text or a {"list": [...]} enumeration.
type Block struct {
	Text  string
	List  []string
	Links []BrokenLink
}

// Text builds a plain text block.
func Text(s string) Block { return Block{Text: s} }

// List builds a list block of strings.
func List(items ...string) Block {
	if items == nil {
		items = []string{}
	}
	return Block{List: items}
}

// LinkList builds a list block of broken link records.
func LinkList(links []BrokenLink) Block {
	if links == nil {
		links = []BrokenLink{}
	}
	return Block{Links: links}
}

// IsList reports whether the block is an enumeration.
func (b Block) IsList() bool {
	return b.List != nil || b.Links != nil
}

// URLs returns every URL in a list block, plain entries and link records alike.
func (b Block) URLs() []string {
	urls := make([]string, 0, len(b.List)+len(b.Links))
	urls = append(urls, b.List...)
	for _, l := range b.Links {
		urls = append(urls, l.URL)
	}
	return urls
}

func (b Block) MarshalJSON() ([]byte, error) {
	switch {
	case b.List != nil && b.Links != nil:
		items := make([]interface{}, 0, len(b.List)+len(b.Links))
		for _, s := range b.List {
			items = append(items, s)
		}
		for _, l := range b.Links {
			items = append(items, l)
		}
		return json.Marshal(map[string]interface{}{"list": items})
	case b.Links != nil:
		return json.Marshal(map[string]interface{}{"list": b.Links})
	case b.List != nil:
		return json.Marshal(map[string]interface{}{"list": b.List})
	default:
		return json.Marshal(b.Text)
	}
}

func (b *Block) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*b = Block{}
		return json.Unmarshal(data, &b.Text)
	}

	var wrapper struct {
		List []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("invalid description block: %w", err)
	}

	*b = Block{}
	for _, raw := range wrapper.List {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			b.List = append(b.List, s)
			continue
		}
		var l BrokenLink
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("invalid list entry: %w", err)
		}
		b.Links = append(b.Links, l)
	}
	if b.List == nil && b.Links == nil {
		b.List = []string{}
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
