package checks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultSet maps check keys to findings, remembering insertion order for stable output.
type ResultSet struct {
	keys  []string
	items map[string]Finding
}

// NewResultSet returns an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{items: make(map[string]Finding)}
}

// Set stores f under key, keeping the key's original position if it already exists.
func (r *ResultSet) Set(key string, f Finding) {
	if r.items == nil {
		r.items = make(map[string]Finding)
	}
	if _, ok := r.items[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.items[key] = f
}

// Get returns the finding stored under key.
func (r *ResultSet) Get(key string) (Finding, bool) {
	if r == nil {
		return Finding{}, false
	}
	f, ok := r.items[key]
	return f, ok
}

// Delete removes key.
func (r *ResultSet) Delete(key string) {
	if r == nil {
		return
	}
	if _, ok := r.items[key]; !ok {
		return
	}
	delete(r.items, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (r *ResultSet) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of findings.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Merge returns a new set holding every key of r, overridden by the keys of newer.
// Keys present only in r keep their previous value.
func (r *ResultSet) Merge(newer *ResultSet) *ResultSet {
	out := NewResultSet()
	for _, k := range r.Keys() {
		out.Set(k, r.items[k])
	}
	for _, k := range newer.Keys() {
		out.Set(k, newer.items[k])
	}
	return out
}

// Counts tallies findings per status.
func (r *ResultSet) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, k := range r.Keys() {
		counts[r.items[k].Status]++
	}
	return counts
}

// Worst returns the most severe status in the set, success for an empty set.
func (r *ResultSet) Worst() Status {
	worst := StatusSuccess
	for _, k := range r.Keys() {
		if s := r.items[k].Status; s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

func (r *ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.items[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *ResultSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result set must be a JSON object")
	}

	*r = ResultSet{items: make(map[string]Finding)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", tok)
		}
		var f Finding
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		r.Set(key, f)
	}
	_, err = dec.Token()
	return err
}
