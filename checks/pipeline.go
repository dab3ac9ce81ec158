package checks

import (
	"fmt"
	"log/slog"
)

// Check is a named step of a pipeline.
type Check[T any] struct {
	Name string
	Fn   func(T) Finding
}

// Pipeline is an ordered battery of checks over a shared input. Callers may append their own checks.
type Pipeline[T any] struct {
	checks []Check[T]
}

// NewPipeline builds a pipeline from checks in order.
func NewPipeline[T any](checks ...Check[T]) *Pipeline[T] {
	return &Pipeline[T]{checks: checks}
}

// Append adds a check at the end. A check with an existing name replaces it in place.
func (p *Pipeline[T]) Append(name string, fn func(T) Finding) *Pipeline[T] {
	for i := range p.checks {
		if p.checks[i].Name == name {
			p.checks[i].Fn = fn
			return p
		}
	}
	p.checks = append(p.checks, Check[T]{Name: name, Fn: fn})
	return p
}

// Names lists the check keys in run order.
func (p *Pipeline[T]) Names() []string {
	names := make([]string, len(p.checks))
	for i, c := range p.checks {
		names[i] = c.Name
	}
	return names
}

// Run executes every check. A panicking check yields an error finding and the battery carries on.
func (p *Pipeline[T]) Run(in T) *ResultSet {
	rs := NewResultSet()
	for _, c := range p.checks {
		rs.Set(c.Name, runOne(c, in))
	}
	return rs
}

func runOne[T any](c Check[T], in T) (f Finding) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("check panicked", "check", c.Name, "panic", r)
			f = Failed(c.Name, fmt.Errorf("%v", r))
		}
	}()
	return c.Fn(in)
}

// Failed is the finding reported for a check that could not complete.
func Failed(name string, err error) Finding {
	return Finding{
		Status:      StatusError,
		Message:     fmt.Sprintf("The %s check could not be completed.", name),
		Description: []Block{Text(err.Error())},
		Type:        CategoryPage,
		NotFixable:  true,
	}
}

// MissingDocument is reported by document checks when the page could not be fetched or parsed.
func MissingDocument(errs []string) Finding {
	desc := []Block{Text("The page could not be fetched or parsed, so this check was not run.")}
	if len(errs) > 0 {
		desc = append(desc, List(errs...))
	}
	return Finding{
		Status:      StatusError,
		Message:     "Page content is not available for analysis.",
		Description: desc,
		Type:        CategoryPage,
		NotFixable:  true,
	}
}
