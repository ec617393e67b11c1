// Package redirects merges the site's named redirect lists into the single
// table consumed by the hosting platform.
//
// Lists are consumed in precedence order, lowest first. A source path may
// appear only once across all lists: a repeated source is reported as a
// *CollisionError rather than silently overriding the earlier entry, so that
// moving a page can never break an existing redirect by accident. Source
// paths are compared as exact strings; no trailing-slash or case
// normalization is applied.
package redirects

import (
	"fmt"
	"net/http"

	"github.com/nomicfoundation/sitedata/internal/validation"
)

// Entry is a single redirect declaration.
type Entry struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
	Permanent   bool   `json:"permanent" yaml:"permanent"`
}

// Status returns the HTTP status code served for the entry.
func (e Entry) Status() int {
	if e.Permanent {
		return http.StatusMovedPermanently
	}
	return http.StatusFound
}

// List is an ordered, named category of redirects.
type List struct {
	Name    string
	Entries []Entry
}

// Target is what a source path resolves to in the aggregate table.
type Target struct {
	Destination string `json:"destination" yaml:"destination"`
	Status      int    `json:"status" yaml:"status"`
}

// CollisionError reports a source path declared more than once.
type CollisionError struct {
	Source              string
	FirstDestination    string
	FirstList           string
	ConflictDestination string
	ConflictList        string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("duplicate redirect source %q: %q (list %q) conflicts with %q (list %q)",
		e.Source, e.FirstDestination, e.FirstList, e.ConflictDestination, e.ConflictList)
}

type row struct {
	target Target
	list   string
}

// Table is the aggregated redirect mapping. Sources keep insertion order.
type Table struct {
	order []string
	rows  map[string]row
}

// Aggregate merges lists in the order given. The first repeated source
// aborts the merge with a *CollisionError.
func Aggregate(lists ...List) (*Table, error) {
	size := 0
	for _, l := range lists {
		size += len(l.Entries)
	}

	t := &Table{
		order: make([]string, 0, size),
		rows:  make(map[string]row, size),
	}

	for _, l := range lists {
		for _, e := range l.Entries {
			if prev, ok := t.rows[e.Source]; ok {
				return nil, &CollisionError{
					Source:              e.Source,
					FirstDestination:    prev.target.Destination,
					FirstList:           prev.list,
					ConflictDestination: e.Destination,
					ConflictList:        l.Name,
				}
			}
			t.rows[e.Source] = row{
				target: Target{Destination: e.Destination, Status: e.Status()},
				list:   l.Name,
			}
			t.order = append(t.order, e.Source)
		}
	}

	return t, nil
}

// Len returns the number of sources in the table.
func (t *Table) Len() int {
	return len(t.order)
}

// Lookup resolves an exact source path.
func (t *Table) Lookup(source string) (Target, bool) {
	r, ok := t.rows[source]
	return r.target, ok
}

// Origin returns the name of the list that declared source.
func (t *Table) Origin(source string) (string, bool) {
	r, ok := t.rows[source]
	return r.list, ok
}

// Sources returns the source paths in insertion order.
func (t *Table) Sources() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Map returns a copy of the table as a plain map.
func (t *Table) Map() map[string]Target {
	out := make(map[string]Target, len(t.rows))
	for src, r := range t.rows {
		out[src] = r.target
	}
	return out
}

// Validate checks every entry of l: the source must be a site path and the
// destination either a site path or an absolute http(s) URL.
func Validate(l List) error {
	for i, e := range l.Entries {
		if err := validation.ValidateSitePath(e.Source); err != nil {
			return fmt.Errorf("list %q entry %d: source: %w", l.Name, i, err)
		}
		if err := validation.ValidateRedirectDestination(e.Destination); err != nil {
			return fmt.Errorf("list %q entry %d (%s): %w", l.Name, i, e.Source, err)
		}
	}
	return nil
}
