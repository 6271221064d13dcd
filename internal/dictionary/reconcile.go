package dictionary

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MatchKind says how a dataset column was paired with a field.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
	MatchNone  MatchKind = "none"
)

// Match pairs one dataset column with an optional descriptor.
type Match struct {
	Column string           `json:"column"`
	Kind   MatchKind        `json:"match"`
	Field  *FieldDescriptor `json:"field,omitempty"`
}

// Reconciliation lists matches in dataset column order.
type Reconciliation []Match

// For returns the match for a dataset column.
func (r Reconciliation) For(column string) (Match, bool) {
	for _, m := range r {
		if m.Column == column {
			return m, true
		}
	}
	return Match{}, false
}

// Count returns how many columns matched with the given kind.
func (r Reconciliation) Count(kind MatchKind) int {
	n := 0
	for _, m := range r {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Reconcile pairs dataset columns with dictionary fields. Identical names
// are matched first. Every remaining column then takes the first unused
// field, in dictionary order, whose normalized name contains or is
// contained by the column's normalized name. No field is used twice.
func Reconcile(columns []string, d *Dictionary) Reconciliation {
	out := make(Reconciliation, len(columns))
	used := map[string]bool{}
	for i, col := range columns {
		out[i] = Match{Column: col, Kind: MatchNone}
		if fd, ok := d.Lookup(col); ok && !used[col] {
			fd := fd
			out[i].Kind = MatchExact
			out[i].Field = &fd
			used[col] = true
		}
	}

	fields := d.Fields()
	norms := make([]string, len(fields))
	for k, fd := range fields {
		norms[k] = Normalize(fd.Name)
	}
	for i, col := range columns {
		if out[i].Kind != MatchNone {
			continue
		}
		nc := Normalize(col)
		if nc == "" {
			continue
		}
		for k, fd := range fields {
			nf := norms[k]
			if used[fd.Name] || nf == "" {
				continue
			}
			if strings.Contains(nc, nf) || strings.Contains(nf, nc) {
				fd := fd
				out[i].Kind = MatchFuzzy
				out[i].Field = &fd
				used[fd.Name] = true
				break
			}
		}
	}
	return out
}

var stripSeparators = strings.NewReplacer(" ", "", "_", "")

// Normalize lower-cases a name and drops spaces and underscores.
func Normalize(s string) string {
	return stripSeparators.Replace(cases.Lower(language.Und).String(s))
}
