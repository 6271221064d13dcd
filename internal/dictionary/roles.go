// Package dictionary turns a loosely structured data dictionary into field
// descriptors and pairs them with dataset columns.
package dictionary

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// Role identifies what a dictionary column carries.
type Role int

const (
	RoleName Role = iota
	RoleType
	RoleDescription
)

func (r Role) String() string {
	switch r {
	case RoleName:
		return "name"
	case RoleType:
		return "type"
	case RoleDescription:
		return "description"
	default:
		return "unknown"
	}
}

var roleKeywords = [...][]string{
	RoleName:        {"field", "column", "variable", "name", "attribute", "feature"},
	RoleType:        {"type", "datatype", "data_type", "format", "dtype"},
	RoleDescription: {"desc", "definition", "meaning", "explanation", "info", "comment", "documentation"},
}

const (
	sniffSamples  = 5
	shortTypeLen  = 20
	longDescrLen  = 20
	unassignedCol = -1
)

// Roles holds the column index chosen for each role, or -1.
type Roles struct {
	Name        int
	Type        int
	Description int
}

// Column returns the column index for a role and whether one was found.
func (r Roles) Column(role Role) (int, bool) {
	idx := r.get(role)
	return idx, idx >= 0
}

// Missing lists roles that could not be identified. A non-empty result is
// a degraded dictionary, not an error.
func (r Roles) Missing() []Role {
	var out []Role
	for role := RoleName; role <= RoleDescription; role++ {
		if r.get(role) < 0 {
			out = append(out, role)
		}
	}
	return out
}

func (r Roles) get(role Role) int {
	switch role {
	case RoleName:
		return r.Name
	case RoleType:
		return r.Type
	default:
		return r.Description
	}
}

func (r *Roles) set(role Role, idx int) {
	switch role {
	case RoleName:
		r.Name = idx
	case RoleType:
		r.Type = idx
	default:
		r.Description = idx
	}
}

// ClassifyRoles infers which dictionary columns hold field names, types and
// descriptions. Header keywords are tried first, then the content of the
// first few non-missing cells, then column position. Each column serves at
// most one role.
func ClassifyRoles(t *table.DictionaryTable) Roles {
	roles := Roles{Name: unassignedCol, Type: unassignedCol, Description: unassignedCol}
	if t == nil {
		return roles
	}
	claimed := make(map[int]bool, len(t.Headers))
	lower := cases.Lower(language.Und)

	for role := RoleName; role <= RoleDescription; role++ {
		for j, h := range t.Headers {
			if claimed[j] {
				continue
			}
			if containsAny(lower.String(h), roleKeywords[role]) {
				roles.set(role, j)
				claimed[j] = true
				break
			}
		}
	}

	samples := make([][]string, len(t.Headers))
	for j := range t.Headers {
		samples[j] = sampleColumn(t, j, sniffSamples)
	}
	for role := RoleName; role <= RoleDescription; role++ {
		if roles.get(role) >= 0 {
			continue
		}
		for j := range t.Headers {
			if claimed[j] || len(samples[j]) == 0 {
				continue
			}
			if sniff(role, samples[j]) {
				roles.set(role, j)
				claimed[j] = true
				break
			}
		}
	}

	for role := RoleName; role <= RoleDescription; role++ {
		pos := int(role)
		if roles.get(role) >= 0 || len(t.Headers) <= pos || claimed[pos] {
			continue
		}
		roles.set(role, pos)
		claimed[pos] = true
	}
	return roles
}

func sniff(role Role, values []string) bool {
	switch role {
	case RoleName:
		for _, v := range values {
			if strings.IndexFunc(strings.TrimSpace(v), unicode.IsSpace) >= 0 {
				return false
			}
		}
		return true
	case RoleType:
		for _, v := range values {
			if utf8.RuneCountInString(v) >= shortTypeLen {
				return false
			}
		}
		return true
	default:
		for _, v := range values {
			if utf8.RuneCountInString(v) > longDescrLen {
				return true
			}
		}
		return false
	}
}

func sampleColumn(t *table.DictionaryTable, col, n int) []string {
	var out []string
	for i := 0; i < t.Rows() && len(out) < n; i++ {
		if v, ok := t.Cell(i, col); ok {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
