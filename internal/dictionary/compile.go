package dictionary

import (
	"strings"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// FieldDescriptor is the compiled metadata for one dictionary field.
type FieldDescriptor struct {
	Name        string `json:"field_name"`
	DataType    string `json:"data_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Dictionary maps field names to descriptors and remembers the order in
// which names were first seen. A dictionary loaded from free text has no
// fields and carries the text in Raw instead.
type Dictionary struct {
	Raw    string
	order  []string
	fields map[string]FieldDescriptor
}

// FromText wraps an unstructured dictionary document.
func FromText(raw string) *Dictionary {
	return &Dictionary{Raw: raw, fields: map[string]FieldDescriptor{}}
}

// Compile builds descriptors row by row. Rows without a field name are
// skipped and later rows overwrite earlier rows with the same name.
func Compile(t *table.DictionaryTable, roles Roles) *Dictionary {
	d := &Dictionary{fields: map[string]FieldDescriptor{}}
	nameCol, ok := roles.Column(RoleName)
	if t == nil || !ok {
		return d
	}
	typeCol, hasType := roles.Column(RoleType)
	descCol, hasDesc := roles.Column(RoleDescription)
	for i := 0; i < t.Rows(); i++ {
		name, ok := t.Cell(i, nameCol)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		fd := FieldDescriptor{Name: name}
		if hasType {
			v, _ := t.Cell(i, typeCol)
			fd.DataType = strings.TrimSpace(v)
		}
		if hasDesc {
			v, _ := t.Cell(i, descCol)
			fd.Description = strings.TrimSpace(v)
		}
		d.put(fd)
	}
	return d
}

// FromTable classifies and compiles a dictionary table in one step.
func FromTable(t *table.DictionaryTable) (*Dictionary, Roles) {
	roles := ClassifyRoles(t)
	return Compile(t, roles), roles
}

func (d *Dictionary) put(fd FieldDescriptor) {
	if _, exists := d.fields[fd.Name]; !exists {
		d.order = append(d.order, fd.Name)
	}
	d.fields[fd.Name] = fd
}

// Lookup returns the descriptor for an exact field name.
func (d *Dictionary) Lookup(name string) (FieldDescriptor, bool) {
	if d == nil {
		return FieldDescriptor{}, false
	}
	fd, ok := d.fields[name]
	return fd, ok
}

// Len returns the number of distinct fields.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Fields returns descriptors in first-insertion order.
func (d *Dictionary) Fields() []FieldDescriptor {
	if d == nil {
		return nil
	}
	out := make([]FieldDescriptor, 0, len(d.order))
	for _, n := range d.order {
		out = append(out, d.fields[n])
	}
	return out
}

// Text renders one line per field, or the raw text of an unstructured
// dictionary.
func (d *Dictionary) Text() string {
	if d == nil {
		return ""
	}
	if len(d.order) == 0 {
		return strings.TrimSpace(d.Raw)
	}
	var b strings.Builder
	for i, fd := range d.Fields() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatField(fd))
	}
	return b.String()
}

// FormatField renders a single descriptor line.
func FormatField(fd FieldDescriptor) string {
	switch {
	case fd.DataType != "" && fd.Description != "":
		return "- " + fd.Name + ": " + fd.DataType + ". " + fd.Description
	case fd.DataType != "":
		return "- " + fd.Name + ": " + fd.DataType
	case fd.Description != "":
		return "- " + fd.Name + ": " + fd.Description
	default:
		return "- " + fd.Name
	}
}
