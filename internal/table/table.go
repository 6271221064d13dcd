// Package table holds the in-memory tabular types shared by the profiler,
// the dictionary reconciler and the prompt assembler.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the observed kind of a dataset column.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumeric
	KindCategorical
	KindTemporal
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindTemporal:
		return "temporal"
	default:
		return "unknown"
	}
}

// DateLayout is the canonical calendar-date rendering used across reports.
const DateLayout = "2006-01-02"

// Column is a named value sequence. Which of Text, Nums and Times is
// populated depends on Kind: Text holds the raw cells for every kind except
// temporal (parsed dates replace the text), Nums is set for numeric columns
// (NaN marks a missing cell) and Times for temporal ones (zero time marks a
// missing cell).
type Column struct {
	Name  string
	Kind  Kind
	Text  []string
	Nums  []float64
	Times []time.Time
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	switch {
	case c.Times != nil:
		return len(c.Times)
	case c.Nums != nil:
		return len(c.Nums)
	default:
		return len(c.Text)
	}
}

// IsMissing reports whether cell i holds no value.
func (c *Column) IsMissing(i int) bool {
	switch c.Kind {
	case KindNumeric:
		return math.IsNaN(c.Nums[i])
	case KindTemporal:
		return c.Times[i].IsZero()
	default:
		return IsMissingText(c.Text[i])
	}
}

// Cell renders cell i as text; missing cells render as "".
func (c *Column) Cell(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	switch c.Kind {
	case KindTemporal:
		t := c.Times[i]
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(DateLayout)
		}
		return t.Format("2006-01-02 15:04:05")
	case KindNumeric:
		if c.Text != nil {
			return strings.TrimSpace(c.Text[i])
		}
		return strconv.FormatFloat(c.Nums[i], 'f', -1, 64)
	default:
		return strings.TrimSpace(c.Text[i])
	}
}

// SetTimes reinterprets the column as temporal. The text cells are dropped.
func (c *Column) SetTimes(ts []time.Time) {
	c.Kind = KindTemporal
	c.Times = ts
	c.Text = nil
	c.Nums = nil
}

// Dataset is an ordered set of equally long columns.
type Dataset struct {
	Name    string
	Columns []*Column
	Rows    int
}

// NewDataset builds an untyped dataset from a header and row records.
// Short records are padded with missing cells.
func NewDataset(name string, header []string, records [][]string) *Dataset {
	names := uniqueHeader(header)
	ds := &Dataset{Name: name, Rows: len(records)}
	for j, n := range names {
		cells := make([]string, len(records))
		for i, rec := range records {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		ds.Columns = append(ds.Columns, &Column{Name: n, Text: cells})
	}
	return ds
}

// Column returns the named column or nil.
func (d *Dataset) Column(name string) *Column {
	for _, c := range d.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames lists column names in dataset order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnsOf returns the columns of the given kind in dataset order.
func (d *Dataset) ColumnsOf(k Kind) []*Column {
	var out []*Column
	for _, c := range d.Columns {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Append adds a derived column. Its length must match the row count.
func (d *Dataset) Append(c *Column) error {
	if c.Len() != d.Rows {
		return fmt.Errorf("column %q has %d cells, dataset has %d rows", c.Name, c.Len(), d.Rows)
	}
	if d.Column(c.Name) != nil {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	d.Columns = append(d.Columns, c)
	return nil
}

// Head returns the header and up to n rows rendered as text.
func (d *Dataset) Head(n int) ([]string, [][]string) {
	if n > d.Rows {
		n = d.Rows
	}
	if n < 0 {
		n = 0
	}
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(d.Columns))
		for j, c := range d.Columns {
			row[j] = c.Cell(i)
		}
		rows[i] = row
	}
	return d.ColumnNames(), rows
}

// missingTokens mirrors the cell spellings spreadsheet exports commonly use
// for an absent value.
var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "-nan": {}, "null": {}, "none": {}, "#n/a": {}, "<na>": {}, "nil": {},
}

// IsMissingText reports whether a raw cell should be treated as missing.
func IsMissingText(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// uniqueHeader trims names, fills blanks and disambiguates duplicates.
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if _, dup := seen[name]; dup {
			base := name
			for k := seen[base] + 1; ; k++ {
				cand := fmt.Sprintf("%s.%d", base, k)
				if _, taken := seen[cand]; !taken {
					seen[base] = k
					name = cand
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}
