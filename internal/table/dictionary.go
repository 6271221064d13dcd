package table

// DictionaryTable is a loosely structured metadata table. No schema is
// assumed; cells stay uninterpreted text.
type DictionaryTable struct {
	Name    string
	Headers []string
	Cells   [][]string // Cells[row][col]
}

// NewDictionaryTable builds a dictionary table from a header and records.
func NewDictionaryTable(name string, header []string, records [][]string) *DictionaryTable {
	names := uniqueHeader(header)
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(names))
		copy(row, rec)
		rows[i] = row
	}
	return &DictionaryTable{Name: name, Headers: names, Cells: rows}
}

// Rows returns the number of data rows.
func (t *DictionaryTable) Rows() int { return len(t.Cells) }

// Cell returns the raw value at (row, col) and false when it is missing.
func (t *DictionaryTable) Cell(row, col int) (string, bool) {
	if col < 0 || row < 0 || row >= len(t.Cells) || col >= len(t.Cells[row]) {
		return "", false
	}
	v := t.Cells[row][col]
	if IsMissingText(v) {
		return "", false
	}
	return v, true
}
