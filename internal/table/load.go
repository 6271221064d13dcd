package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MalformedInputError reports a file that cannot be read as a table at all.
type MalformedInputError struct {
	Source string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("malformed table %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("malformed table: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// ErrNoColumns is wrapped by MalformedInputError when the input is empty.
var ErrNoColumns = errors.New("no columns to parse")

// SniffDelimiter picks the delimiter from the file name; comma by default.
func SniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}

// ReadRecords reads a delimited header and its rows. Rows shorter than the
// header are padded later; rows longer than the header are rejected.
func ReadRecords(r io.Reader, source string, delim rune) ([]string, [][]string, error) {
	if delim == 0 {
		delim = ','
	}
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, &MalformedInputError{Source: source, Err: ErrNoColumns}
		}
		return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("read header: %w", err)}
	}
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return nil, nil, &MalformedInputError{Source: source, Err: ErrNoColumns}
	}
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("read row %d: %w", len(rows)+1, err)}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(header) > 1 {
			continue
		}
		if len(rec) > len(header) {
			return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("row %d has %d fields, header has %d", len(rows)+1, len(rec), len(header))}
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// LoadCSV reads a delimited dataset. Kinds are inferred before returning.
func LoadCSV(r io.Reader, name string, delim rune) (*Dataset, error) {
	header, rows, err := ReadRecords(r, name, delim)
	if err != nil {
		return nil, err
	}
	ds := NewDataset(name, header, rows)
	InferKinds(ds)
	return ds, nil
}

// LoadXLSX reads the named sheet (or the first one) of a workbook.
func LoadXLSX(r io.Reader, name, sheet string) (*Dataset, error) {
	header, rows, err := readWorkbook(r, name, sheet)
	if err != nil {
		return nil, err
	}
	ds := NewDataset(name, header, rows)
	InferKinds(ds)
	return ds, nil
}

func readWorkbook(r io.Reader, source, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &MalformedInputError{Source: source, Err: errors.New("workbook has no sheets")}
	}
	target := sheets[0]
	if sheet != "" {
		target = ""
		for _, s := range sheets {
			if strings.EqualFold(s, sheet) {
				target = s
				break
			}
		}
		if target == "" {
			return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(sheets, ", "))}
		}
	}
	all, err := f.GetRows(target)
	if err != nil {
		return nil, nil, &MalformedInputError{Source: source, Err: fmt.Errorf("read sheet %s: %w", target, err)}
	}
	if len(all) == 0 || len(all[0]) == 0 {
		return nil, nil, &MalformedInputError{Source: source, Err: ErrNoColumns}
	}
	return all[0], all[1:], nil
}

// LoadFile loads a dataset from disk, choosing the reader by extension.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f, filepath.Base(path))
}

// Load reads a dataset whose format is implied by name.
func Load(r io.Reader, name string) (*Dataset, error) {
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		return LoadXLSX(r, name, "")
	}
	return LoadCSV(r, name, SniffDelimiter(name))
}

// LoadDictionary reads a tabular dictionary (.csv, .tsv or .xlsx).
func LoadDictionary(r io.Reader, name string) (*DictionaryTable, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		header, rows, err = readWorkbook(r, name, "")
	} else {
		header, rows, err = ReadRecords(r, name, SniffDelimiter(name))
	}
	if err != nil {
		return nil, err
	}
	return NewDictionaryTable(name, header, rows), nil
}
