package table

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestLoadCSVTrimsHeaderAndInfersKinds(t *testing.T) {
	in := "\ufeff id , region ,amount,notes\n1,north,10.5,\n2,south,,late\n3,north,7,NA\n"
	ds, err := LoadCSV(strings.NewReader(in), "sales.csv", ',')
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if got := strings.Join(ds.ColumnNames(), "|"); got != "id|region|amount|notes" {
		t.Fatalf("header = %q", got)
	}
	if ds.Rows != 3 {
		t.Fatalf("rows = %d", ds.Rows)
	}
	want := map[string]Kind{"id": KindNumeric, "region": KindCategorical, "amount": KindNumeric, "notes": KindCategorical}
	for name, k := range want {
		if got := ds.Column(name).Kind; got != k {
			t.Errorf("%s kind = %v, want %v", name, got, k)
		}
	}
	amount := ds.Column("amount")
	if !math.IsNaN(amount.Nums[1]) || !amount.IsMissing(1) {
		t.Fatalf("expected missing amount in row 2, got %v", amount.Nums[1])
	}
	if !ds.Column("notes").IsMissing(2) {
		t.Fatalf("NA should be treated as missing")
	}
}

func TestLoadCSVPadsShortRowsAndRejectsLongOnes(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("a,b,c\n1,2\n"), "short.csv", ',')
	if err != nil {
		t.Fatalf("short rows should load: %v", err)
	}
	if !ds.Column("c").IsMissing(0) {
		t.Fatalf("padded cell should be missing")
	}

	_, err = LoadCSV(strings.NewReader("a,b\n1,2,3\n"), "long.csv", ',')
	var mie *MalformedInputError
	if !errors.As(err, &mie) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestLoadCSVEmptyInput(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""), "empty.csv", ',')
	var mie *MalformedInputError
	if !errors.As(err, &mie) || !errors.Is(err, ErrNoColumns) {
		t.Fatalf("expected ErrNoColumns, got %v", err)
	}
}

func TestHeaderOnlyKeepsUnknownKinds(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("a,b\n"), "h.csv", ',')
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if ds.Rows != 0 || ds.Columns[0].Kind != KindUnknown {
		t.Fatalf("expected 0 rows and unknown kinds, got %d %v", ds.Rows, ds.Columns[0].Kind)
	}
}

func TestUniqueHeader(t *testing.T) {
	got := uniqueHeader([]string{"a", "", "a", "a.1", "a"})
	want := []string{"a", "Unnamed: 1", "a.1", "a.1.1", "a.2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("uniqueHeader = %v, want %v", got, want)
	}
}

func TestLoadTSVBySuffix(t *testing.T) {
	ds, err := Load(strings.NewReader("x\ty\n1\thello world\n"), "data.TSV")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Column("y").Cell(0) != "hello world" {
		t.Fatalf("tab split failed: %q", ds.Column("y").Cell(0))
	}
}

func TestLoadXLSXAndDictionary(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Field", "Type", "Description"},
		{"amount", "float", "Order total in USD"},
		{"region", "string", "Sales region"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	data := buf.Bytes()

	dict, err := LoadDictionary(bytes.NewReader(data), "dict.xlsx")
	if err != nil {
		t.Fatalf("LoadDictionary: %v", err)
	}
	if dict.Rows() != 2 || dict.Headers[2] != "Description" {
		t.Fatalf("unexpected dictionary: %+v", dict)
	}
	if v, ok := dict.Cell(0, 2); !ok || v != "Order total in USD" {
		t.Fatalf("cell = %q %v", v, ok)
	}

	ds, err := LoadXLSX(bytes.NewReader(data), "dict.xlsx", "")
	if err != nil {
		t.Fatalf("LoadXLSX: %v", err)
	}
	if ds.Rows != 2 || ds.Column("Field").Kind != KindCategorical {
		t.Fatalf("unexpected dataset: rows=%d", ds.Rows)
	}
	if _, err := LoadXLSX(bytes.NewReader(data), "dict.xlsx", "Nope"); err == nil {
		t.Fatalf("expected missing sheet error")
	}
}

func TestAppendAndHead(t *testing.T) {
	ds := NewDataset("t", []string{"a"}, [][]string{{"1"}, {"2"}, {"3"}})
	InferKinds(ds)
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := ds.Append(&Column{Name: "when", Kind: KindTemporal, Times: []time.Time{d, {}, d}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ds.Append(&Column{Name: "bad", Kind: KindNumeric, Nums: []float64{1}}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if err := ds.Append(&Column{Name: "a", Kind: KindNumeric, Nums: []float64{1, 2, 3}}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	header, rows := ds.Head(2)
	if len(header) != 2 || len(rows) != 2 {
		t.Fatalf("head shape %d/%d", len(header), len(rows))
	}
	if rows[0][1] != "2024-03-01" || rows[1][1] != "" {
		t.Fatalf("head rows = %v", rows)
	}
	if _, rows := ds.Head(50); len(rows) != 3 {
		t.Fatalf("head beyond rows = %d", len(rows))
	}
}

func TestParseNumber(t *testing.T) {
	cases := map[string]bool{"1": true, " -2.5 ": true, "1e3": true, "1,000": false, "abc": false, "": false}
	for in, ok := range cases {
		if _, got := ParseNumber(in); got != ok {
			t.Errorf("ParseNumber(%q) ok = %v, want %v", in, got, ok)
		}
	}
}
