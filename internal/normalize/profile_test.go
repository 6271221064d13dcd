package normalize_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/KaramelBytes/tablechat-cli/internal/analysis"
	"github.com/KaramelBytes/tablechat-cli/internal/normalize"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

func TestIdempotentOnProfile(t *testing.T) {
	ds, err := table.LoadCSV(strings.NewReader("date,cat,amount,units\n2024-01-01,a,1,\n2024-02-01,b,2,3\n2024-02-02,a,,4\n"), "d.csv", ',')
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	p := analysis.ProfileDataset(ds, analysis.DefaultOptions())
	once := normalize.Value(p)
	twice := normalize.Value(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("normalize is not idempotent")
	}
	b1, err := normalize.JSON(p)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	b2, err := normalize.JSON(once)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("encoding differs after normalization")
	}
	for _, want := range []string{`"row_count": 3`, `"min_date": "2024-01-01"`} {
		if !strings.Contains(string(b1), want) {
			t.Fatalf("missing %s in JSON:\n%s", want, b1)
		}
	}
}
