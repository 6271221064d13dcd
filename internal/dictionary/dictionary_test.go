package dictionary

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

func dict(header []string, rows ...[]string) *table.DictionaryTable {
	return table.NewDictionaryTable("dict.csv", header, rows)
}

func TestClassifyRolesByHeaderAnyOrder(t *testing.T) {
	cases := []struct {
		header            []string
		name, typ, descr int
	}{
		{[]string{"Field Name", "Data Type", "Description"}, 0, 1, 2},
		{[]string{"Definition", "Variable", "dtype"}, 1, 2, 0},
		{[]string{"Format", "Comment", "Attribute"}, 2, 0, 1},
		{[]string{"column_type", "Meaning"}, 0, -1, 1},
	}
	for _, tc := range cases {
		r := ClassifyRoles(dict(tc.header, []string{"a", "b", "c"}))
		if r.Name != tc.name || r.Type != tc.typ || r.Description != tc.descr {
			t.Errorf("%v: got %+v, want name=%d type=%d desc=%d", tc.header, r, tc.name, tc.typ, tc.descr)
		}
	}
}

func TestClassifyRolesBySniffing(t *testing.T) {
	tbl := dict([]string{"A", "B", "C"},
		[]string{"cust_id", "int", "Unique identifier for the customer"},
		[]string{"region", "str", "Sales region"},
		[]string{"", "", ""},
		[]string{"amount", "float", "Order total in US dollars"},
	)
	r := ClassifyRoles(tbl)
	if r.Name != 0 || r.Type != 1 || r.Description != 2 {
		t.Fatalf("got %+v", r)
	}
	if len(r.Missing()) != 0 {
		t.Fatalf("missing roles: %v", r.Missing())
	}
}

func TestClassifyRolesPositionalAndDegraded(t *testing.T) {
	// No present cells, so only the position can assign a role.
	tbl := dict([]string{"A"}, []string{""})
	r := ClassifyRoles(tbl)
	if r.Name != 0 {
		t.Fatalf("positional name = %d", r.Name)
	}
	if miss := r.Missing(); len(miss) != 2 || miss[0] != RoleType || miss[1] != RoleDescription {
		t.Fatalf("missing = %v", miss)
	}

	empty := ClassifyRoles(dict(nil))
	if len(empty.Missing()) != 3 {
		t.Fatalf("empty table should miss all roles: %+v", empty)
	}
	if nilRoles := ClassifyRoles(nil); len(nilRoles.Missing()) != 3 {
		t.Fatalf("nil table should miss all roles")
	}
}

func TestCompileLastWriteWinsAndOrder(t *testing.T) {
	tbl := dict([]string{"field", "type", "description"},
		[]string{" A ", "int", "first"},
		[]string{"B", "", ""},
		[]string{"", "str", "skipped"},
		[]string{"A", "str", "second"},
		[]string{"C", "", "only description"},
	)
	d, _ := FromTable(tbl)
	a, ok := d.Lookup("A")
	if !ok || a.DataType != "str" || a.Description != "second" {
		t.Fatalf("A = %+v", a)
	}
	if d.Len() != 3 {
		t.Fatalf("len = %d", d.Len())
	}
	want := strings.Join([]string{"- A: str. second", "- B", "- C: only description"}, "\n")
	if got := d.Text(); got != want {
		t.Fatalf("text:\n%s\nwant:\n%s", got, want)
	}
	if FormatField(FieldDescriptor{Name: "x", DataType: "int"}) != "- x: int" {
		t.Fatalf("type-only format")
	}
}

func TestCompileWithoutNameRole(t *testing.T) {
	d := Compile(dict([]string{"x"}), Roles{Name: -1, Type: -1, Description: -1})
	if d.Len() != 0 || d.Text() != "" {
		t.Fatalf("expected empty dictionary")
	}
}

func TestFromTextKeepsRaw(t *testing.T) {
	d := FromText("  amount is in USD\n")
	if d.Text() != "amount is in USD" || d.Len() != 0 {
		t.Fatalf("raw text = %q", d.Text())
	}
	rec := Reconcile([]string{"amount"}, d)
	if rec[0].Kind != MatchNone {
		t.Fatalf("free text dictionary should not match columns")
	}
}

func compiled(names ...string) *Dictionary {
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	d, _ := FromTable(dict([]string{"field"}, rows...))
	return d
}

func TestReconcileFuzzyAndExactPriority(t *testing.T) {
	rec := Reconcile([]string{"CustomerID"}, compiled("customer_id"))
	if rec[0].Kind != MatchFuzzy || rec[0].Field.Name != "customer_id" {
		t.Fatalf("fuzzy: %+v", rec[0])
	}

	rec = Reconcile([]string{"CustomerID"}, compiled("customer_id", "CustomerID"))
	if rec[0].Kind != MatchExact || rec[0].Field.Name != "CustomerID" {
		t.Fatalf("exact should win: %+v", rec[0])
	}
}

func TestReconcileFieldUsedOnce(t *testing.T) {
	rec := Reconcile([]string{"order date", "order_date_local", "amount", "___"}, compiled("OrderDate", "Amt"))
	if m, _ := rec.For("order date"); m.Kind != MatchFuzzy || m.Field.Name != "OrderDate" {
		t.Fatalf("first column: %+v", m)
	}
	if m, _ := rec.For("order_date_local"); m.Kind != MatchNone {
		t.Fatalf("field reused: %+v", m)
	}
	// "amt" is not a substring of "amount" nor the reverse.
	if m, _ := rec.For("amount"); m.Kind != MatchNone {
		t.Fatalf("amount: %+v", m)
	}
	if m, _ := rec.For("___"); m.Kind != MatchNone {
		t.Fatalf("empty normalized form matched: %+v", m)
	}
	if rec.Count(MatchFuzzy) != 1 || rec.Count(MatchNone) != 3 {
		t.Fatalf("counts fuzzy=%d none=%d", rec.Count(MatchFuzzy), rec.Count(MatchNone))
	}
}

func TestReconcileFirstMatchInDictionaryOrder(t *testing.T) {
	rec := Reconcile([]string{"total_sales"}, compiled("sales", "total sales"))
	if rec[0].Field.Name != "sales" {
		t.Fatalf("expected first dictionary field, got %+v", rec[0].Field)
	}
}
