// Package analysis computes the statistical and temporal profile of a
// dataset that grounds a question sent to the completion service.
package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/KaramelBytes/tablechat-cli/internal/normalize"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// Options controls optional parts of a profile.
type Options struct {
	// Correlations computes the Pearson matrix when more than one numeric
	// column exists.
	Correlations bool
	// DeriveColumns appends year/month/day/month_year columns for every
	// temporal column once the profile is computed.
	DeriveColumns bool
	// TopValues caps the most-frequent list of categorical columns.
	TopValues int
}

// DefaultOptions returns the profile settings used by the CLI and server.
func DefaultOptions() Options {
	return Options{Correlations: true, DeriveColumns: true, TopValues: 10}
}

// Limits shared by the categorical and aggregate sections.
const (
	lowCardinality = 20
	monthLayout    = "2006-01"
)

var (
	dateNameHints  = []string{"date", "time", "day", "month", "year"}
	valueNameHints = []string{"amount", "price", "revenue", "sales", "cost", "profit", "qty", "quantity", "value"}
)

// Profile is the full summary of one dataset.
type Profile struct {
	Dataset      string              `json:"dataset"`
	Rows         int                 `json:"row_count"`
	ColumnCount  int                 `json:"column_count"`
	Numeric      []NumericStats      `json:"numeric_columns"`
	Categorical  []CategoricalStats  `json:"categorical_columns"`
	Temporal     []TemporalStats     `json:"temporal_columns"`
	ValueColumns []string            `json:"value_columns,omitempty"`
	Monthly      []MonthlyAggregate  `json:"monthly_aggregations,omitempty"`
	ByCategory   []CategoryAggregate `json:"category_aggregations,omitempty"`
	Correlation  *CorrelationMatrix  `json:"correlation_matrix,omitempty"`
	Derived      []string            `json:"derived_columns,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// NumericStats summarizes a numeric column. Statistics that are undefined
// for an all-missing column are nil.
type NumericStats struct {
	Column         string   `json:"column"`
	Sum            float64  `json:"sum"`
	Mean           *float64 `json:"mean"`
	Median         *float64 `json:"median"`
	Max            *float64 `json:"max"`
	Min            *float64 `json:"min"`
	Std            *float64 `json:"std"`
	NullCount      int      `json:"null_count"`
	NullPercentage float64  `json:"null_percentage"`
}

// ValueCount is one entry of a frequency list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueShare is the percentage of non-missing rows holding Value.
type ValueShare struct {
	Value      string  `json:"value"`
	Percentage float64 `json:"percentage"`
}

// CategoricalStats summarizes a text column.
type CategoricalStats struct {
	Column           string       `json:"column"`
	UniqueValues     int          `json:"unique_values"`
	TopValues        []ValueCount `json:"top_values"`
	NullCount        int          `json:"null_count"`
	NullPercentage   float64      `json:"null_percentage"`
	ValuePercentages []ValueShare `json:"value_percentages,omitempty"`
}

// MonthCount is a record count for one YYYY-MM bucket.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// TemporalStats summarizes a date column.
type TemporalStats struct {
	Column              string       `json:"column"`
	MinDate             *time.Time   `json:"min_date"`
	MaxDate             *time.Time   `json:"max_date"`
	NullCount           int          `json:"null_count"`
	NullPercentage      float64      `json:"null_percentage"`
	MonthlyDistribution []MonthCount `json:"monthly_distribution"`
}

// Aggregate is the sum, mean and count of a value column over one bucket.
// Mean is nil when the bucket holds no present values.
type Aggregate struct {
	Key   string   `json:"key"`
	Sum   float64  `json:"sum"`
	Mean  *float64 `json:"mean"`
	Count int      `json:"count"`
}

// MonthlyAggregate buckets a value column by the month of a date column.
type MonthlyAggregate struct {
	DateColumn  string      `json:"date_column"`
	ValueColumn string      `json:"value_column"`
	Months      []Aggregate `json:"months"`
}

// CategoryAggregate groups a value column by a low-cardinality category.
type CategoryAggregate struct {
	CategoryColumn string      `json:"category_column"`
	ValueColumn    string      `json:"value_column"`
	Groups         []Aggregate `json:"groups"`
}

// CorrelationMatrix is a symmetric Pearson matrix. A nil cell means the
// coefficient is undefined for that pair. It serializes as
// {"x": {"x": 1, "y": 0.5}, "y": {...}} in column order.
type CorrelationMatrix struct {
	Columns []string
	Values  [][]*float64
}

// Normalize returns the matrix keyed by column name pairs.
func (m *CorrelationMatrix) Normalize() any {
	out := normalize.NewOrderedMap()
	for i, a := range m.Columns {
		row := normalize.NewOrderedMap()
		for j, b := range m.Columns {
			if r := m.Values[i][j]; r != nil {
				row.Set(b, *r)
			} else {
				row.Set(b, nil)
			}
		}
		out.Set(a, row)
	}
	return out
}

func (m *CorrelationMatrix) MarshalJSON() ([]byte, error) {
	return m.Normalize().(*normalize.OrderedMap).MarshalJSON()
}

// At returns the coefficient for two named columns.
func (m *CorrelationMatrix) At(a, b string) (*float64, bool) {
	ia, ib := -1, -1
	for i, c := range m.Columns {
		if c == a {
			ia = i
		}
		if c == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return nil, false
	}
	return m.Values[ia][ib], true
}

// ProfileDataset detects date columns, computes every statistic and then
// appends derived date-part columns. The dataset is modified in place.
func ProfileDataset(ds *table.Dataset, opt Options) *Profile {
	if opt.TopValues <= 0 {
		opt.TopValues = 10
	}
	p := &Profile{Dataset: ds.Name, Rows: ds.Rows, ColumnCount: len(ds.Columns)}

	DetectDates(ds)

	for _, c := range ds.Columns {
		c := c
		p.guard(c.Name, func() {
			switch c.Kind {
			case table.KindNumeric:
				p.Numeric = append(p.Numeric, numericStats(c, ds.Rows))
			case table.KindCategorical:
				p.Categorical = append(p.Categorical, categoricalStats(c, ds.Rows, opt.TopValues))
			case table.KindTemporal:
				p.Temporal = append(p.Temporal, temporalStats(c, ds.Rows))
			case table.KindUnknown:
				// no rows to infer from; still list the column with zero counts
				p.Categorical = append(p.Categorical, categoricalStats(c, ds.Rows, opt.TopValues))
			}
		})
	}

	temporal := ds.ColumnsOf(table.KindTemporal)
	if len(temporal) > 0 {
		values := valueColumns(ds)
		for _, v := range values {
			p.ValueColumns = append(p.ValueColumns, v.Name)
		}
		for _, v := range values {
			for _, d := range temporal {
				v, d := v, d
				p.guard(v.Name, func() {
					p.Monthly = append(p.Monthly, monthlyAggregate(d, v))
				})
			}
		}
		for _, v := range values {
			for _, c := range ds.ColumnsOf(table.KindCategorical) {
				v, c := v, c
				p.guard(c.Name, func() {
					if agg, ok := categoryAggregate(c, v); ok {
						p.ByCategory = append(p.ByCategory, agg)
					}
				})
			}
		}
	}

	if opt.Correlations {
		if nums := ds.ColumnsOf(table.KindNumeric); len(nums) > 1 {
			p.guard("correlation", func() { p.Correlation = correlationMatrix(nums) })
		}
	}

	if opt.DeriveColumns {
		for _, d := range temporal {
			names, err := appendDateParts(ds, d)
			p.Derived = append(p.Derived, names...)
			if err != nil {
				p.Warnings = append(p.Warnings, err.Error())
			}
		}
	}
	return p
}

// guard runs fn and turns a panic into a profile warning so one column
// cannot abort the whole profile.
func (p *Profile) guard(column string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("%s: statistics unavailable (%v)", column, r))
		}
	}()
	fn()
}

func valueColumns(ds *table.Dataset) []*table.Column {
	nums := ds.ColumnsOf(table.KindNumeric)
	var picked []*table.Column
	for _, c := range nums {
		if nameHas(c.Name, valueNameHints) {
			picked = append(picked, c)
		}
	}
	if len(picked) == 0 {
		return nums
	}
	return picked
}

func nameHas(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) * 100 / float64(total))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func ptr(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}
