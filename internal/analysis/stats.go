package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

func numericStats(c *table.Column, rows int) NumericStats {
	st := NumericStats{Column: c.Name}
	var (
		n        int
		mean, m2 float64
		lo, hi   = math.Inf(1), math.Inf(-1)
		present  []float64
	)
	for _, x := range c.Nums {
		if math.IsNaN(x) {
			st.NullCount++
			continue
		}
		n++
		st.Sum += x
		// Welford
		d := x - mean
		mean += d / float64(n)
		m2 += d * (x - mean)
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
		present = append(present, x)
	}
	st.NullPercentage = percentOf(st.NullCount, rows)
	if n == 0 {
		return st
	}
	sort.Float64s(present)
	st.Mean = ptr(mean)
	st.Median = ptr(quantile(present, 0.5))
	st.Min = ptr(lo)
	st.Max = ptr(hi)
	st.Std = ptr(math.Sqrt(m2 / float64(n)))
	return st
}

// frequencies counts present values, remembering first-seen order.
func frequencies(c *table.Column) (counts map[string]int, order []string, present int) {
	counts = map[string]int{}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		v := c.Cell(i)
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
		present++
	}
	return counts, order, present
}

// byCount orders values by descending count; ties keep first-seen order.
func byCount(counts map[string]int, order []string) []string {
	out := append([]string(nil), order...)
	sort.SliceStable(out, func(i, j int) bool { return counts[out[i]] > counts[out[j]] })
	return out
}

func categoricalStats(c *table.Column, rows, top int) CategoricalStats {
	counts, order, present := frequencies(c)
	st := CategoricalStats{
		Column:         c.Name,
		UniqueValues:   len(order),
		NullCount:      rows - present,
		NullPercentage: percentOf(rows-present, rows),
		TopValues:      []ValueCount{},
	}
	ranked := byCount(counts, order)
	for i, v := range ranked {
		if i >= top {
			break
		}
		st.TopValues = append(st.TopValues, ValueCount{Value: v, Count: counts[v]})
	}
	if len(order) > 0 && len(order) < lowCardinality {
		for _, v := range ranked {
			st.ValuePercentages = append(st.ValuePercentages, ValueShare{Value: v, Percentage: percentOf(counts[v], present)})
		}
	}
	return st
}

func temporalStats(c *table.Column, rows int) TemporalStats {
	st := TemporalStats{Column: c.Name, MonthlyDistribution: []MonthCount{}}
	var lo, hi time.Time
	buckets := map[string]int{}
	for _, t := range c.Times {
		if t.IsZero() {
			st.NullCount++
			continue
		}
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
		buckets[t.Format(monthLayout)]++
	}
	st.NullPercentage = percentOf(st.NullCount, rows)
	if !lo.IsZero() {
		loDay, hiDay := calendarDate(lo), calendarDate(hi)
		st.MinDate, st.MaxDate = &loDay, &hiDay
	}
	for _, m := range sortedKeys(buckets) {
		st.MonthlyDistribution = append(st.MonthlyDistribution, MonthCount{Month: m, Count: buckets[m]})
	}
	return st
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type bucket struct {
	sum   float64
	count int
}

func (b bucket) aggregate(key string) Aggregate {
	a := Aggregate{Key: key, Sum: b.sum, Count: b.count}
	if b.count > 0 {
		a.Mean = ptr(b.sum / float64(b.count))
	}
	return a
}

func monthlyAggregate(date, value *table.Column) MonthlyAggregate {
	buckets := map[string]*bucket{}
	for i, t := range date.Times {
		if t.IsZero() {
			continue
		}
		k := t.Format(monthLayout)
		b := buckets[k]
		if b == nil {
			b = &bucket{}
			buckets[k] = b
		}
		if x := value.Nums[i]; !math.IsNaN(x) {
			b.sum += x
			b.count++
		}
	}
	agg := MonthlyAggregate{DateColumn: date.Name, ValueColumn: value.Name, Months: []Aggregate{}}
	for _, k := range sortedKeys(buckets) {
		agg.Months = append(agg.Months, buckets[k].aggregate(k))
	}
	return agg
}

func categoryAggregate(cat, value *table.Column) (CategoryAggregate, bool) {
	buckets := map[string]*bucket{}
	for i := 0; i < cat.Len(); i++ {
		if cat.IsMissing(i) {
			continue
		}
		k := cat.Cell(i)
		b := buckets[k]
		if b == nil {
			if len(buckets) >= lowCardinality-1 {
				return CategoryAggregate{}, false
			}
			b = &bucket{}
			buckets[k] = b
		}
		if x := value.Nums[i]; !math.IsNaN(x) {
			b.sum += x
			b.count++
		}
	}
	if len(buckets) == 0 {
		return CategoryAggregate{}, false
	}
	agg := CategoryAggregate{CategoryColumn: cat.Name, ValueColumn: value.Name}
	for _, k := range sortedKeys(buckets) {
		agg.Groups = append(agg.Groups, buckets[k].aggregate(k))
	}
	return agg, true
}

// correlationMatrix computes Pearson coefficients over rows where both
// columns are present.
func correlationMatrix(cols []*table.Column) *CorrelationMatrix {
	n := len(cols)
	m := &CorrelationMatrix{Columns: make([]string, n), Values: make([][]*float64, n)}
	for i, c := range cols {
		m.Columns[i] = c.Name
		m.Values[i] = make([]*float64, n)
	}
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			r := pearson(cols[a].Nums, cols[b].Nums)
			if a == b && r != nil {
				one := 1.0
				r = &one
			}
			if r != nil {
				rounded := round2(*r)
				r = &rounded
			}
			m.Values[a][b] = r
			m.Values[b][a] = r
		}
	}
	return m
}

func pearson(xs, ys []float64) *float64 {
	var (
		n, sx, sy, sxx, syy, sxy float64
		x0, y0                   float64
		xVaries, yVaries         bool
	)
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		if n == 0 {
			x0, y0 = x, y
		}
		xVaries = xVaries || x != x0
		yVaries = yVaries || y != y0
		n++
		sx += x
		sy += y
		sxx += x * x
		syy += y * y
		sxy += x * y
	}
	if n < 2 || !xVaries || !yVaries {
		return nil
	}
	denom := math.Sqrt((n*sxx - sx*sx) * (n*syy - sy*sy))
	if denom == 0 || math.IsNaN(denom) {
		return nil
	}
	r := (n*sxy - sx*sy) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return ptr(r)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
