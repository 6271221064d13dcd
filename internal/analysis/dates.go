package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// dateLayouts are tried in order. Month-first slashes win over day-first
// unless a day-first layout is the only one that fits the whole column.
var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "2006.01.02",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
	"01/02/2006", "1/2/2006", "02/01/2006",
	"1/2/2006 15:04", "1/2/2006 15:04:05", "01/02/2006 15:04:05",
	"2006-01", "Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006", "Jan 2006",
}

// DetectDates converts date-like categorical columns to temporal in place.
// A column qualifies when its name hints at a date and every present cell
// parses, or when more than half of all rows parse. Cells that do not
// parse become missing. Numeric columns are never reinterpreted.
func DetectDates(ds *table.Dataset) []string {
	var converted []string
	for _, c := range ds.Columns {
		if c.Kind != table.KindCategorical {
			continue
		}
		times, parsed, present := parseColumn(c)
		if parsed == 0 {
			continue
		}
		byName := nameHas(c.Name, dateNameHints) && parsed == present
		byContent := float64(parsed) > 0.5*float64(ds.Rows)
		if byName || byContent {
			c.SetTimes(times)
			converted = append(converted, c.Name)
		}
	}
	return converted
}

// parseColumn reads every cell with the single layout chosen for the
// column, so 01/02/2024 and 13/02/2024 never end up in different orders.
func parseColumn(c *table.Column) (times []time.Time, parsed, present int) {
	var cells []string
	for _, raw := range c.Text {
		if !table.IsMissingText(raw) {
			cells = append(cells, strings.TrimSpace(raw))
		}
	}
	present = len(cells)
	layout, ok := columnLayout(cells)
	times = make([]time.Time, len(c.Text))
	if !ok {
		return times, 0, present
	}
	for i, raw := range c.Text {
		if table.IsMissingText(raw) {
			continue
		}
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			times[i] = t
			parsed++
		}
	}
	return times, parsed, present
}

// columnLayout picks the layout for a column: the first candidate that
// parses every cell, otherwise the one parsing the most cells (earlier
// candidates win ties). Candidates are the known layouts followed by any
// layout dateparse infers from the cells themselves.
func columnLayout(cells []string) (string, bool) {
	candidates := append([]string(nil), dateLayouts...)
	seen := map[string]bool{}
	for _, l := range candidates {
		seen[l] = true
	}
	for _, cell := range cells {
		l, err := dateparse.ParseFormat(cell, dateparse.PreferMonthFirst(true))
		if err != nil || seen[l] {
			continue
		}
		seen[l] = true
		candidates = append(candidates, l)
	}

	best, bestHits := "", 0
	for _, l := range candidates {
		hits := 0
		for _, cell := range cells {
			if _, err := time.Parse(l, cell); err == nil {
				hits++
			}
		}
		if hits == len(cells) && hits > 0 {
			return l, true
		}
		if hits > bestHits {
			best, bestHits = l, hits
		}
	}
	return best, bestHits > 0
}

// appendDateParts adds {col}_year, {col}_month, {col}_day and
// {col}_month_year. Names already present are skipped and reported.
func appendDateParts(ds *table.Dataset, c *table.Column) ([]string, error) {
	n := len(c.Times)
	year := make([]float64, n)
	month := make([]float64, n)
	day := make([]float64, n)
	my := make([]string, n)
	for i, t := range c.Times {
		if t.IsZero() {
			year[i], month[i], day[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		year[i] = float64(t.Year())
		month[i] = float64(t.Month())
		day[i] = float64(t.Day())
		my[i] = t.Format(monthLayout)
	}
	parts := []*table.Column{
		{Name: c.Name + "_year", Kind: table.KindNumeric, Nums: year},
		{Name: c.Name + "_month", Kind: table.KindNumeric, Nums: month},
		{Name: c.Name + "_day", Kind: table.KindNumeric, Nums: day},
		{Name: c.Name + "_month_year", Kind: table.KindCategorical, Text: my},
	}
	var (
		added   []string
		skipped []string
	)
	for _, p := range parts {
		if err := ds.Append(p); err != nil {
			skipped = append(skipped, p.Name)
			continue
		}
		added = append(added, p.Name)
	}
	if len(skipped) > 0 {
		return added, fmt.Errorf("derived columns not added: %s", strings.Join(skipped, ", "))
	}
	return added, nil
}
