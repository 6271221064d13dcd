package table

import (
	"math"
	"strconv"
	"strings"
)

// InferKinds assigns a kind to every column still marked KindUnknown.
// A column whose present cells all parse as numbers is numeric; a column
// with no present cells at all is numeric too (an all-missing float
// column). Everything else is categorical. Tables without rows keep
// KindUnknown since no evidence exists either way.
func InferKinds(ds *Dataset) {
	if ds.Rows == 0 {
		return
	}
	for _, c := range ds.Columns {
		if c.Kind != KindUnknown {
			continue
		}
		nums, ok := parseNumericColumn(c.Text)
		if ok {
			c.Kind = KindNumeric
			c.Nums = nums
			continue
		}
		c.Kind = KindCategorical
	}
}

func parseNumericColumn(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, raw := range cells {
		if IsMissingText(raw) {
			out[i] = math.NaN()
			continue
		}
		f, ok := ParseNumber(raw)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// ParseNumber parses a plain decimal or scientific-notation number.
// Thousands separators are not accepted, matching how CSV readers treat
// "1,000" as text.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
