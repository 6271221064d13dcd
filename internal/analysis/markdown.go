package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Markdown renders a compact, human-readable report of the profile.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if p.Dataset != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", p.Dataset))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", p.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", p.ColumnCount))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Numeric {
		b.WriteString(fmt.Sprintf("- %s: numeric (missing %d, %.1f%%)", safeName(c.Column), c.NullCount, c.NullPercentage))
		if c.Mean != nil {
			b.WriteString(fmt.Sprintf(" — sum %.4g, min %s, max %s, mean %s, median %s, std %s",
				c.Sum, num(c.Min), num(c.Max), num(c.Mean), num(c.Median), num(c.Std)))
		}
		b.WriteString("\n")
	}
	for _, c := range p.Categorical {
		b.WriteString(fmt.Sprintf("- %s: categorical (missing %d, %.1f%%; unique=%d)", safeName(c.Column), c.NullCount, c.NullPercentage, c.UniqueValues))
		if len(c.TopValues) > 0 {
			b.WriteString(" — top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
		}
		b.WriteString("\n")
	}
	for _, c := range p.Temporal {
		b.WriteString(fmt.Sprintf("- %s: date (missing %d, %.1f%%)", safeName(c.Column), c.NullCount, c.NullPercentage))
		if c.MinDate != nil {
			b.WriteString(fmt.Sprintf(" — %s to %s", c.MinDate.Format("2006-01-02"), c.MaxDate.Format("2006-01-02")))
		}
		b.WriteString("\n")
	}

	if len(p.Temporal) > 0 {
		b.WriteString("\n[MONTHLY RECORDS]\n")
		for _, c := range p.Temporal {
			b.WriteString(fmt.Sprintf("- %s:", safeName(c.Column)))
			for _, m := range c.MonthlyDistribution {
				b.WriteString(fmt.Sprintf(" %s=%d", m.Month, m.Count))
			}
			b.WriteString("\n")
		}
	}
	if len(p.Monthly) > 0 {
		b.WriteString("\n[MONTHLY VALUES]\n")
		for _, m := range p.Monthly {
			b.WriteString(fmt.Sprintf("- %s by %s\n", m.ValueColumn, m.DateColumn))
			for _, a := range m.Months {
				b.WriteString(fmt.Sprintf("  • %s: sum %.4g, mean %s (n=%d)\n", a.Key, a.Sum, num(a.Mean), a.Count))
			}
		}
	}
	if len(p.ByCategory) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range p.ByCategory {
			b.WriteString(fmt.Sprintf("- %s by %s\n", g.ValueColumn, g.CategoryColumn))
			for _, a := range g.Groups {
				b.WriteString(fmt.Sprintf("  • %s: sum %.4g, mean %s (n=%d)\n", safeVal(a.Key), a.Sum, num(a.Mean), a.Count))
			}
		}
	}
	if p.Correlation != nil && len(p.Correlation.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		cols := p.Correlation.Columns
		for i := range cols {
			for j := i + 1; j < len(cols); j++ {
				if r := p.Correlation.Values[i][j]; r != nil {
					pairs = append(pairs, pr{A: cols[i], B: cols[j], R: *r})
				}
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return math.Abs(pairs[i].R) > math.Abs(pairs[j].R) })
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, pp := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.2f\n", pp.A, pp.B, pp.R))
		}
	}
	if len(p.Derived) > 0 {
		b.WriteString("\n[DERIVED COLUMNS]\n")
		b.WriteString(strings.Join(p.Derived, ", "))
		b.WriteString("\n")
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func num(x *float64) string {
	if x == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *x)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
