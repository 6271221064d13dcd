package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// loadHTML reads an exported wiki or catalog page. The first <table> with a
// header and at least one data row becomes a dictionary table; otherwise
// the page's block text is kept as free text.
func loadHTML(data []byte, name string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	doc.Find("script, style, noscript").Remove()

	var t *table.DictionaryTable
	doc.Find("table").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		t = htmlTable(sel, name)
		return t == nil
	})
	if t != nil {
		return &Document{Name: name, Table: t}, nil
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, dt, dd, pre").Each(func(_ int, sel *goquery.Selection) {
		if s := strings.Join(strings.Fields(sel.Text()), " "); s != "" {
			lines = append(lines, s)
		}
	})
	text := strings.Join(lines, "\n")
	if text == "" {
		text = strings.TrimSpace(collapseBlankLines(doc.Find("body").Text()))
	}
	if text == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyDocument)
	}
	return &Document{Name: name, Text: text}, nil
}

// htmlTable takes the first row as the header. Returns nil when the table
// has no header cells or no data rows.
func htmlTable(sel *goquery.Selection, name string) *table.DictionaryTable {
	var header []string
	var records [][]string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(c.Text()), " "))
		})
		if len(cells) == 0 {
			return
		}
		if header == nil {
			header = cells
			return
		}
		records = append(records, cells)
	})
	if len(header) == 0 || len(records) == 0 {
		return nil
	}
	return table.NewDictionaryTable(name, header, records)
}
