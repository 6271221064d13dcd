// Package parser loads data dictionary documents. Tabular documents become a
// table.DictionaryTable; prose documents are kept as free text.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/tablechat-cli/internal/dictionary"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

// Parser extracts text from a prose document format.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

func init() {
	Register(txtParser{})
	Register(markdownParser{})
	Register(docxParser{})
}

// ErrEmptyDocument is returned when a dictionary document has no usable content.
var ErrEmptyDocument = errors.New("dictionary document is empty")

// Document is a loaded dictionary. Exactly one of Table or Text is set.
type Document struct {
	Name  string
	Table *table.DictionaryTable
	Text  string
}

// Structured reports whether the document is tabular.
func (d *Document) Structured() bool { return d.Table != nil }

// Compile turns the document into a dictionary. Free text yields a
// dictionary with no fields and every role missing.
func (d *Document) Compile() (*dictionary.Dictionary, dictionary.Roles) {
	if d.Table != nil {
		return dictionary.FromTable(d.Table)
	}
	return dictionary.FromText(d.Text), dictionary.Roles{Name: -1, Type: -1, Description: -1}
}

// IsTabular reports whether name has a tabular extension.
func IsTabular(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".xlsx":
		return true
	}
	return false
}

// LoadFile reads a dictionary document from disk.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return Load(f, filepath.Base(path))
}

// Load reads a dictionary document whose format is implied by name. Unknown
// extensions fall back to plain text.
func Load(r io.Reader, name string) (*Document, error) {
	if IsTabular(name) {
		t, err := table.LoadDictionary(r, name)
		if err != nil {
			return nil, err
		}
		if t.Rows() == 0 {
			return nil, fmt.Errorf("%s: %w", name, ErrEmptyDocument)
		}
		return &Document{Name: name, Table: t}, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if isHTML(name) {
		return loadHTML(data, name)
	}
	text := string(bytes.TrimPrefix(data, []byte("\ufeff")))
	for _, p := range registry {
		if p.CanParse(name) {
			text, err = p.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyDocument)
	}
	return &Document{Name: name, Text: text}, nil
}
