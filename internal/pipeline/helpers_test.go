package pipeline

import (
	"github.com/KaramelBytes/tablechat-cli/internal/parser"
	"github.com/KaramelBytes/tablechat-cli/internal/table"
)

func parserDoc(t *table.DictionaryTable) *parser.Document {
	return &parser.Document{Name: t.Name, Table: t}
}
