package normalize

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	// registers the value and param-marker expression constructors used by the parser
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Parser turns SQL text into statement trees.
type Parser interface {
	Parse(sql string) ([]ast.StmtNode, error)
}

// Renderer writes a statement tree back to SQL text.
type Renderer interface {
	Render(node ast.Node) (string, error)
}

// restoreFlags controls the canonical spelling: upper-case keywords, bare
// identifiers and single spaces around binary operators.
const restoreFlags = format.RestoreKeyWordUppercase |
	format.RestoreStringSingleQuotes |
	format.RestoreSpacesAroundBinaryOperation

// TiDBParser parses the MySQL dialect with the TiDB parser.
// It keeps parser state between calls and must not be shared across goroutines.
type TiDBParser struct {
	p       *parser.Parser
	charset string
	collate string
}

// NewTiDBParser returns a parser using the server default charset and collation.
func NewTiDBParser() *TiDBParser {
	return &TiDBParser{p: parser.New()}
}

// Parse implements Parser. Parser warnings are ignored.
func (t *TiDBParser) Parse(sql string) ([]ast.StmtNode, error) {
	stmts, _, err := t.p.Parse(sql, t.charset, t.collate)
	if err != nil {
		return nil, err
	}
	return stmts, nil
}

// TiDBRenderer restores TiDB statement trees.
type TiDBRenderer struct{}

// Render implements Renderer.
func (TiDBRenderer) Render(node ast.Node) (string, error) {
	var sb strings.Builder
	if err := node.Restore(format.NewRestoreCtx(restoreFlags, &sb)); err != nil {
		return "", err
	}
	return sb.String(), nil
}
