// Package normalize rewrites SQL statements into a canonical, literal-free
// form and fingerprints the result.
//
// A statement is parsed, every literal value reachable from the handled
// clauses is replaced by a "?" placeholder and the tree is restored to text.
// Statement and expression kinds that are not handled are rendered unchanged.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("failed to parse query")
	// ErrInvalidQuery is returned when the input holds no statement.
	ErrInvalidQuery = errors.New("no valid SQL statement found")
	// ErrRender is returned when a scrubbed statement cannot be restored.
	ErrRender = errors.New("failed to render query")
)

// ParseError carries the parser's message for unparsable SQL.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	return "failed to parse query: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrParse as a match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Normalizer replaces literals with placeholders. It is not safe for
// concurrent use; give each stream its own.
type Normalizer struct {
	parser   Parser
	renderer Renderer
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithParser swaps the SQL parser.
func WithParser(p Parser) Option {
	return func(n *Normalizer) { n.parser = p }
}

// WithRenderer swaps the SQL renderer.
func WithRenderer(r Renderer) Option {
	return func(n *Normalizer) { n.renderer = r }
}

// New returns a Normalizer backed by the TiDB parser.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		parser:   NewTiDBParser(),
		renderer: TiDBRenderer{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the canonical text of the first statement in sql.
// Any further statements are discarded.
func (n *Normalizer) Normalize(sql string) (string, error) {
	stmts, err := n.parse(sql)
	if err != nil {
		return "", err
	}
	if len(stmts) == 0 {
		return "", ErrInvalidQuery
	}
	return n.render(stmts[0])
}

func (n *Normalizer) parse(sql string) (stmts []ast.StmtNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			stmts = nil
			err = &ParseError{Msg: fmt.Sprint(r)}
		}
	}()

	stmts, err = n.parser.Parse(sql)
	if err != nil {
		return nil, &ParseError{Msg: err.Error(), Err: err}
	}
	return stmts, nil
}

// render scrubs stmt in place and restores it. The restorer panics on
// argument shapes it does not expect; that is reported as ErrRender.
func (n *Normalizer) render(stmt ast.StmtNode) (formatted string, err error) {
	defer func() {
		if r := recover(); r != nil {
			formatted = ""
			err = fmt.Errorf("%w: %v", ErrRender, r)
		}
	}()

	scrubStatement(stmt)
	formatted, err = n.renderer.Render(stmt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return formatted, nil
}

// SQLType is the lower-cased leading keyword of a canonical statement,
// "other" when there is none.
func SQLType(formatted string) string {
	words := strings.Fields(formatted)
	if len(words) > 0 {
		return strings.ToLower(words[0])
	}
	return "other"
}

func placeholder() ast.ExprNode {
	return ast.NewParamMarkerExpr(0)
}

func scrubStatement(stmt ast.StmtNode) {
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		scrubSelect(s)
	case *ast.UpdateStmt:
		for _, a := range s.List {
			a.Expr = scrub(a.Expr)
		}
		s.Where = scrub(s.Where)
	case *ast.InsertStmt:
		for _, row := range s.Lists {
			scrubList(row)
		}
		for _, a := range s.OnDuplicate {
			a.Expr = scrub(a.Expr)
		}
	case *ast.DeleteStmt:
		s.Where = scrub(s.Where)
	default:
		// SetOprStmt, DDL, SHOW, SET, CALL ... are rendered as parsed.
	}
}

func scrubSelect(s *ast.SelectStmt) {
	s.Where = scrub(s.Where)
	scrubFields(s)
}

// scrubSubquery handles a nested select: its filter when present,
// otherwise its projection.
func scrubSubquery(rs ast.ResultSetNode) {
	sel, ok := rs.(*ast.SelectStmt)
	if !ok {
		return
	}
	if sel.Where != nil {
		sel.Where = scrub(sel.Where)
		return
	}
	scrubFields(sel)
}

func scrubFields(s *ast.SelectStmt) {
	if s.Fields == nil {
		return
	}
	for _, f := range s.Fields.Fields {
		if f.WildCard != nil {
			continue
		}
		f.Expr = scrub(f.Expr)
	}
}

func scrubList(list []ast.ExprNode) {
	for i := range list {
		list[i] = scrub(list[i])
	}
}

// scrub returns expr with literals replaced, rewriting children in place.
func scrub(expr ast.ExprNode) ast.ExprNode {
	switch e := expr.(type) {
	case nil:
		return nil
	case ast.ValueExpr:
		return placeholder()
	case *ast.BinaryOperationExpr:
		e.L = scrub(e.L)
		e.R = scrub(e.R)
	case *ast.UnaryOperationExpr:
		e.V = scrub(e.V)
	case *ast.ParenthesesExpr:
		e.Expr = scrub(e.Expr)
	case *ast.FuncCastExpr:
		e.Expr = scrub(e.Expr)
	case *ast.SetCollationExpr:
		e.Expr = scrub(e.Expr)
	case *ast.IsNullExpr:
		e.Expr = scrub(e.Expr)
	case *ast.IsTruthExpr:
		e.Expr = scrub(e.Expr)
	case *ast.PatternLikeOrIlikeExpr:
		e.Expr = scrub(e.Expr)
		e.Pattern = scrub(e.Pattern)
	case *ast.PatternInExpr:
		e.Expr = scrub(e.Expr)
		scrubList(e.List)
		if sub, ok := e.Sel.(*ast.SubqueryExpr); ok {
			scrubSubquery(sub.Query)
		}
	case *ast.BetweenExpr:
		e.Expr = scrub(e.Expr)
		e.Left = scrub(e.Left)
		e.Right = scrub(e.Right)
	case *ast.CaseExpr:
		e.Value = scrub(e.Value)
		for _, w := range e.WhenClauses {
			w.Expr = scrub(w.Expr)
			w.Result = scrub(w.Result)
		}
		e.ElseClause = scrub(e.ElseClause)
	case *ast.FuncCallExpr:
		scrubFuncArgs(e)
	case *ast.AggregateFuncExpr:
		scrubList(e.Args)
	case *ast.SubqueryExpr:
		scrubSubquery(e.Query)
	case *ast.ExistsSubqueryExpr:
		if sub, ok := e.Sel.(*ast.SubqueryExpr); ok {
			scrubSubquery(sub.Query)
		}
	case *ast.RowExpr:
		scrubList(e.Values)
	default:
		// Column references, variables, DEFAULT, window functions, MATCH ...
		// are left as parsed.
	}
	return expr
}

// keywordArgs lists function arguments that the parser stores as value
// nodes but that the renderer writes back as keywords (a charset name,
// a format type, a cast type). They are not literals and must survive.
var keywordArgs = map[string]func(i, n int) bool{
	ast.Convert:      func(i, n int) bool { return n == 2 && i == 1 },
	ast.CharFunc:     func(i, n int) bool { return i == n-1 },
	ast.GetFormat:    func(i, n int) bool { return i == 0 },
	ast.WeightString: func(i, n int) bool { return n == 3 && i >= 1 },
}

func scrubFuncArgs(fn *ast.FuncCallExpr) {
	if fn.FnName.L == ast.Trim {
		scrubTrimArgs(fn)
		return
	}
	keep := keywordArgs[fn.FnName.L]
	for i, arg := range fn.Args {
		if keep != nil && keep(i, len(fn.Args)) {
			continue
		}
		fn.Args[i] = scrub(arg)
	}
}

// scrubTrimArgs handles TRIM([direction] [remstr] FROM str). The parser
// stores a missing remstr as a nil value, and the renderer omits any value
// argument whose value is nil, so a remstr placeholder carries a value to
// be written out as "?".
func scrubTrimArgs(fn *ast.FuncCallExpr) {
	fn.Args[0] = scrub(fn.Args[0])
	if len(fn.Args) < 2 {
		return
	}
	rem := fn.Args[1]
	if _, marker := rem.(ast.ParamMarkerExpr); !marker {
		if v, ok := rem.(ast.ValueExpr); ok && v.GetValue() == nil {
			return
		}
	}
	rem = scrub(rem)
	if p, ok := rem.(ast.ParamMarkerExpr); ok {
		p.SetValue("?")
	}
	fn.Args[1] = rem
}
