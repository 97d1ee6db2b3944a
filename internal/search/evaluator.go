package search

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"columnlog/internal/archive"
	"columnlog/internal/clp"
	"columnlog/internal/column"
	"columnlog/internal/logging"
	"columnlog/internal/query"
	ql "columnlog/internal/querylang"
	"columnlog/internal/schema"
)

// ErrNotInitialized is returned by Filter before Init.
var ErrNotInitialized = errors.New("evaluator not initialized")

// Evaluator decides record by record whether a schema's records satisfy the
// sub-query schema matching produced for it. One evaluator serves one query
// over one archive; Init switches it to the next schema. Compiled string
// queries and dictionary candidate sets are shared between schemas.
type Evaluator struct {
	tree   *schema.Tree
	dicts  column.Dicts
	match  *query.SchemaMatch
	logger *slog.Logger

	clpQueries map[string]*clp.Query
	varMatches map[string]*roaring.Bitmap

	// Per schema.
	reader       *archive.SchemaReader
	schemaID     int32
	expr         ql.Expr
	wildcards    map[int][]int32
	searchArrays bool
	arrays       map[int32]cachedArray
	err          error
}

// cachedArray is the decoded text of one array value.
type cachedArray struct {
	record int
	data   []byte
}

// NewEvaluator returns an evaluator for the archive described by tree and
// dicts, using the sub-queries of match.
// If logger is nil, logging is disabled.
func NewEvaluator(tree *schema.Tree, dicts column.Dicts, match *query.SchemaMatch, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		tree:       tree,
		dicts:      dicts,
		match:      match,
		logger:     logging.Default(logger).With("component", "evaluator"),
		clpQueries: make(map[string]*clp.Query),
		varMatches: make(map[string]*roaring.Bitmap),
	}
}

// Init prepares evaluation of schema schemaID, whose table reader holds.
// It compiles the string literals of the schema's sub-query against the
// dictionaries and resolves pure wildcard filters to column lists.
func (e *Evaluator) Init(reader *archive.SchemaReader, schemaID int32) error {
	expr := e.match.Query(schemaID)
	if expr == nil {
		return fmt.Errorf("%w: schema %d has no query", query.ErrNoSchemaMatch, schemaID)
	}
	e.reader = reader
	e.schemaID = schemaID
	e.expr = expr
	e.wildcards = make(map[int][]int32)
	e.searchArrays = e.match.HasArraySearch(schemaID)
	e.arrays = nil
	if e.searchArrays {
		e.arrays = make(map[int32]cachedArray)
	}
	e.err = nil

	ql.Filters(expr, func(f *ql.FilterExpr) {
		if f.Column.PureWildcard() {
			e.wildcards[f.Column.ID()] = e.match.WildcardColumns(schemaID, f.Column.Types())
		}
		e.prepareLiteral(f)
	})
	e.logger.Debug("schema initialized", "schema", schemaID, "query", expr,
		"columns", e.match.SearchedColumns(schemaID), "arrays", e.searchArrays)
	return nil
}

// prepareLiteral compiles the dictionary lookups a string filter needs.
func (e *Evaluator) prepareLiteral(f *ql.FilterExpr) {
	if f.Operand == nil {
		return
	}
	if s, ok := f.Operand.AsClpString(f.Op); ok && f.Column.MatchesAny(ql.ClpStringT) {
		e.clpQuery(s)
	}
	if s, ok := f.Operand.AsVarString(f.Op); ok && f.Column.MatchesAny(ql.VarStringT) {
		e.varMatch(s)
	}
}

func (e *Evaluator) clpQuery(pattern string) *clp.Query {
	q, ok := e.clpQueries[pattern]
	if !ok {
		q = clp.Compile(pattern, e.dicts.Log, e.dicts.Var)
		e.clpQueries[pattern] = q
	}
	return q
}

func (e *Evaluator) varMatch(pattern string) *roaring.Bitmap {
	bm, ok := e.varMatches[pattern]
	if !ok {
		bm = e.dicts.Var.Search(pattern)
		e.varMatches[pattern] = bm
	}
	return bm
}

// Filter reports whether record i of the current schema matches. A decode
// failure stops evaluation and is returned; the record does not match.
func (e *Evaluator) Filter(i int) (bool, error) {
	if e.reader == nil {
		return false, ErrNotInitialized
	}
	ok := e.eval(e.expr, i)
	if e.err != nil {
		return false, fmt.Errorf("schema %d record %d: %w", e.schemaID, i, e.err)
	}
	return ok, nil
}

func (e *Evaluator) eval(x ql.Expr, i int) bool {
	var v bool
	switch x := x.(type) {
	case *ql.AndExpr:
		v = true
		for _, op := range x.Operands {
			if !e.eval(op, i) {
				v = false
				break
			}
		}
	case *ql.OrExpr:
		for _, op := range x.Operands {
			if e.eval(op, i) {
				v = true
				break
			}
		}
	case *ql.FilterExpr:
		v = e.evalFilter(x, i)
	case *ql.EmptyExpr:
		v = false
	}
	return v != x.IsInverted()
}

// evalFilter is existential over the columns the descriptor resolved to.
// NEXISTS is the negation of EXISTS over the same columns.
func (e *Evaluator) evalFilter(f *ql.FilterExpr, i int) bool {
	op := f.Op
	negate := false
	if op == ql.OpNExists {
		op, negate = ql.OpExists, true
	}

	found := false
	if f.Column.PureWildcard() {
		for _, id := range e.wildcards[f.Column.ID()] {
			if e.evalColumn(f, op, id, nil, true, i) {
				found = true
				break
			}
		}
	} else {
		for _, rc := range e.match.Columns(f.Column, e.schemaID) {
			if e.evalColumn(f, op, rc.ColumnID, rc.Unresolved, false, i) {
				found = true
				break
			}
		}
	}
	return found != negate
}

func (e *Evaluator) evalColumn(f *ql.FilterExpr, op ql.FilterOp, id int32, unresolved []ql.Token, anyDepth bool, i int) bool {
	if e.err != nil {
		return false
	}
	node := e.tree.Node(id)
	if node == nil {
		return false
	}
	if node.Type == schema.Array {
		if !e.searchArrays {
			return false
		}
		return e.evalArray(f, op, id, unresolved, anyDepth, i)
	}
	if op == ql.OpExists {
		return true
	}
	if node.Type == schema.Null {
		return matchNull(op, f.Operand)
	}
	if f.Operand == nil {
		return false
	}
	if f.Operand.AsAny(op) {
		return op == ql.OpEq
	}

	switch c := e.reader.Column(id).(type) {
	case *column.Int64Reader:
		return matchInt(op, c.Int(i), f.Operand)
	case *column.FloatReader:
		if node.Type == schema.FloatDateString {
			return matchFloatDate(op, c.Float(i), f.Operand)
		}
		return matchFloat(op, c.Float(i), f.Operand)
	case *column.BoolReader:
		return matchBool(op, c.Bool(i), f.Operand)
	case *column.ClpStringReader:
		s, ok := f.Operand.AsClpString(op)
		if !ok {
			return false
		}
		hit, err := e.clpQuery(s).Match(c.LogtypeID(i), c.VarIDs(i))
		if err != nil {
			e.err = err
			return false
		}
		return equality(op, hit)
	case *column.VarStringReader:
		s, ok := f.Operand.AsVarString(op)
		if !ok {
			return false
		}
		return equality(op, e.varMatch(s).Contains(c.VarID(i)))
	case *column.DateStringReader:
		return matchEpochDate(op, c.Epoch(i), f.Operand)
	default:
		return false
	}
}

func (e *Evaluator) evalArray(f *ql.FilterExpr, op ql.FilterOp, id int32, tokens []ql.Token, anyDepth bool, i int) bool {
	if op == ql.OpExists && len(tokens) == 0 {
		return true
	}
	if op != ql.OpExists && f.Operand == nil {
		return false
	}
	data, ok := e.arrayText(id, i)
	if !ok {
		return false
	}
	af := arrayFilter{op: op, lit: f.Operand, exists: op == ql.OpExists, anyDepth: anyDepth}
	return af.match(data, tokens)
}

// arrayText returns the JSON text of array column id at record i, decoding
// it once per record.
func (e *Evaluator) arrayText(id int32, i int) ([]byte, bool) {
	if c, ok := e.arrays[id]; ok && c.record == i {
		return c.data, true
	}
	c, ok := e.reader.Column(id).(*column.ClpStringReader)
	if !ok {
		return nil, false
	}
	s, err := c.Decode(i)
	if err != nil {
		e.err = err
		return nil, false
	}
	data := []byte(s)
	e.arrays[id] = cachedArray{record: i, data: data}
	return data, true
}
