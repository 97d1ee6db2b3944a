package query

import (
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"columnlog/internal/logging"
	ql "columnlog/internal/querylang"
	"columnlog/internal/schema"
)

// LiteralTypeOf maps a schema node type to the literal type it stores.
// Objects store no value and map to UnknownT.
func LiteralTypeOf(t schema.NodeType) ql.LiteralType {
	switch t {
	case schema.Array:
		return ql.ArrayT
	case schema.Integer:
		return ql.IntegerT
	case schema.Float:
		return ql.FloatT
	case schema.Boolean:
		return ql.BooleanT
	case schema.ClpString:
		return ql.ClpStringT
	case schema.VarString:
		return ql.VarStringT
	case schema.DateString:
		return ql.EpochDateT
	case schema.FloatDateString:
		return ql.FloatDateT
	case schema.Null:
		return ql.NullT
	default:
		return ql.UnknownT
	}
}

// ResolvedColumn is a column a descriptor resolved to. Unresolved holds the
// descriptor tokens left over when resolution stopped at an array column;
// they are matched against each record's array value.
type ResolvedColumn struct {
	ColumnID   int32
	Unresolved []ql.Token
}

// SchemaMatch binds the descriptors of an expression to the columns of an
// archive and splits the expression into one sub-query per schema that can
// satisfy it. It is built for one query against one archive and is not safe
// for concurrent use.
type SchemaMatch struct {
	tree    *schema.Tree
	schemas *schema.Map
	logger  *slog.Logger

	// columnSchemas maps a node id to the schemas containing it.
	columnSchemas map[int32]*roaring.Bitmap
	all           *roaring.Bitmap

	nextID      int
	resolved    map[int]map[int32][]ResolvedColumn
	descSchemas map[int]*roaring.Bitmap
	wildcards   map[int]*ql.ColumnDescriptor

	queries     map[int32]ql.Expr
	matched     *roaring.Bitmap
	arrays      *roaring.Bitmap
	arraySearch *roaring.Bitmap
}

// NewSchemaMatch prepares matching against tree and schemas.
// If logger is nil, logging is disabled.
func NewSchemaMatch(tree *schema.Tree, schemas *schema.Map, logger *slog.Logger) *SchemaMatch {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &SchemaMatch{
		tree:          tree,
		schemas:       schemas,
		logger:        logger.With("component", "schema-match"),
		columnSchemas: make(map[int32]*roaring.Bitmap),
		all:           roaring.New(),
		resolved:      make(map[int]map[int32][]ResolvedColumn),
		descSchemas:   make(map[int]*roaring.Bitmap),
		wildcards:     make(map[int]*ql.ColumnDescriptor),
		queries:       make(map[int32]ql.Expr),
		matched:       roaring.New(),
		arrays:        roaring.New(),
		arraySearch:   roaring.New(),
	}
	for sid, cols := range schemas.All() {
		id := uint32(sid)
		m.all.Add(id)
		for _, col := range cols {
			bm, ok := m.columnSchemas[col]
			if !ok {
				bm = roaring.New()
				m.columnSchemas[col] = bm
			}
			bm.Add(id)
			if n := tree.Node(col); n != nil && n.Type == schema.Array {
				m.arrays.Add(id)
			}
		}
	}
	return m
}

// Run matches e against the archive. It returns EMPTY when no schema can
// satisfy e, and e itself otherwise; the per-schema sub-queries are
// available through Query.
func (m *SchemaMatch) Run(e ql.Expr) ql.Expr {
	ql.Filters(e, func(f *ql.FilterExpr) {
		m.nextID++
		f.Column.SetID(m.nextID)
		m.populate(f.Column)
	})

	branches := []ql.Expr{e}
	if or, ok := e.(*ql.OrExpr); ok && !or.Inverted {
		branches = or.Operands
	}

	perSchema := make(map[int32][]ql.Expr)
	for _, branch := range branches {
		candidates := m.candidates(branch)
		it := candidates.Iterator()
		for it.HasNext() {
			sid := int32(it.Next())
			sub := ConstantProp(m.specialize(branch.Copy(), sid))
			if ql.IsEmpty(sub) {
				continue
			}
			perSchema[sid] = append(perSchema[sid], sub)
		}
	}

	for sid, subs := range perSchema {
		q := subs[0]
		if len(subs) > 1 {
			q = ConstantProp(ql.NewOr(subs...))
		}
		m.queries[sid] = q
		m.matched.Add(uint32(sid))
		if m.searchesArray(q, sid) {
			m.arraySearch.Add(uint32(sid))
		}
	}

	m.logger.Debug("schema match", "schemas", m.matched.GetCardinality(), "of", m.all.GetCardinality())
	if m.matched.IsEmpty() {
		return ql.NewEmpty()
	}
	return e
}

// populate resolves a descriptor against the tree and records, per schema,
// the columns it resolved to.
func (m *SchemaMatch) populate(col *ql.ColumnDescriptor) {
	id := col.ID()
	found := roaring.New()
	m.descSchemas[id] = found

	if col.PureWildcard() {
		m.wildcards[id] = col
		for sid, cols := range m.schemas.All() {
			if m.hasCompatibleColumn(cols, col.Types()) {
				found.Add(uint32(sid))
			}
		}
		return
	}

	byschema := make(map[int32][]ResolvedColumn)
	m.resolved[id] = byschema
	for _, rc := range m.resolve(col) {
		bm, ok := m.columnSchemas[rc.ColumnID]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			sid := int32(it.Next())
			byschema[sid] = append(byschema[sid], rc)
		}
		found.Or(bm)
	}
}

func (m *SchemaMatch) hasCompatibleColumn(cols []int32, types ql.LiteralType) bool {
	return slices.ContainsFunc(cols, func(c int32) bool {
		return LiteralTypeOf(m.tree.Node(c).Type)&types != 0
	})
}

// resolve walks the tree from the top level. Literal tokens follow the child
// with that key, wildcard tokens follow every child. Reaching an array stops
// the walk and leaves the remaining tokens unresolved.
func (m *SchemaMatch) resolve(col *ql.ColumnDescriptor) []ResolvedColumn {
	tokens := col.Tokens()
	types := col.Types()
	var out []ResolvedColumn

	var walk func(children []int32, idx int)
	walk = func(children []int32, idx int) {
		tok := tokens[idx]
		for _, id := range children {
			n := m.tree.Node(id)
			if !tok.Wildcard && n.Key != tok.Name {
				continue
			}
			next := idx + 1
			switch {
			case n.Type == schema.Array:
				if types&ql.ArrayT != 0 {
					out = append(out, ResolvedColumn{ColumnID: id, Unresolved: slices.Clone(tokens[next:])})
				}
			case next == len(tokens):
				if LiteralTypeOf(n.Type)&types != 0 {
					out = append(out, ResolvedColumn{ColumnID: id})
				}
			case n.Type == schema.Object:
				walk(m.tree.Children(id), next)
			}
		}
	}
	if len(tokens) > 0 {
		walk(m.tree.Children(schema.RootID), 0)
	}
	return out
}

// candidates returns the schemas that may satisfy a conjunction: those that
// contain a resolved column for every filter that requires one. Inverted
// filters and NEXISTS hold when the column is absent and do not constrain.
func (m *SchemaMatch) candidates(branch ql.Expr) *roaring.Bitmap {
	result := m.all.Clone()
	var filters []*ql.FilterExpr
	switch x := branch.(type) {
	case *ql.FilterExpr:
		filters = []*ql.FilterExpr{x}
	case *ql.AndExpr:
		if x.Inverted {
			return result
		}
		for _, op := range x.Operands {
			if f, ok := op.(*ql.FilterExpr); ok {
				filters = append(filters, f)
			}
		}
	}
	for _, f := range filters {
		if f.Inverted || f.Op == ql.OpNExists {
			continue
		}
		result.And(m.descSchemas[f.Column.ID()])
	}
	return result
}

// specialize replaces filters whose outcome is fixed by the shape of schema
// sid with constants. Constants that are the identity of their parent are
// removed while another operand remains. The result still needs constant
// propagation.
func (m *SchemaMatch) specialize(e ql.Expr, sid int32) ql.Expr {
	switch x := e.(type) {
	case *ql.AndExpr:
		for i := len(x.Operands) - 1; i >= 0; i-- {
			x.Operands[i] = m.specialize(x.Operands[i], sid)
			if ql.IsTrue(x.Operands[i]) && len(x.Operands) > 1 {
				x.RemoveOperand(i)
			}
		}
	case *ql.OrExpr:
		for i := len(x.Operands) - 1; i >= 0; i-- {
			x.Operands[i] = m.specialize(x.Operands[i], sid)
			if ql.IsEmpty(x.Operands[i]) && len(x.Operands) > 1 {
				x.RemoveOperand(i)
			}
		}
	case *ql.FilterExpr:
		if holds, known := m.staticOutcome(x, sid); known {
			return &ql.EmptyExpr{Inverted: holds != x.Inverted}
		}
	}
	return e
}

// staticOutcome reports whether f (ignoring inversion) is decided for every
// record of schema sid without reading data.
func (m *SchemaMatch) staticOutcome(f *ql.FilterExpr, sid int32) (holds, known bool) {
	id := f.Column.ID()
	if !m.descSchemas[id].Contains(uint32(sid)) {
		// No column can match: nothing holds and nothing exists.
		return f.Op == ql.OpNExists, true
	}
	if f.Op != ql.OpExists && f.Op != ql.OpNExists {
		return false, false
	}
	// A descriptor resolved to a plain column exists in every record.
	// Array columns with leftover tokens need the record's value.
	if _, ok := m.wildcards[id]; ok {
		return f.Op == ql.OpExists, true
	}
	for _, rc := range m.resolved[id][sid] {
		if len(rc.Unresolved) == 0 {
			return f.Op == ql.OpExists, true
		}
	}
	return false, false
}

// searchesArray reports whether q needs to look inside array values of sid.
func (m *SchemaMatch) searchesArray(q ql.Expr, sid int32) bool {
	if !m.arrays.Contains(uint32(sid)) {
		return false
	}
	found := false
	ql.Filters(q, func(f *ql.FilterExpr) {
		if found {
			return
		}
		if f.Column.PureWildcard() {
			found = f.Column.MatchesAny(ql.ArrayT)
			return
		}
		for _, rc := range m.resolved[f.Column.ID()][sid] {
			if m.tree.Node(rc.ColumnID).Type == schema.Array {
				found = true
				return
			}
		}
	})
	return found
}

// Schemas returns the ids of the matched schemas in ascending order.
func (m *SchemaMatch) Schemas() []int32 {
	out := make([]int32, 0, m.matched.GetCardinality())
	it := m.matched.Iterator()
	for it.HasNext() {
		out = append(out, int32(it.Next()))
	}
	return out
}

// Query returns the sub-query for schema sid, or nil if it did not match.
func (m *SchemaMatch) Query(sid int32) ql.Expr { return m.queries[sid] }

// Columns returns the columns of schema sid that col resolved to. Pure
// wildcard descriptors resolve per type at evaluation time and return nil.
func (m *SchemaMatch) Columns(col *ql.ColumnDescriptor, sid int32) []ResolvedColumn {
	return m.resolved[col.ID()][sid]
}

// HasArraySearch reports whether the sub-query of sid looks inside arrays.
// Array values of other schemas are never decoded.
func (m *SchemaMatch) HasArraySearch(sid int32) bool { return m.arraySearch.Contains(uint32(sid)) }

// WildcardColumns returns the data columns of schema sid whose type is in
// types, for filters on the pure wildcard descriptor.
func (m *SchemaMatch) WildcardColumns(sid int32, types ql.LiteralType) []int32 {
	var out []int32
	for _, c := range m.schemas.Get(sid) {
		if LiteralTypeOf(m.tree.Node(c).Type)&types != 0 {
			out = append(out, c)
		}
	}
	return out
}

// SearchedColumns returns the columns of schema sid that its sub-query
// reads, in ascending order.
func (m *SchemaMatch) SearchedColumns(sid int32) []int32 {
	q := m.queries[sid]
	if q == nil {
		return nil
	}
	set := roaring.New()
	ql.Filters(q, func(f *ql.FilterExpr) {
		if f.Column.PureWildcard() {
			for _, c := range m.WildcardColumns(sid, f.Column.Types()) {
				set.Add(uint32(c))
			}
			return
		}
		for _, rc := range m.resolved[f.Column.ID()][sid] {
			set.Add(uint32(rc.ColumnID))
		}
	})
	out := make([]int32, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		out = append(out, int32(it.Next()))
	}
	return out
}
