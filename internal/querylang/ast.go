// Package querylang provides the Kibana-style query language for columnlog
// archives: literals, column descriptors, the filter expression tree, and the
// parser that builds it.
//
// This package is a frontend layer only. It MUST NOT:
//   - Open archives or read columns
//   - Resolve descriptors against a schema tree
//   - Evaluate filters against records
package querylang

import (
	"slices"
	"strings"
)

// Expr is the interface for all expression nodes.
// The marker method prevents external types from implementing Expr.
//
// Negation is not a node of its own: every node carries an inverted flag
// that is applied when the node is evaluated.
type Expr interface {
	expr()
	IsInverted() bool
	Invert()
	// Copy returns a deep, independent clone.
	Copy() Expr
	// HasOnlyExpressionOperands is true for nodes whose operands are
	// expressions (AND, OR, EMPTY) and false for FILTER leaves.
	HasOnlyExpressionOperands() bool
	// String returns a human-readable representation of the expression.
	String() string
}

// AndExpr is the conjunction of its operands.
type AndExpr struct {
	Operands []Expr
	Inverted bool
}

// OrExpr is the disjunction of its operands.
type OrExpr struct {
	Operands []Expr
	Inverted bool
}

// FilterExpr compares the columns matched by Column against Operand.
// Operand is nil for OpExists and OpNExists.
type FilterExpr struct {
	Column   *ColumnDescriptor
	Op       FilterOp
	Operand  Literal
	Inverted bool
}

// EmptyExpr is the unsatisfiable expression. Inverted, it is the
// expression that always holds.
type EmptyExpr struct {
	Inverted bool
}

// NewAnd returns an AND over operands.
func NewAnd(operands ...Expr) *AndExpr { return &AndExpr{Operands: operands} }

// NewOr returns an OR over operands.
func NewOr(operands ...Expr) *OrExpr { return &OrExpr{Operands: operands} }

// NewFilter returns a filter leaf.
func NewFilter(col *ColumnDescriptor, op FilterOp, operand Literal) *FilterExpr {
	return &FilterExpr{Column: col, Op: op, Operand: operand}
}

// NewEmpty returns the unsatisfiable expression.
func NewEmpty() *EmptyExpr { return &EmptyExpr{} }

// NewTrue returns the expression that always holds.
func NewTrue() *EmptyExpr { return &EmptyExpr{Inverted: true} }

// IsEmpty reports whether e is the unsatisfiable expression.
func IsEmpty(e Expr) bool {
	x, ok := e.(*EmptyExpr)
	return ok && !x.Inverted
}

// IsTrue reports whether e is the expression that always holds.
func IsTrue(e Expr) bool {
	x, ok := e.(*EmptyExpr)
	return ok && x.Inverted
}

func (*AndExpr) expr()    {}
func (*OrExpr) expr()     {}
func (*FilterExpr) expr() {}
func (*EmptyExpr) expr()  {}

func (a *AndExpr) IsInverted() bool    { return a.Inverted }
func (o *OrExpr) IsInverted() bool     { return o.Inverted }
func (f *FilterExpr) IsInverted() bool { return f.Inverted }
func (e *EmptyExpr) IsInverted() bool  { return e.Inverted }

func (a *AndExpr) Invert()    { a.Inverted = !a.Inverted }
func (o *OrExpr) Invert()     { o.Inverted = !o.Inverted }
func (f *FilterExpr) Invert() { f.Inverted = !f.Inverted }
func (e *EmptyExpr) Invert()  { e.Inverted = !e.Inverted }

func (*AndExpr) HasOnlyExpressionOperands() bool    { return true }
func (*OrExpr) HasOnlyExpressionOperands() bool     { return true }
func (*FilterExpr) HasOnlyExpressionOperands() bool { return false }
func (*EmptyExpr) HasOnlyExpressionOperands() bool  { return true }

// AddOperand appends e.
func (a *AndExpr) AddOperand(e Expr) { a.Operands = append(a.Operands, e) }

// AddOperand appends e.
func (o *OrExpr) AddOperand(e Expr) { o.Operands = append(o.Operands, e) }

// RemoveOperand deletes the operand at index i.
func (a *AndExpr) RemoveOperand(i int) { a.Operands = slices.Delete(a.Operands, i, i+1) }

// RemoveOperand deletes the operand at index i.
func (o *OrExpr) RemoveOperand(i int) { o.Operands = slices.Delete(o.Operands, i, i+1) }


func copyOperands(ops []Expr) []Expr {
	out := make([]Expr, len(ops))
	for i, op := range ops {
		out[i] = op.Copy()
	}
	return out
}

func (a *AndExpr) Copy() Expr {
	return &AndExpr{Operands: copyOperands(a.Operands), Inverted: a.Inverted}
}

func (o *OrExpr) Copy() Expr {
	return &OrExpr{Operands: copyOperands(o.Operands), Inverted: o.Inverted}
}

func (f *FilterExpr) Copy() Expr {
	return &FilterExpr{Column: f.Column.Copy(), Op: f.Op, Operand: f.Operand, Inverted: f.Inverted}
}

func (e *EmptyExpr) Copy() Expr { return &EmptyExpr{Inverted: e.Inverted} }

func notPrefix(inverted bool) string {
	if inverted {
		return "NOT "
	}
	return ""
}

func joinOperands(ops []Expr, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (a *AndExpr) String() string {
	return notPrefix(a.Inverted) + joinOperands(a.Operands, " AND ")
}

func (o *OrExpr) String() string {
	return notPrefix(o.Inverted) + joinOperands(o.Operands, " OR ")
}

func (f *FilterExpr) String() string {
	var b strings.Builder
	b.WriteString(notPrefix(f.Inverted))
	b.WriteString(f.Column.String())
	switch f.Op {
	case OpExists, OpNExists:
		b.WriteString(" ")
		b.WriteString(f.Op.String())
	default:
		if f.Op == OpEq {
			b.WriteString(":")
		} else {
			b.WriteString(" " + f.Op.String())
		}
		if f.Operand != nil {
			b.WriteString(" ")
			b.WriteString(f.Operand.String())
		}
	}
	return b.String()
}

func (e *EmptyExpr) String() string {
	if e.Inverted {
		return "TRUE"
	}
	return "EMPTY"
}

// Filters calls fn for every FilterExpr in e, depth first.
func Filters(e Expr, fn func(*FilterExpr)) {
	switch x := e.(type) {
	case *FilterExpr:
		fn(x)
	case *AndExpr:
		for _, op := range x.Operands {
			Filters(op, fn)
		}
	case *OrExpr:
		for _, op := range x.Operands {
			Filters(op, fn)
		}
	}
}
