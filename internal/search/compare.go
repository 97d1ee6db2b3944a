package search

import (
	"cmp"

	ql "columnlog/internal/querylang"
)

// equality applies an EQ or NEQ operator to the outcome of an equality test.
func equality(op ql.FilterOp, equal bool) bool {
	if op == ql.OpNeq {
		return !equal
	}
	return equal
}

// matchInt compares an integer value against lit. A float literal that has
// no integer form under op falls back to a float comparison, so "!= 1.5"
// holds for every integer.
func matchInt(op ql.FilterOp, v int64, lit ql.Literal) bool {
	if l, ok := lit.AsInt(op); ok {
		return op.Holds(cmp.Compare(v, l))
	}
	if l, ok := lit.AsFloat(op); ok {
		return op.Holds(cmp.Compare(float64(v), l))
	}
	return false
}

func matchFloat(op ql.FilterOp, v float64, lit ql.Literal) bool {
	l, ok := lit.AsFloat(op)
	return ok && op.Holds(cmp.Compare(v, l))
}

func matchBool(op ql.FilterOp, v bool, lit ql.Literal) bool {
	l, ok := lit.AsBool(op)
	return ok && equality(op, v == l)
}

func matchNull(op ql.FilterOp, lit ql.Literal) bool {
	return lit.AsNull(op) && op == ql.OpEq
}

func matchEpochDate(op ql.FilterOp, v int64, lit ql.Literal) bool {
	l, ok := lit.AsEpochDate(op)
	return ok && op.Holds(cmp.Compare(v, l))
}

func matchFloatDate(op ql.FilterOp, v float64, lit ql.Literal) bool {
	l, ok := lit.AsFloatDate(op)
	return ok && op.Holds(cmp.Compare(v, l))
}

// stringPattern returns the glob pattern lit matches string values with.
func stringPattern(op ql.FilterOp, lit ql.Literal) (string, bool) {
	if p, ok := lit.AsVarString(op); ok {
		return p, true
	}
	return lit.AsClpString(op)
}
