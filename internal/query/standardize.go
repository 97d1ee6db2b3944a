// Package query compiles Kibana-style queries into filter expressions and
// binds them to the schemas of an archive. It owns the rewrite passes,
// timestamp index pruning and schema matching; it does not read column data.
package query

import (
	"slices"

	ql "columnlog/internal/querylang"
)

// Standardize rewrites e into OR-of-AND form:
//
//	(f1 AND f2) OR (f3) OR ...
//
// Inversion is pushed down to the filter leaves (De Morgan), nested
// operators are flattened, and AND is distributed over OR. An AND or OR
// without operands is EMPTY. A single conjunction is returned as an AND (or
// a bare filter), and the tautology as an inverted EMPTY.
//
// Standardize copies every filter it keeps; the input is not modified.
// Applying it to its own output returns an equivalent tree.
func Standardize(e ql.Expr) ql.Expr {
	return fromConjunctions(toConjunctions(e, false))
}

// conjunction is one AND branch of the standardized form. A nil or empty
// conjunction holds unconditionally.
type conjunction []*ql.FilterExpr

// toConjunctions converts e, negated if negate is set, into a list of
// conjunctions. An empty list is the unsatisfiable expression.
func toConjunctions(e ql.Expr, negate bool) []conjunction {
	inv := negate != e.IsInverted()

	switch x := e.(type) {
	case *ql.FilterExpr:
		f := x.Copy().(*ql.FilterExpr)
		f.Inverted = inv
		return []conjunction{{f}}

	case *ql.EmptyExpr:
		if inv {
			return []conjunction{{}}
		}
		return nil

	case *ql.AndExpr:
		if len(x.Operands) == 0 {
			return toConjunctions(&ql.EmptyExpr{Inverted: x.Inverted}, negate)
		}
		if inv {
			// NOT (A AND B) = (NOT A) OR (NOT B)
			return concatAll(x.Operands, true)
		}
		return crossAll(x.Operands, false)

	case *ql.OrExpr:
		if len(x.Operands) == 0 {
			return toConjunctions(&ql.EmptyExpr{Inverted: x.Inverted}, negate)
		}
		if inv {
			// NOT (A OR B) = (NOT A) AND (NOT B)
			return crossAll(x.Operands, true)
		}
		return concatAll(x.Operands, false)

	default:
		return nil
	}
}

// concatAll ORs the operands: their branches are concatenated.
func concatAll(ops []ql.Expr, negate bool) []conjunction {
	var result []conjunction
	for _, op := range ops {
		result = append(result, toConjunctions(op, negate)...)
	}
	return result
}

// crossAll ANDs the operands: the cross-product of their branches.
// (A1 OR A2) AND (B1 OR B2) = (A1 AND B1) OR (A1 AND B2) OR (A2 AND B1) OR (A2 AND B2)
func crossAll(ops []ql.Expr, negate bool) []conjunction {
	result := []conjunction{{}}
	for _, op := range ops {
		branches := toConjunctions(op, negate)
		if len(branches) == 0 {
			return nil
		}
		result = combine(result, branches)
	}
	return result
}

// combine merges each pair of conjunctions from a and b.
func combine(a, b []conjunction) []conjunction {
	result := make([]conjunction, 0, len(a)*len(b))
	for _, ca := range a {
		for _, cb := range b {
			merged := make(conjunction, 0, len(ca)+len(cb))
			for _, f := range ca {
				merged = append(merged, f.Copy().(*ql.FilterExpr))
			}
			for _, f := range cb {
				merged = append(merged, f.Copy().(*ql.FilterExpr))
			}
			result = append(result, merged)
		}
	}
	return result
}

// fromConjunctions builds the expression tree for a list of conjunctions.
func fromConjunctions(branches []conjunction) ql.Expr {
	if len(branches) == 0 {
		return ql.NewEmpty()
	}
	if slices.ContainsFunc(branches, func(c conjunction) bool { return len(c) == 0 }) {
		return ql.NewTrue()
	}

	exprs := make([]ql.Expr, len(branches))
	for i, c := range branches {
		if len(c) == 1 {
			exprs[i] = c[0]
			continue
		}
		and := ql.NewAnd()
		for _, f := range c {
			and.AddOperand(f)
		}
		exprs[i] = and
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return ql.NewOr(exprs...)
}
