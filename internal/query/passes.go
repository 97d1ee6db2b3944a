package query

import (
	ql "columnlog/internal/querylang"
)

// NarrowTypes restricts every filter's descriptor to the column types its
// literal can match under the filter's operation. A filter left with no
// type cannot hold and is replaced by EMPTY, or by the tautology when the
// filter is inverted.
func NarrowTypes(e ql.Expr) ql.Expr {
	switch x := e.(type) {
	case *ql.AndExpr:
		for i, op := range x.Operands {
			x.Operands[i] = NarrowTypes(op)
		}
	case *ql.OrExpr:
		for i, op := range x.Operands {
			x.Operands[i] = NarrowTypes(op)
		}
	case *ql.FilterExpr:
		if x.Operand != nil {
			x.Column.SetTypes(x.Column.Types() & ql.MatchingTypes(x.Operand, x.Op))
		}
		if x.Column.Types() == ql.UnknownT {
			return &ql.EmptyExpr{Inverted: x.Inverted}
		}
	}
	return e
}

// ConvertToExists rewrites filters comparing against the "*" literal into
// existence checks: "a: *" becomes "a EXISTS" and its NEQ form becomes
// "a NEXISTS". It reports whether anything was rewritten.
func ConvertToExists(e ql.Expr) (ql.Expr, bool) {
	changed := false
	var walk func(ql.Expr)
	walk = func(e ql.Expr) {
		switch x := e.(type) {
		case *ql.AndExpr:
			for _, op := range x.Operands {
				walk(op)
			}
		case *ql.OrExpr:
			for _, op := range x.Operands {
				walk(op)
			}
		case *ql.FilterExpr:
			if x.Operand == nil || !x.Operand.AsAny(x.Op) {
				return
			}
			if x.Op == ql.OpEq {
				x.Op = ql.OpExists
			} else {
				x.Op = ql.OpNExists
			}
			x.Operand = nil
			changed = true
		}
	}
	walk(e)
	return e, changed
}

// ConstantProp removes constant operands. EMPTY absorbs an enclosing AND
// and is dropped from an enclosing OR; the tautology does the opposite.
// An OR left with no operands is EMPTY, an AND left with none holds, and a
// node left with a single operand is replaced by it.
func ConstantProp(e ql.Expr) ql.Expr {
	switch x := e.(type) {
	case *ql.AndExpr:
		return propagate(x.Operands, x.Inverted, true)
	case *ql.OrExpr:
		return propagate(x.Operands, x.Inverted, false)
	default:
		return e
	}
}

// propagate simplifies an AND (isAnd) or OR over ops.
func propagate(ops []ql.Expr, inverted, isAnd bool) ql.Expr {
	if len(ops) == 0 {
		return &ql.EmptyExpr{Inverted: inverted}
	}

	// For AND the absorbing constant is EMPTY and the identity is the
	// tautology; for OR it is the other way around.
	absorbing := func(e ql.Expr) bool { return ql.IsEmpty(e) }
	identity := func(e ql.Expr) bool { return ql.IsTrue(e) }
	if !isAnd {
		absorbing, identity = identity, absorbing
	}

	kept := make([]ql.Expr, 0, len(ops))
	for _, op := range ops {
		op = ConstantProp(op)
		switch {
		case absorbing(op):
			// AND absorbs to EMPTY, OR to the tautology.
			return &ql.EmptyExpr{Inverted: isAnd == inverted}
		case identity(op):
			continue
		}
		kept = append(kept, op)
	}

	switch len(kept) {
	case 0:
		// Every operand was the identity.
		return &ql.EmptyExpr{Inverted: isAnd != inverted}
	case 1:
		if inverted {
			kept[0].Invert()
		}
		return kept[0]
	}
	if isAnd {
		return &ql.AndExpr{Operands: kept, Inverted: inverted}
	}
	return &ql.OrExpr{Operands: kept, Inverted: inverted}
}
