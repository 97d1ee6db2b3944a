package query

import (
	ql "columnlog/internal/querylang"
	"columnlog/internal/timestamp"
)

// RangeIndex looks up the timestamp range of a column by path.
// *timestamp.Dictionary and timestamp.SchemaRanges implement it.
type RangeIndex interface {
	Range(path []string) *timestamp.Entry
}

// EvaluateTimestampIndex tries to prove e False using only timestamp ranges.
// It returns False when no record covered by idx can satisfy e, and
// Unknown otherwise. It never reports True for a filter.
//
// Only filters on literal (wildcard-free) paths that name an indexed
// column, and whose types still include a date type, are consulted.
func EvaluateTimestampIndex(e ql.Expr, idx RangeIndex) timestamp.EvaluatedValue {
	var v timestamp.EvaluatedValue
	switch x := e.(type) {
	case *ql.AndExpr:
		v = timestamp.True
		for _, op := range x.Operands {
			switch EvaluateTimestampIndex(op, idx) {
			case timestamp.False:
				v = timestamp.False
			case timestamp.Unknown:
				if v == timestamp.True {
					v = timestamp.Unknown
				}
			}
			if v == timestamp.False {
				break
			}
		}
	case *ql.OrExpr:
		v = timestamp.False
		for _, op := range x.Operands {
			switch EvaluateTimestampIndex(op, idx) {
			case timestamp.True:
				v = timestamp.True
			case timestamp.Unknown:
				if v == timestamp.False {
					v = timestamp.Unknown
				}
			}
			if v == timestamp.True {
				break
			}
		}
	case *ql.EmptyExpr:
		v = timestamp.False
	case *ql.FilterExpr:
		v = evaluateFilterRange(x, idx)
	default:
		return timestamp.Unknown
	}

	if !e.IsInverted() {
		return v
	}
	if v == timestamp.True {
		return timestamp.False
	}
	// Ranges never prove a negation.
	return timestamp.Unknown
}

func evaluateFilterRange(f *ql.FilterExpr, idx RangeIndex) timestamp.EvaluatedValue {
	col := f.Column
	if col.HasWildcard() || !col.MatchesAny(ql.DateTypes) {
		return timestamp.Unknown
	}
	tokens := col.Tokens()
	path := make([]string, len(tokens))
	for i, t := range tokens {
		path[i] = t.Name
	}
	entry := idx.Range(path)
	if entry == nil {
		return timestamp.Unknown
	}
	return entry.EvaluateFilter(f.Op, f.Operand)
}
