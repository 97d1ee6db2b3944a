package query

import (
	"testing"

	ql "columnlog/internal/querylang"
)

// countNodes returns the number of filters, EMPTY and TRUE leaves in e.
func countNodes(e ql.Expr) (filters, empty, tautology int) {
	switch x := e.(type) {
	case *ql.FilterExpr:
		return 1, 0, 0
	case *ql.EmptyExpr:
		if x.Inverted {
			return 0, 0, 1
		}
		return 0, 1, 0
	case *ql.AndExpr:
		for _, op := range x.Operands {
			f, em, tr := countNodes(op)
			filters, empty, tautology = filters+f, empty+em, tautology+tr
		}
	case *ql.OrExpr:
		for _, op := range x.Operands {
			f, em, tr := countNodes(op)
			filters, empty, tautology = filters+f, empty+em, tautology+tr
		}
	}
	return filters, empty, tautology
}

func typedFilter(types ql.LiteralType, op ql.FilterOp, lit ql.Literal, inverted bool) ql.Expr {
	col := ql.ParseColumnDescriptor("a")
	col.SetTypes(types)
	f := ql.NewFilter(col, op, lit)
	f.Inverted = inverted
	return f
}

func TestNarrowTypesLeavesOnlySatisfiableFilters(t *testing.T) {
	parsed := func(s string) func(*testing.T) ql.Expr {
		return func(t *testing.T) ql.Expr { return mustParse(t, s) }
	}
	built := func(e ql.Expr) func(*testing.T) ql.Expr {
		return func(*testing.T) ql.Expr { return e }
	}

	tests := []struct {
		name      string
		input     func(*testing.T) ql.Expr
		filters   int
		empty     int
		tautology int
	}{
		{"string range", parsed(`a > "abc"`), 0, 1, 0},
		{"inverted string range", parsed(`NOT a > "abc"`), 0, 0, 1},
		{"bool range", parsed("a > true"), 0, 1, 0},
		{"null range", parsed("a <= null"), 0, 1, 0},
		{"number range", parsed("a > 1"), 1, 0, 0},
		{"string equality", parsed(`a: "x"`), 1, 0, 0},
		{"bool equality", parsed("a: false"), 1, 0, 0},
		{"and keeps the satisfiable side", parsed(`a > 1 AND b < "z"`), 1, 1, 0},
		{"or keeps the satisfiable side", parsed(`a: 1 OR NOT b >= false`), 1, 0, 1},
		{"every branch unsatisfiable", parsed(`a > "x" OR b < null`), 0, 2, 0},
		{"narrowed column rejects range",
			built(typedFilter(ql.VarStringT, ql.OpGt, ql.NewIntLiteral(1), false)), 0, 1, 0},
		{"narrowed column rejects range inverted",
			built(typedFilter(ql.VarStringT, ql.OpGt, ql.NewIntLiteral(1), true)), 0, 0, 1},
		{"narrowed column rejects bool",
			built(typedFilter(ql.IntegerT|ql.FloatT, ql.OpEq, ql.NewBoolLiteral(true), false)), 0, 1, 0},
		{"narrowed column keeps shared type",
			built(typedFilter(ql.IntegerT|ql.ClpStringT, ql.OpEq, ql.NewIntLiteral(3), false)), 1, 0, 0},
		{"date range on string column",
			built(typedFilter(ql.StringTypes, ql.OpLt, ql.NewDateLiteral(1000, "x"), false)), 0, 1, 0},
		{"date range on date column",
			built(typedFilter(ql.EpochDateT|ql.VarStringT, ql.OpLt, ql.NewDateLiteral(1000, "x"), false)), 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NarrowTypes(tt.input(t))

			filters, empty, tautology := countNodes(e)
			if filters != tt.filters || empty != tt.empty || tautology != tt.tautology {
				t.Errorf("%s: %d filters, %d EMPTY, %d TRUE; want %d, %d, %d",
					e, filters, empty, tautology, tt.filters, tt.empty, tt.tautology)
			}

			ql.Filters(e, func(f *ql.FilterExpr) {
				if f.Operand == nil {
					return
				}
				matching := ql.MatchingTypes(f.Operand, f.Op)
				got := f.Column.Types()
				if got&matching == 0 {
					t.Errorf("%s kept with types %s disjoint from %s", f, got, matching)
				}
				if got&^matching != 0 {
					t.Errorf("%s kept types %s outside %s", f, got&^matching, matching)
				}
			})
		})
	}
}
