package querylang

import (
	"errors"
	"testing"
)

type fixedDates map[string]int64

func (d fixedDates) EpochMillis(s string) (int64, bool) {
	v, ok := d[s]
	return v, ok
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare value", "error", `*: "error"`},
		{"column value", "a: 1", "a: 1"},
		{"quoted string", `b: "x y"`, `b: "x y"`},
		{"nested path", "a.b.c: true", "a.b.c: true"},
		{"null", "a: null", "a: null"},
		{"float", "a: 1.5", "a: 1.5"},
		{"range", "a > 1", "a > 1"},
		{"range lte", "a <= 10", "a <= 10"},
		{"and", "a: 1 AND b: 2", "(a: 1 AND b: 2)"},
		{"implicit and", "a: 1 b: 2", "(a: 1 AND b: 2)"},
		{"or", "a: 1 OR b: 2", "(a: 1 OR b: 2)"},
		{"precedence", "a: 1 OR b: 2 AND c: 3", "(a: 1 OR (b: 2 AND c: 3))"},
		{"parens", "(a: 1 OR b: 2) AND c: 3", "((a: 1 OR b: 2) AND c: 3)"},
		{"not filter", "NOT a: 1", "NOT a: 1"},
		{"not group", "NOT (a: 1 OR b: 2)", "NOT (a: 1 OR b: 2)"},
		{"double not", "NOT NOT a: 1", "a: 1"},
		{"list implicit or", "a: (1 2)", "(a: 1 OR a: 2)"},
		{"list infix or", "a: (x OR y)", `(a: "x" OR a: "y")`},
		{"list and", "a: (AND x y)", `(a: "x" AND a: "y")`},
		{"list not", "a: (NOT x y)", `(NOT a: "x" AND NOT a: "y")`},
		{"list single", "a: (x)", `a: "x"`},
		{"nested query", "a: { b: 1 AND c: 2 }", "(a.b: 1 AND a.c: 2)"},
		{"wildcard column", "*.b: 1", "*.b: 1"},
		{"star value", "a: *", `a: "*"`},
		{"keywords case-insensitive", "a: 1 and b: 2 or c: 3", "((a: 1 AND b: 2) OR c: 3)"},
		{"escaped dot", `a\.b: 1`, `a\.b: 1`},
		{"date", `ts > date("2024")`, `ts > date("2024")`},
	}

	dates := fixedDates{"2024": 1704067200000}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.input, dates)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got := expr.String(); got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrEmptyQuery},
		{"whitespace", "   ", ErrEmptyQuery},
		{"unterminated string", `a: "abc`, ErrUnterminatedString},
		{"bad escape", `a: "\q"`, ErrInvalidEscape},
		{"unmatched paren", "(a: 1", ErrUnmatchedParen},
		{"stray close paren", "a: 1)", ErrUnmatchedParen},
		{"unmatched brace", "a: { b: 1", ErrUnmatchedBrace},
		{"dangling not", "NOT", ErrUnexpectedEOF},
		{"missing value", "a:", ErrUnexpectedToken},
		{"missing range value", "a >", ErrUnexpectedToken},
		{"leading or", "OR a: 1", ErrUnexpectedToken},
		{"mixed list", "a: (x AND y OR z)", ErrMixedOperators},
		{"empty list", "a: ()", ErrEmptyQuery},
		{"unknown date", `ts > date("tomorrow")`, ErrInvalidDate},
		{"malformed date", `ts > date(tomorrow)`, ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, fixedDates{})
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.input)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %v is not a *ParseError", err)
			}
		})
	}
}

func TestParseWithoutDateParser(t *testing.T) {
	_, err := Parse(`ts > date("2024")`, nil)
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("error = %v, want ErrInvalidDate", err)
	}
}

func TestClassifyLiteral(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		types LiteralType
	}{
		{"42", "*querylang.IntegralLiteral", IntegralTypes},
		{"-1.25", "*querylang.IntegralLiteral", IntegralTypes},
		{"true", "*querylang.BoolLiteral", BooleanT | VarStringT | ArrayT},
		{"null", "*querylang.NullLiteral", NullT | VarStringT | ArrayT},
		{"abc", "*querylang.StringLiteral", VarStringT | ArrayT},
		{"x y", "*querylang.StringLiteral", ClpStringT | ArrayT},
		{"ab*", "*querylang.StringLiteral", StringTypes | ArrayT},
		{"*", "*querylang.StringLiteral", AllTypes},
		{"1e400", "*querylang.StringLiteral", VarStringT | ArrayT},
		{"0x10", "*querylang.StringLiteral", VarStringT | ArrayT},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lit := ClassifyLiteral(tt.in)
			if got := typeName(lit); got != tt.want {
				t.Errorf("ClassifyLiteral(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if got := lit.Types(); got != tt.types {
				t.Errorf("Types() = %s, want %s", got, tt.types)
			}
		})
	}
}

func typeName(l Literal) string {
	switch l.(type) {
	case *IntegralLiteral:
		return "*querylang.IntegralLiteral"
	case *BoolLiteral:
		return "*querylang.BoolLiteral"
	case *NullLiteral:
		return "*querylang.NullLiteral"
	case *StringLiteral:
		return "*querylang.StringLiteral"
	case *DateLiteral:
		return "*querylang.DateLiteral"
	default:
		return "unknown"
	}
}

func TestFloatAsInt(t *testing.T) {
	tests := []struct {
		f      float64
		op     FilterOp
		want   int64
		wantOK bool
	}{
		{2.0, OpEq, 2, true},
		{2.5, OpEq, 2, false},
		{2.5, OpNeq, 2, false},
		{2.5, OpLt, 3, true},
		{2.5, OpGte, 3, true},
		{2.5, OpGt, 2, true},
		{2.5, OpLte, 2, true},
		{-2.5, OpLt, -2, true},
		{-2.5, OpGt, -3, true},
		{1e30, OpEq, 0, false},
	}
	for _, tt := range tests {
		got, ok := FloatAsInt(tt.f, tt.op)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("FloatAsInt(%v, %s) = %d, %v; want %d, %v", tt.f, tt.op, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLiteralCoercions(t *testing.T) {
	s := NewStringLiteral("abc")
	if _, ok := s.AsVarString(OpLt); ok {
		t.Error("string literal coerced under <")
	}
	if v, ok := s.AsVarString(OpEq); !ok || v != "abc" {
		t.Errorf("AsVarString = %q, %v", v, ok)
	}
	if MatchingTypes(s, OpGt) != UnknownT {
		t.Errorf("MatchingTypes(string, >) = %s, want none", MatchingTypes(s, OpGt))
	}
	if got := MatchingTypes(NewIntLiteral(1), OpGt); got != NumberTypes|DateTypes|ArrayT {
		t.Errorf("MatchingTypes(int, >) = %s", got)
	}

	i, _ := ParseIntegral("007")
	if v, _ := i.AsVarString(OpEq); v != "007" {
		t.Errorf("integral keeps text: got %q", v)
	}
	if v, ok := i.AsInt(OpEq); !ok || v != 7 {
		t.Errorf("AsInt = %d, %v", v, ok)
	}

	b := NewBoolLiteral(true)
	if _, ok := b.AsBool(OpGt); ok {
		t.Error("bool coerced under >")
	}

	d := NewDateLiteral(1500, "x")
	if v, _ := d.AsFloatDate(OpEq); v != 1.5 {
		t.Errorf("AsFloatDate = %v, want 1.5", v)
	}

	if !NewNullLiteral().AsNull(OpEq) || NewNullLiteral().AsNull(OpLt) {
		t.Error("null coercion wrong")
	}
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"abc", "a*c", true},
		{"abc", "a?c", true},
		{"abc", "ab", false},
		{"abc", "*", true},
		{"", "*", true},
		{"", "", true},
		{"", "?", false},
		{"abc", "abc", true},
		{"abc", "ABC", false},
		{"abcbc", "*bc", true},
		{"abcbd", "a*bc", false},
		{"a*c", `a\*c`, true},
		{"abc", `a\*c`, false},
		{"mississippi", "m*iss*pi", true},
		{"x y z", "x*z", true},
		{"abc", "**a**c**", true},
	}
	for _, tt := range tests {
		if got := WildcardMatch(tt.s, tt.pattern); got != tt.want {
			t.Errorf("WildcardMatch(%q, %q) = %v, want %v", tt.s, tt.pattern, got, tt.want)
		}
	}
}

func TestHasWildcard(t *testing.T) {
	if !HasWildcard("a*") || !HasWildcard("?") {
		t.Error("expected wildcard")
	}
	if HasWildcard(`a\*`) || HasWildcard("abc") {
		t.Error("unexpected wildcard")
	}
	if got := UnescapeWildcards(`a\*b\\`); got != `a*b\` {
		t.Errorf("UnescapeWildcards = %q", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		path string
		want []Token
	}{
		{"a", []Token{{Name: "a"}}},
		{"a.b", []Token{{Name: "a"}, {Name: "b"}}},
		{`a\.b`, []Token{{Name: "a.b"}}},
		{"*.b", []Token{{Name: "*", Wildcard: true}, {Name: "b"}}},
		{`\*`, []Token{{Name: "*"}}},
		{"", nil},
	}
	for _, tt := range tests {
		got := Tokenize(tt.path)
		if len(got) != len(tt.want) {
			t.Fatalf("Tokenize(%q) = %v, want %v", tt.path, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %v, want %v", tt.path, i, got[i], tt.want[i])
			}
		}
	}
}

func TestColumnDescriptor(t *testing.T) {
	c := ParseColumnDescriptor("*")
	if !c.PureWildcard() {
		t.Error("* should be a pure wildcard")
	}
	if c.Types() != AllTypes {
		t.Errorf("initial types = %s", c.Types())
	}

	d := ParseColumnDescriptor("b")
	d.Prepend([]Token{{Name: "a"}})
	if d.String() != "a.b" || d.HasWildcard() {
		t.Errorf("Prepend = %s", d)
	}

	d.SetID(7)
	cp := d.Copy()
	cp.SetTypes(IntegerT)
	cp.Prepend([]Token{{Name: "x"}})
	if d.Types() != AllTypes || d.String() != "a.b" {
		t.Error("Copy is not independent")
	}
	if cp.ID() != 7 {
		t.Errorf("Copy ID = %d, want 7", cp.ID())
	}
}

func TestExprCopyIndependent(t *testing.T) {
	orig, err := Parse("a: 1 AND (b: 2 OR c: 3)", nil)
	if err != nil {
		t.Fatal(err)
	}
	cp := orig.Copy()
	and := cp.(*AndExpr)
	and.RemoveOperand(0)
	and.Operands[0].Invert()
	and.AddOperand(NewEmpty())

	if got := orig.String(); got != "(a: 1 AND (b: 2 OR c: 3))" {
		t.Errorf("original changed: %s", got)
	}
	if got := cp.String(); got != "(NOT (b: 2 OR c: 3) AND EMPTY)" {
		t.Errorf("copy = %s", got)
	}
	if cp.HasOnlyExpressionOperands() != true {
		t.Error("AND has only expression operands")
	}
}
