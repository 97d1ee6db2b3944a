package querylang

import (
	"math"
	"strconv"
	"strings"
)

// LiteralType is a bitmask of the value types a column or literal can take.
type LiteralType uint16

const (
	IntegerT LiteralType = 1 << iota
	FloatT
	ClpStringT
	VarStringT
	BooleanT
	ArrayT
	NullT
	EpochDateT
	FloatDateT

	UnknownT LiteralType = 0
)

// Common type masks.
const (
	AllTypes      = IntegerT | FloatT | ClpStringT | VarStringT | BooleanT | ArrayT | NullT | EpochDateT | FloatDateT
	NumberTypes   = IntegerT | FloatT
	StringTypes   = ClpStringT | VarStringT
	DateTypes     = EpochDateT | FloatDateT
	IntegralTypes = IntegerT | FloatT | VarStringT | DateTypes | ArrayT
)

var literalTypeNames = []struct {
	t    LiteralType
	name string
}{
	{IntegerT, "int"},
	{FloatT, "float"},
	{ClpStringT, "clpstring"},
	{VarStringT, "varstring"},
	{BooleanT, "bool"},
	{ArrayT, "array"},
	{NullT, "null"},
	{EpochDateT, "date"},
	{FloatDateT, "floatdate"},
}

func (t LiteralType) String() string {
	if t == UnknownT {
		return "none"
	}
	var parts []string
	for _, n := range literalTypeNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// FilterOp is the comparison applied by a FilterExpr.
type FilterOp int

const (
	OpExists FilterOp = iota
	OpNExists
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte
)

func (op FilterOp) String() string {
	switch op {
	case OpExists:
		return "EXISTS"
	case OpNExists:
		return "NEXISTS"
	case OpEq:
		return ":"
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	default:
		return "?"
	}
}

// IsOrdering reports whether op is one of the range comparisons.
func (op FilterOp) IsOrdering() bool {
	return op == OpLt || op == OpGt || op == OpLte || op == OpGte
}

// Holds reports whether op is satisfied by a three-way comparison result
// of (value, literal), as returned by cmp.Compare.
func (op FilterOp) Holds(c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpLt:
		return c < 0
	case OpGt:
		return c > 0
	case OpLte:
		return c <= 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}

// Literal is a typed constant operand of a FilterExpr.
// Literals are immutable and may be shared between expression copies.
//
// The As* coercions report false when the literal cannot be used as the
// requested type under op. Callers treat a failed coercion as a filter that
// does not hold.
type Literal interface {
	literal()
	Types() LiteralType
	AsInt(op FilterOp) (int64, bool)
	AsFloat(op FilterOp) (float64, bool)
	AsBool(op FilterOp) (bool, bool)
	AsClpString(op FilterOp) (string, bool)
	AsVarString(op FilterOp) (string, bool)
	AsNull(op FilterOp) bool
	AsEpochDate(op FilterOp) (int64, bool)
	AsFloatDate(op FilterOp) (float64, bool)
	AsAny(op FilterOp) bool
	String() string
}

// MatchingTypes returns the column types lit can match under op.
// Strings, booleans and null only support equality, and a range over a
// literal that is neither a number nor a date matches nothing.
func MatchingTypes(lit Literal, op FilterOp) LiteralType {
	t := lit.Types()
	if op.IsOrdering() {
		if t&(NumberTypes|DateTypes) == 0 {
			return UnknownT
		}
		t &^= StringTypes | BooleanT | NullT
	}
	return t
}

func isEquality(op FilterOp) bool {
	return op == OpEq || op == OpNeq
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	v bool
}

// NewBoolLiteral returns a boolean literal.
func NewBoolLiteral(v bool) *BoolLiteral { return &BoolLiteral{v: v} }

func (*BoolLiteral) literal() {}

func (*BoolLiteral) Types() LiteralType { return BooleanT | VarStringT | ArrayT }

func (*BoolLiteral) AsInt(FilterOp) (int64, bool)       { return 0, false }
func (*BoolLiteral) AsFloat(FilterOp) (float64, bool)   { return 0, false }
func (*BoolLiteral) AsClpString(FilterOp) (string, bool) { return "", false }
func (*BoolLiteral) AsNull(FilterOp) bool               { return false }
func (*BoolLiteral) AsEpochDate(FilterOp) (int64, bool) { return 0, false }
func (*BoolLiteral) AsFloatDate(FilterOp) (float64, bool) {
	return 0, false
}
func (*BoolLiteral) AsAny(FilterOp) bool { return false }

func (b *BoolLiteral) AsBool(op FilterOp) (bool, bool) {
	return b.v, isEquality(op)
}

func (b *BoolLiteral) AsVarString(op FilterOp) (string, bool) {
	return b.String(), isEquality(op)
}

func (b *BoolLiteral) String() string { return strconv.FormatBool(b.v) }

// IntegralLiteral is an integer or floating point number. It remembers the
// text it was parsed from so it can also match string columns verbatim.
type IntegralLiteral struct {
	isFloat bool
	i       int64
	f       float64
	text    string
}

// NewIntLiteral returns an integer literal.
func NewIntLiteral(v int64) *IntegralLiteral {
	return &IntegralLiteral{i: v, text: strconv.FormatInt(v, 10)}
}

// NewFloatLiteral returns a floating point literal.
func NewFloatLiteral(v float64) *IntegralLiteral {
	return &IntegralLiteral{isFloat: true, f: v, text: strconv.FormatFloat(v, 'g', -1, 64)}
}

// ParseIntegral parses s as an integer, falling back to a float.
// Non-finite values and hexadecimal forms are rejected.
func ParseIntegral(s string) (*IntegralLiteral, bool) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("0123456789+-.eE", r)
	}) >= 0 {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &IntegralLiteral{i: i, text: s}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	return &IntegralLiteral{isFloat: true, f: f, text: s}, true
}

func (*IntegralLiteral) literal() {}

func (*IntegralLiteral) Types() LiteralType { return IntegralTypes }

func (l *IntegralLiteral) AsInt(op FilterOp) (int64, bool) {
	if !l.isFloat {
		return l.i, true
	}
	return FloatAsInt(l.f, op)
}

func (l *IntegralLiteral) AsFloat(FilterOp) (float64, bool) {
	if l.isFloat {
		return l.f, true
	}
	return float64(l.i), true
}

func (*IntegralLiteral) AsBool(FilterOp) (bool, bool)        { return false, false }
func (*IntegralLiteral) AsClpString(FilterOp) (string, bool) { return "", false }
func (*IntegralLiteral) AsNull(FilterOp) bool                { return false }
func (*IntegralLiteral) AsAny(FilterOp) bool                 { return false }

func (l *IntegralLiteral) AsVarString(op FilterOp) (string, bool) {
	return l.text, isEquality(op)
}

func (l *IntegralLiteral) AsEpochDate(op FilterOp) (int64, bool) { return l.AsInt(op) }

func (l *IntegralLiteral) AsFloatDate(op FilterOp) (float64, bool) { return l.AsFloat(op) }

func (l *IntegralLiteral) String() string { return l.text }

// FloatAsInt converts f to an integer operand for op. Equality requires an
// exact integral value; range operators round in the direction that keeps
// the comparison equivalent over integers.
func FloatAsInt(f float64, op FilterOp) (int64, bool) {
	if math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, false
	}
	switch op {
	case OpEq, OpNeq:
		i := int64(f)
		return i, float64(i) == f
	case OpLt, OpGte:
		return int64(math.Ceil(f)), true
	case OpGt, OpLte:
		return int64(math.Floor(f)), true
	default:
		return int64(f), true
	}
}

// StringLiteral is a string, possibly containing wildcards.
type StringLiteral struct {
	v string
}

// NewStringLiteral returns a string literal.
func NewStringLiteral(v string) *StringLiteral { return &StringLiteral{v: v} }

func (*StringLiteral) literal() {}

// Types reports ClpStringT for values containing a space and VarStringT
// otherwise. Wildcards may match either kind. A lone "*" matches anything.
func (s *StringLiteral) Types() LiteralType {
	switch {
	case s.v == "*":
		return AllTypes
	case strings.Contains(s.v, " "):
		return ClpStringT | ArrayT
	case HasWildcard(s.v):
		return StringTypes | ArrayT
	default:
		return VarStringT | ArrayT
	}
}

func (*StringLiteral) AsInt(FilterOp) (int64, bool)         { return 0, false }
func (*StringLiteral) AsFloat(FilterOp) (float64, bool)     { return 0, false }
func (*StringLiteral) AsBool(FilterOp) (bool, bool)         { return false, false }
func (*StringLiteral) AsNull(FilterOp) bool                 { return false }
func (*StringLiteral) AsEpochDate(FilterOp) (int64, bool)   { return 0, false }
func (*StringLiteral) AsFloatDate(FilterOp) (float64, bool) { return 0, false }

func (s *StringLiteral) AsClpString(op FilterOp) (string, bool) { return s.v, isEquality(op) }

func (s *StringLiteral) AsVarString(op FilterOp) (string, bool) { return s.v, isEquality(op) }

func (s *StringLiteral) AsAny(op FilterOp) bool { return s.v == "*" && isEquality(op) }

func (s *StringLiteral) String() string { return strconv.Quote(s.v) }

// DateLiteral is a timestamp written as date("...") in a query.
// Epoch is in milliseconds.
type DateLiteral struct {
	epoch int64
	text  string
}

// NewDateLiteral returns a date literal for the given epoch milliseconds.
func NewDateLiteral(epochMillis int64, text string) *DateLiteral {
	return &DateLiteral{epoch: epochMillis, text: text}
}

func (*DateLiteral) literal() {}

func (*DateLiteral) Types() LiteralType { return DateTypes | NumberTypes }

func (d *DateLiteral) AsInt(FilterOp) (int64, bool)     { return d.epoch, true }
func (d *DateLiteral) AsFloat(FilterOp) (float64, bool) { return float64(d.epoch), true }

func (*DateLiteral) AsBool(FilterOp) (bool, bool)          { return false, false }
func (*DateLiteral) AsClpString(FilterOp) (string, bool)   { return "", false }
func (*DateLiteral) AsVarString(FilterOp) (string, bool)   { return "", false }
func (*DateLiteral) AsNull(FilterOp) bool                  { return false }
func (*DateLiteral) AsAny(FilterOp) bool                   { return false }
func (d *DateLiteral) AsEpochDate(FilterOp) (int64, bool) { return d.epoch, true }

// AsFloatDate returns the epoch in seconds, the unit of float timestamps.
func (d *DateLiteral) AsFloatDate(FilterOp) (float64, bool) {
	return float64(d.epoch) / 1000, true
}

func (d *DateLiteral) String() string { return "date(" + strconv.Quote(d.text) + ")" }

// NullLiteral is the JSON null.
type NullLiteral struct{}

// NewNullLiteral returns the null literal.
func NewNullLiteral() *NullLiteral { return &NullLiteral{} }

func (*NullLiteral) literal() {}

func (*NullLiteral) Types() LiteralType { return NullT | VarStringT | ArrayT }

func (*NullLiteral) AsInt(FilterOp) (int64, bool)         { return 0, false }
func (*NullLiteral) AsFloat(FilterOp) (float64, bool)     { return 0, false }
func (*NullLiteral) AsBool(FilterOp) (bool, bool)         { return false, false }
func (*NullLiteral) AsClpString(FilterOp) (string, bool)  { return "", false }
func (*NullLiteral) AsEpochDate(FilterOp) (int64, bool)   { return 0, false }
func (*NullLiteral) AsFloatDate(FilterOp) (float64, bool) { return 0, false }
func (*NullLiteral) AsAny(FilterOp) bool                  { return false }

func (*NullLiteral) AsNull(op FilterOp) bool { return isEquality(op) }

func (*NullLiteral) AsVarString(op FilterOp) (string, bool) { return "null", isEquality(op) }

func (*NullLiteral) String() string { return "null" }

// ClassifyLiteral turns query text into a literal, trying integral, boolean
// and null forms before falling back to a string.
func ClassifyLiteral(s string) Literal {
	if l, ok := ParseIntegral(s); ok {
		return l
	}
	switch s {
	case "true":
		return NewBoolLiteral(true)
	case "false":
		return NewBoolLiteral(false)
	case "null":
		return NewNullLiteral()
	}
	return NewStringLiteral(s)
}
