// Package column encodes the values of one schema node across the records
// of a table.
//
// Every column is a fixed sequence of little endian fields per record:
//
//	Integer          i64
//	Float            f64
//	Boolean          u8
//	VarString        var id u32
//	ClpString, Array logtype id u32, var count u32, var ids u32...
//	DateString       epoch ms i64, var id u32 of the original text
//	FloatDateString  f64 epoch seconds
//
// Object and Null nodes carry no data and have no column.
package column

import (
	"bytes"
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"columnlog/internal/dict"
)

var (
	ErrUnsupportedType = errors.New("node type has no column")
	ErrTruncated       = errors.New("column data truncated")
	ErrKindMismatch    = errors.New("value kind does not match column")
)

// Kind is the JSON shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	// KindRaw is JSON text emitted verbatim, used for arrays.
	KindRaw
)

// Value is one decoded cell. Only the fields of its Kind are meaningful,
// except for dates which set both Int (epoch ms) and Str (original text).
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// WriteJSON writes the JSON form of v to s. Integral floats keep a fraction,
// so 2 is written as 2.0. Invalid UTF-8 in strings becomes U+FFFD.
func (v Value) WriteJSON(s *jsoniter.Stream) {
	switch v.Kind {
	case KindInt:
		s.WriteInt64(v.Int)
	case KindFloat:
		writeFloat(s, v.Float)
	case KindBool:
		s.WriteBool(v.Bool)
	case KindString:
		s.WriteString(strings.ToValidUTF8(v.Str, "\uFFFD"))
	case KindRaw:
		s.WriteRaw(strings.ToValidUTF8(v.Str, "\uFFFD"))
	default:
		s.WriteNil()
	}
}

func writeFloat(s *jsoniter.Stream, f float64) {
	start := len(s.Buffer())
	s.WriteFloat64(f)
	if s.Error == nil && !bytes.ContainsAny(s.Buffer()[start:], ".eE") {
		s.WriteRaw(".0")
	}
}

// Dicts are the loaded dictionaries column readers decode against.
type Dicts struct {
	Var   *dict.Dict
	Log   *dict.Dict
	Array *dict.Dict
}

// WriterDicts are the dictionaries column writers intern strings into.
type WriterDicts struct {
	Var   *dict.Writer
	Log   *dict.Writer
	Array *dict.Writer
}
