package column

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"columnlog/internal/clp"
	"columnlog/internal/dict"
	"columnlog/internal/schema"
)

// Writer accumulates the encoded values of one column.
type Writer interface {
	Type() schema.NodeType
	// Add appends the value of the next record.
	Add(v Value) error
	// Len returns the number of values added.
	Len() int
	// Size returns the encoded size in bytes.
	Size() int
	WriteTo(w io.Writer) (int64, error)
}

// NewWriter returns the writer for a node type.
func NewWriter(typ schema.NodeType, dicts WriterDicts) (Writer, error) {
	switch typ {
	case schema.Integer:
		return &Int64Writer{}, nil
	case schema.Float:
		return &FloatWriter{}, nil
	case schema.Boolean:
		return &BoolWriter{}, nil
	case schema.ClpString:
		return &ClpStringWriter{typ: schema.ClpString, logtypes: dicts.Log, vars: dicts.Var}, nil
	case schema.Array:
		return &ArrayWriter{ClpStringWriter{typ: schema.Array, logtypes: dicts.Array, vars: dicts.Var}}, nil
	case schema.VarString:
		return &VarStringWriter{vars: dicts.Var}, nil
	case schema.DateString:
		return &DateStringWriter{vars: dicts.Var}, nil
	case schema.FloatDateString:
		return &FloatDateWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
}

type buffer struct {
	buf []byte
	n   int
}

func (b *buffer) Len() int  { return b.n }
func (b *buffer) Size() int { return len(b.buf) }

func (b *buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.buf)
	return int64(n), err
}

func kindError(typ schema.NodeType, v Value) error {
	return fmt.Errorf("%w: %s column, kind %d", ErrKindMismatch, typ, v.Kind)
}

// CheckKind reports whether a value of kind k can be added to a column of
// type typ.
func CheckKind(typ schema.NodeType, k Kind) error {
	var ok bool
	switch typ {
	case schema.Integer:
		ok = k == KindInt
	case schema.Float, schema.FloatDateString:
		ok = k == KindFloat
	case schema.Boolean:
		ok = k == KindBool
	case schema.ClpString, schema.VarString, schema.DateString:
		ok = k == KindString
	case schema.Array:
		ok = k == KindRaw || k == KindString
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	if !ok {
		return kindError(typ, Value{Kind: k})
	}
	return nil
}

// Int64Writer writes Integer columns.
type Int64Writer struct{ buffer }

func (*Int64Writer) Type() schema.NodeType { return schema.Integer }

func (w *Int64Writer) Add(v Value) error {
	if v.Kind != KindInt {
		return kindError(schema.Integer, v)
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v.Int))
	w.n++
	return nil
}

// FloatWriter writes Float columns.
type FloatWriter struct{ buffer }

func (*FloatWriter) Type() schema.NodeType { return schema.Float }

func (w *FloatWriter) Add(v Value) error {
	if v.Kind != KindFloat {
		return kindError(schema.Float, v)
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v.Float))
	w.n++
	return nil
}

// BoolWriter writes Boolean columns.
type BoolWriter struct{ buffer }

func (*BoolWriter) Type() schema.NodeType { return schema.Boolean }

func (w *BoolWriter) Add(v Value) error {
	if v.Kind != KindBool {
		return kindError(schema.Boolean, v)
	}
	var b byte
	if v.Bool {
		b = 1
	}
	w.buf = append(w.buf, b)
	w.n++
	return nil
}

// ClpStringWriter writes CLP encoded strings: the logtype goes to the log
// dictionary and the variables to the variable dictionary.
type ClpStringWriter struct {
	buffer
	typ      schema.NodeType
	logtypes *dict.Writer
	vars     *dict.Writer
}

func (w *ClpStringWriter) Type() schema.NodeType { return w.typ }

func (w *ClpStringWriter) Add(v Value) error {
	if v.Kind != KindString && v.Kind != KindRaw {
		return kindError(w.Type(), v)
	}
	lt, vars := clp.EncodeIDs(v.Str, w.logtypes, w.vars)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, lt)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(vars)))
	for _, id := range vars {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, id)
	}
	w.n++
	return nil
}

// ArrayWriter writes arrays as CLP encoded JSON text against the array
// dictionary.
type ArrayWriter struct {
	ClpStringWriter
}

// VarStringWriter writes strings as variable dictionary ids.
type VarStringWriter struct {
	buffer
	vars *dict.Writer
}

func (*VarStringWriter) Type() schema.NodeType { return schema.VarString }

func (w *VarStringWriter) Add(v Value) error {
	if v.Kind != KindString {
		return kindError(schema.VarString, v)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, w.vars.Add(v.Str))
	w.n++
	return nil
}

// DateStringWriter writes parsed timestamps with their original text.
type DateStringWriter struct {
	buffer
	vars *dict.Writer
}

func (*DateStringWriter) Type() schema.NodeType { return schema.DateString }

func (w *DateStringWriter) Add(v Value) error {
	if v.Kind != KindString {
		return kindError(schema.DateString, v)
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v.Int))
	w.buf = binary.LittleEndian.AppendUint32(w.buf, w.vars.Add(v.Str))
	w.n++
	return nil
}

// FloatDateWriter writes float epoch timestamps.
type FloatDateWriter struct{ buffer }

func (*FloatDateWriter) Type() schema.NodeType { return schema.FloatDateString }

func (w *FloatDateWriter) Add(v Value) error {
	if v.Kind != KindFloat {
		return kindError(schema.FloatDateString, v)
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v.Float))
	w.n++
	return nil
}
