package column

import (
	"bytes"
	"errors"
	"io"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"

	"columnlog/internal/dict"
	"columnlog/internal/format"
	"columnlog/internal/schema"
)

func newWriterDicts() WriterDicts {
	return WriterDicts{
		Var:   dict.NewWriter(format.TypeVarDict),
		Log:   dict.NewWriter(format.TypeLogDict),
		Array: dict.NewWriter(format.TypeArrayDict),
	}
}

func load(t *testing.T, w *dict.Writer, typ byte) *dict.Dict {
	t.Helper()
	var buf bytes.Buffer
	if err := w.Encode(&buf, zstd.SpeedFastest); err != nil {
		t.Fatal(err)
	}
	d, err := dict.Decode(buf.Bytes(), typ)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		typ    schema.NodeType
		values []Value
		json   []string
	}{
		{schema.Integer, []Value{{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: -42}}, []string{"1", "-42"}},
		{schema.Float, []Value{{Kind: KindFloat, Float: 1.5}, {Kind: KindFloat, Float: 2}}, []string{"1.5", "2.0"}},
		{schema.Boolean, []Value{{Kind: KindBool, Bool: true}, {Kind: KindBool}}, []string{"true", "false"}},
		{schema.ClpString, []Value{{Kind: KindString, Str: "x y"}, {Kind: KindString, Str: "took 12ms"}}, []string{`"x y"`, `"took 12ms"`}},
		{schema.VarString, []Value{{Kind: KindString, Str: "z"}, {Kind: KindString, Str: `q"t`}}, []string{`"z"`, `"q\"t"`}},
		{schema.DateString, []Value{{Kind: KindString, Int: 1000, Str: "1970-01-01T00:00:01Z"}}, []string{`"1970-01-01T00:00:01Z"`}},
		{schema.FloatDateString, []Value{{Kind: KindFloat, Float: 1.25}}, []string{"1.25"}},
		{schema.Array, []Value{{Kind: KindRaw, Str: `[1,"a b",{"k":2}]`}}, []string{`[1,"a b",{"k":2}]`}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			wd := newWriterDicts()
			w, err := NewWriter(tt.typ, wd)
			if err != nil {
				t.Fatal(err)
			}
			for _, v := range tt.values {
				if err := w.Add(v); err != nil {
					t.Fatalf("Add: %v", err)
				}
			}
			if w.Len() != len(tt.values) || w.Type() != tt.typ {
				t.Fatalf("Len() = %d, Type() = %s", w.Len(), w.Type())
			}

			var buf bytes.Buffer
			if _, err := w.WriteTo(&buf); err != nil {
				t.Fatal(err)
			}
			if buf.Len() != w.Size() {
				t.Errorf("wrote %d bytes, Size() = %d", buf.Len(), w.Size())
			}
			// A trailing byte belongs to the next column.
			buf.WriteByte(0xAA)

			dicts := Dicts{
				Var:   load(t, wd.Var, format.TypeVarDict),
				Log:   load(t, wd.Log, format.TypeLogDict),
				Array: load(t, wd.Array, format.TypeArrayDict),
			}
			r, err := NewReader(tt.typ, 7, dicts)
			if err != nil {
				t.Fatal(err)
			}
			if err := r.Load(&buf, len(tt.values)); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if buf.Len() != 1 {
				t.Errorf("Load left %d bytes, want 1", buf.Len())
			}
			if r.ID() != 7 {
				t.Errorf("ID() = %d", r.ID())
			}
			for i, want := range tt.json {
				v, err := r.ExtractValue(i)
				if err != nil {
					t.Fatalf("ExtractValue(%d): %v", i, err)
				}
				if got := jsonOf(v); got != want {
					t.Errorf("value %d = %s, want %s", i, got, want)
				}
			}
		})
	}
}

func TestTypedAccessors(t *testing.T) {
	wd := newWriterDicts()
	cw, _ := NewWriter(schema.ClpString, wd)
	_ = cw.Add(Value{Kind: KindString, Str: "user=bob took 12ms"})
	dw, _ := NewWriter(schema.DateString, wd)
	_ = dw.Add(Value{Kind: KindString, Int: 5000, Str: "5s"})

	var buf bytes.Buffer
	_, _ = cw.WriteTo(&buf)
	_, _ = dw.WriteTo(&buf)

	dicts := Dicts{Var: load(t, wd.Var, format.TypeVarDict), Log: load(t, wd.Log, format.TypeLogDict)}
	cr, _ := NewReader(schema.ClpString, 0, dicts)
	dr, _ := NewReader(schema.DateString, 1, dicts)
	if err := cr.Load(&buf, 1); err != nil {
		t.Fatal(err)
	}
	if err := dr.Load(&buf, 1); err != nil {
		t.Fatal(err)
	}

	clpr := cr.(*ClpStringReader)
	if lt, _ := dicts.Log.Lookup(clpr.LogtypeID(0)); lt != "user=\x11 took \x11" {
		t.Errorf("logtype = %q", lt)
	}
	if got := len(clpr.VarIDs(0)); got != 2 {
		t.Errorf("%d var ids, want 2", got)
	}

	dater := dr.(*DateStringReader)
	if dater.Epoch(0) != 5000 {
		t.Errorf("Epoch = %d", dater.Epoch(0))
	}
	if s, _ := dicts.Var.Lookup(dater.VarID(0)); s != "5s" {
		t.Errorf("date text = %q", s)
	}
}

func TestErrors(t *testing.T) {
	if _, err := NewWriter(schema.Object, newWriterDicts()); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("NewWriter(Object) error = %v", err)
	}
	if _, err := NewReader(schema.Null, 0, Dicts{}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("NewReader(Null) error = %v", err)
	}

	w, _ := NewWriter(schema.Integer, newWriterDicts())
	if err := w.Add(Value{Kind: KindString, Str: "1"}); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Add(string) to int column error = %v", err)
	}

	r, _ := NewReader(schema.Integer, 0, Dicts{})
	if err := r.Load(bytes.NewReader(make([]byte, 12)), 2); !errors.Is(err, ErrTruncated) {
		t.Errorf("Load short error = %v", err)
	}
	r, _ = NewReader(schema.ClpString, 0, Dicts{})
	if err := r.Load(bytes.NewReader([]byte{0, 0, 0, 0, 3, 0, 0, 0, 1}), 1); !errors.Is(err, ErrTruncated) {
		t.Errorf("Load short clp error = %v", err)
	}
}

func TestLoadRejectsCountsPastEnd(t *testing.T) {
	hugeVars := []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0x7f}
	padded := append(append([]byte{}, hugeVars...), make([]byte, 8)...)

	tests := []struct {
		name string
		typ  schema.NodeType
		r    io.Reader
		n    int
	}{
		{"var count", schema.ClpString, bytes.NewReader(hugeVars), 1},
		{"var count in section", schema.ClpString, io.NewSectionReader(bytes.NewReader(padded), 0, int64(len(padded))), 1},
		{"var count of opaque reader", schema.Array, struct{ io.Reader }{bytes.NewReader(hugeVars)}, 1},
		{"record count", schema.ClpString, bytes.NewReader(make([]byte, 16)), 1 << 30},
		{"int record count", schema.Integer, bytes.NewReader(make([]byte, 16)), 1 << 30},
		{"date record count", schema.DateString, bytes.NewReader(make([]byte, 16)), 1 << 30},
		{"var string record count", schema.VarString, io.NewSectionReader(bytes.NewReader(make([]byte, 16)), 0, 16), 1 << 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.typ, 0, Dicts{})
			if err != nil {
				t.Fatal(err)
			}
			if err := r.Load(tt.r, tt.n); !errors.Is(err, ErrTruncated) {
				t.Errorf("Load error = %v, want ErrTruncated", err)
			}
		})
	}
}

func jsonOf(v Value) string {
	s := jsoniter.ConfigFastest.BorrowStream(nil)
	defer jsoniter.ConfigFastest.ReturnStream(s)
	v.WriteJSON(s)
	return string(s.Buffer())
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Value{Kind: KindNull}, "null"},
		{Value{Kind: KindInt, Int: -7}, "-7"},
		{Value{Kind: KindBool, Bool: true}, "true"},
		{Value{Kind: KindFloat, Float: 1e21}, "1e+21"},
		{Value{Kind: KindFloat, Float: -3}, "-3.0"},
		{Value{Kind: KindFloat, Float: 0.1}, "0.1"},
		{Value{Kind: KindString, Str: "a\nb\x01é"}, `"a\nb\u0001é"`},
		{Value{Kind: KindString, Str: `back\slash`}, `"back\\slash"`},
		{Value{Kind: KindString, Str: "bad\xffbyte"}, "\"bad\uFFFDbyte\""},
		{Value{Kind: KindRaw, Str: `[1,"x"]`}, `[1,"x"]`},
	}
	for _, tt := range tests {
		if got := jsonOf(tt.v); got != tt.want {
			t.Errorf("WriteJSON(%+v) = %s, want %s", tt.v, got, tt.want)
		}
	}
}
