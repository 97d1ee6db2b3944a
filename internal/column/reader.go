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

// Reader holds one decoded column of a table.
type Reader interface {
	// ID returns the schema node the column stores.
	ID() int32
	Type() schema.NodeType
	// Load decodes n values from r.
	Load(r io.Reader, n int) error
	// ExtractValue returns the value of record i.
	ExtractValue(i int) (Value, error)
}

// NewReader returns the reader for node id of type typ.
func NewReader(typ schema.NodeType, id int32, dicts Dicts) (Reader, error) {
	b := base{id: id, typ: typ}
	switch typ {
	case schema.Integer:
		return &Int64Reader{base: b}, nil
	case schema.Float:
		return &FloatReader{base: b}, nil
	case schema.Boolean:
		return &BoolReader{base: b}, nil
	case schema.ClpString:
		return &ClpStringReader{base: b, logtypes: dicts.Log, vars: dicts.Var}, nil
	case schema.Array:
		return &ClpStringReader{base: b, logtypes: dicts.Array, vars: dicts.Var}, nil
	case schema.VarString:
		return &VarStringReader{base: b, vars: dicts.Var}, nil
	case schema.DateString:
		return &DateStringReader{base: b, vars: dicts.Var}, nil
	case schema.FloatDateString:
		return &FloatReader{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
}

type base struct {
	id  int32
	typ schema.NodeType
}

func (b base) ID() int32             { return b.id }
func (b base) Type() schema.NodeType { return b.typ }

// fields reads little endian fields and keeps the first error.
type fields struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (f *fields) read(n int) []byte {
	if f.err != nil {
		return f.buf[:n]
	}
	if _, err := io.ReadFull(f.r, f.buf[:n]); err != nil {
		f.err = ErrTruncated
	}
	return f.buf[:n]
}

func (f *fields) u32() uint32 { return binary.LittleEndian.Uint32(f.read(4)) }
func (f *fields) u64() uint64 { return binary.LittleEndian.Uint64(f.read(8)) }

// remaining reports how many bytes r still holds, when r can tell.
func remaining(r io.Reader) (int64, bool) {
	switch x := r.(type) {
	case interface{ Len() int }:
		return int64(x.Len()), true
	case interface {
		io.Seeker
		Size() int64
	}:
		pos, err := x.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		return x.Size() - pos, true
	}
	return 0, false
}

// loadFixed reads n values of width bytes. Counts are checked against the
// bytes left in r before anything is allocated for them.
func loadFixed(r io.Reader, n, width int) ([]byte, error) {
	size := int64(n) * int64(width)
	left, ok := remaining(r)
	if !ok {
		buf, err := io.ReadAll(io.LimitReader(r, size))
		if err != nil || int64(len(buf)) < size {
			return nil, ErrTruncated
		}
		return buf, nil
	}
	if size > left {
		return nil, fmt.Errorf("%w: %d values need %d bytes, %d left", ErrTruncated, n, size, left)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

// Int64Reader reads Integer columns.
type Int64Reader struct {
	base
	values []int64
}

func (c *Int64Reader) Load(r io.Reader, n int) error {
	buf, err := loadFixed(r, n, 8)
	if err != nil {
		return err
	}
	c.values = make([]int64, n)
	for i := range c.values {
		c.values[i] = int64(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}

// Int returns the value of record i.
func (c *Int64Reader) Int(i int) int64 { return c.values[i] }

func (c *Int64Reader) ExtractValue(i int) (Value, error) {
	return Value{Kind: KindInt, Int: c.values[i]}, nil
}

// FloatReader reads Float and FloatDateString columns.
type FloatReader struct {
	base
	values []float64
}

func (c *FloatReader) Load(r io.Reader, n int) error {
	buf, err := loadFixed(r, n, 8)
	if err != nil {
		return err
	}
	c.values = make([]float64, n)
	for i := range c.values {
		c.values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}

// Float returns the value of record i.
func (c *FloatReader) Float(i int) float64 { return c.values[i] }

func (c *FloatReader) ExtractValue(i int) (Value, error) {
	return Value{Kind: KindFloat, Float: c.values[i]}, nil
}

// BoolReader reads Boolean columns.
type BoolReader struct {
	base
	values []byte
}

func (c *BoolReader) Load(r io.Reader, n int) error {
	buf, err := loadFixed(r, n, 1)
	c.values = buf
	return err
}

// Bool returns the value of record i.
func (c *BoolReader) Bool(i int) bool { return c.values[i] != 0 }

func (c *BoolReader) ExtractValue(i int) (Value, error) {
	return Value{Kind: KindBool, Bool: c.Bool(i)}, nil
}

// ClpStringReader reads ClpString and Array columns.
type ClpStringReader struct {
	base
	logtypes *dict.Dict
	vars     *dict.Dict
	ids      []uint32
	varIDs   [][]uint32
}

func (c *ClpStringReader) Load(r io.Reader, n int) error {
	// Each record holds at least a logtype id and a variable count.
	capacity := min(n, 1<<16)
	if left, ok := remaining(r); ok {
		if int64(n)*8 > left {
			return fmt.Errorf("%w: %d records need at least %d bytes, %d left", ErrTruncated, n, int64(n)*8, left)
		}
		capacity = n
	}
	f := fields{r: r}
	c.ids = make([]uint32, 0, capacity)
	c.varIDs = make([][]uint32, 0, capacity)
	for range n {
		id := f.u32()
		count := f.u32()
		if f.err != nil {
			return f.err
		}
		var ids []uint32
		if count > 0 {
			buf, err := loadFixed(r, int(count), 4)
			if err != nil {
				return err
			}
			ids = make([]uint32, count)
			for j := range ids {
				ids[j] = binary.LittleEndian.Uint32(buf[4*j:])
			}
		}
		c.ids = append(c.ids, id)
		c.varIDs = append(c.varIDs, ids)
	}
	return nil
}

// LogtypeID returns the logtype dictionary id of record i.
func (c *ClpStringReader) LogtypeID(i int) uint32 { return c.ids[i] }

// VarIDs returns the variable dictionary ids of record i.
func (c *ClpStringReader) VarIDs(i int) []uint32 { return c.varIDs[i] }

// Decode returns the string value of record i.
func (c *ClpStringReader) Decode(i int) (string, error) {
	return clp.DecodeIDs(c.logtypes, c.vars, c.ids[i], c.varIDs[i])
}

func (c *ClpStringReader) ExtractValue(i int) (Value, error) {
	s, err := c.Decode(i)
	if err != nil {
		return Value{}, err
	}
	if c.typ == schema.Array {
		return Value{Kind: KindRaw, Str: s}, nil
	}
	return Value{Kind: KindString, Str: s}, nil
}

// VarStringReader reads VarString columns.
type VarStringReader struct {
	base
	vars *dict.Dict
	ids  []uint32
}

func (c *VarStringReader) Load(r io.Reader, n int) error {
	buf, err := loadFixed(r, n, 4)
	if err != nil {
		return err
	}
	c.ids = make([]uint32, n)
	for i := range c.ids {
		c.ids[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return nil
}

// VarID returns the variable dictionary id of record i.
func (c *VarStringReader) VarID(i int) uint32 { return c.ids[i] }

func (c *VarStringReader) ExtractValue(i int) (Value, error) {
	s, err := c.vars.Lookup(c.ids[i])
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindString, Str: s}, nil
}

// DateStringReader reads DateString columns.
type DateStringReader struct {
	base
	vars   *dict.Dict
	epochs []int64
	ids    []uint32
}

func (c *DateStringReader) Load(r io.Reader, n int) error {
	buf, err := loadFixed(r, n, 12)
	if err != nil {
		return err
	}
	c.epochs = make([]int64, n)
	c.ids = make([]uint32, n)
	for i := range n {
		c.epochs[i] = int64(binary.LittleEndian.Uint64(buf[12*i:]))
		c.ids[i] = binary.LittleEndian.Uint32(buf[12*i+8:])
	}
	return nil
}

// Epoch returns the timestamp of record i in milliseconds.
func (c *DateStringReader) Epoch(i int) int64 { return c.epochs[i] }

// VarID returns the variable dictionary id of the original text of record i.
func (c *DateStringReader) VarID(i int) uint32 { return c.ids[i] }

func (c *DateStringReader) ExtractValue(i int) (Value, error) {
	s, err := c.vars.Lookup(c.ids[i])
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindString, Int: c.epochs[i], Str: s}, nil
}
