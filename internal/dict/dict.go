// Package dict implements the string dictionaries of an archive. A
// dictionary maps each distinct string to a dense uint32 id assigned in
// insertion order.
//
// On disk a dictionary is a format header followed by one zstd frame:
//
//	count (u32)
//	entries: [len:u32][bytes] repeated count times
//
// All integers are little endian.
package dict

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"

	"columnlog/internal/format"
	"columnlog/internal/querylang"
)

const version = 1

var (
	ErrIDNotFound = errors.New("dictionary id not found")
	ErrCorrupt    = errors.New("corrupt dictionary")
)

var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// Writer builds a dictionary during ingestion.
type Writer struct {
	typ     byte
	entries []string
	lookup  map[string]uint32
	size    int
}

// NewWriter returns an empty dictionary written with header type typ.
func NewWriter(typ byte) *Writer {
	return &Writer{typ: typ, lookup: make(map[string]uint32)}
}

// Add returns the id of s, assigning the next id on first sight.
func (w *Writer) Add(s string) uint32 {
	if id, ok := w.lookup[s]; ok {
		return id
	}
	id := uint32(len(w.entries))
	w.entries = append(w.entries, s)
	w.lookup[s] = id
	w.size += 4 + len(s)
	return id
}

// Len returns the number of entries.
func (w *Writer) Len() int { return len(w.entries) }

// Size returns the uncompressed size of the entries in bytes.
func (w *Writer) Size() int { return w.size }

// Encode writes the dictionary to out, compressed at level.
func (w *Writer) Encode(out io.Writer, level zstd.EncoderLevel) error {
	hdr := format.Header{Type: w.typ, Version: version, Flags: format.FlagCompressed}
	if _, err := hdr.WriteTo(out); err != nil {
		return err
	}

	raw := make([]byte, 4, 4+w.size)
	binary.LittleEndian.PutUint32(raw, uint32(len(w.entries)))
	for _, s := range w.entries {
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(s)))
		raw = append(raw, s...)
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(level))
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// WriteFile writes the dictionary to path.
func (w *Writer) WriteFile(path string, level zstd.EncoderLevel) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := w.Encode(f, level); err != nil {
		_ = f.Close()
		return fmt.Errorf("write dictionary %s: %w", path, err)
	}
	return f.Close()
}

// Dict is a loaded dictionary. It is immutable and safe for concurrent use.
type Dict struct {
	entries []string
	lookup  map[string]uint32
}

// Read loads the dictionary at path, which must have header type typ.
func Read(path string, typ byte) (*Dict, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	d, err := Decode(data, typ)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	return d, nil
}

// Decode parses an encoded dictionary.
func Decode(data []byte, typ byte) (*Dict, error) {
	if _, err := format.DecodeAndValidate(data, typ, version); err != nil {
		return nil, err
	}
	raw, err := zstdDec.DecodeAll(data[format.HeaderSize:], nil)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, ErrCorrupt
	}
	count := binary.LittleEndian.Uint32(raw)
	r := bytes.NewReader(raw[4:])
	if uint64(count)*4 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrCorrupt, count, r.Len())
	}

	d := &Dict{
		entries: make([]string, 0, count),
		lookup:  make(map[string]uint32, count),
	}
	var lenBuf [4]byte
	for i := range count {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d", ErrCorrupt, i)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if uint64(n) > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: entry %d overruns data", ErrCorrupt, i)
		}
		b := make([]byte, n)
		_, _ = io.ReadFull(r, b)
		s := string(b)
		d.entries = append(d.entries, s)
		d.lookup[s] = i
	}
	return d, nil
}

// Lookup returns the string with the given id.
func (d *Dict) Lookup(id uint32) (string, error) {
	if int(id) >= len(d.entries) {
		return "", fmt.Errorf("%w: %d", ErrIDNotFound, id)
	}
	return d.entries[id], nil
}

// ID returns the id of s.
func (d *Dict) ID(s string) (uint32, bool) {
	id, ok := d.lookup[s]
	return id, ok
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.entries) }

// Search returns the ids of the entries matching a wildcard pattern. A
// pattern without wildcards is looked up exactly after unescaping.
func (d *Dict) Search(pattern string) *roaring.Bitmap {
	bm := roaring.New()
	if !querylang.HasWildcard(pattern) {
		if id, ok := d.lookup[querylang.UnescapeWildcards(pattern)]; ok {
			bm.Add(id)
		}
		return bm
	}
	for i, s := range d.entries {
		if querylang.WildcardMatch(s, pattern) {
			bm.Add(uint32(i))
		}
	}
	return bm
}
