// Package format provides the header shared by every archive file.
package format

import (
	"errors"
	"fmt"
	"io"
)

// Header layout (4 bytes):
//
//	signature (1 byte, 'c' = 0x63)
//	type (1 byte, identifies the file)
//	version (1 byte)
//	flags (1 byte)
const (
	Signature  = 'c'
	HeaderSize = 4

	TypeMetadata   = 'M' // metadata.msgpack
	TypeSchemaTree = 'T'
	TypeSchemas    = 'S'
	TypeTimestamps = 't'
	TypeVarDict    = 'v'
	TypeLogDict    = 'l'
	TypeArrayDict  = 'a'
	TypeTables     = 'd'

	// FlagCompressed marks a body compressed with zstd.
	FlagCompressed = 0x01
)

var (
	ErrHeaderTooSmall    = errors.New("header too small")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrVersionMismatch   = errors.New("version mismatch")
)

// Header is the common 4-byte header.
type Header struct {
	Type    byte
	Version byte
	Flags   byte
}

// Encode writes the header to a 4-byte array.
func (h Header) Encode() [HeaderSize]byte {
	return [HeaderSize]byte{Signature, h.Type, h.Version, h.Flags}
}

// WriteTo writes the header to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	b := h.Encode()
	n, err := w.Write(b[:])
	return int64(n), err
}

// Decode reads a header from buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if buf[0] != Signature {
		return Header{}, ErrSignatureMismatch
	}
	return Header{
		Type:    buf[1],
		Version: buf[2],
		Flags:   buf[3],
	}, nil
}

// DecodeAndValidate reads a header and checks its type and version.
func DecodeAndValidate(buf []byte, expectedType, expectedVersion byte) (Header, error) {
	h, err := Decode(buf)
	if err != nil {
		return Header{}, err
	}
	if h.Type != expectedType {
		return Header{}, fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, h.Type, expectedType)
	}
	if h.Version != expectedVersion {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, expectedVersion)
	}
	return h, nil
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader, expectedType, expectedVersion byte) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, ErrHeaderTooSmall
		}
		return Header{}, err
	}
	return DecodeAndValidate(buf[:], expectedType, expectedVersion)
}
