package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"columnlog/internal/format"
)

// zstdDec is shared by every reader; it is safe for concurrent use.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// writeMsgpack writes v to path as header + msgpack, compressed when enc
// is non-nil.
func writeMsgpack(path string, typ byte, v any, enc *zstd.Encoder) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	hdr := format.Header{Type: typ, Version: formatVersion}
	if enc != nil {
		hdr.Flags |= format.FlagCompressed
		body = enc.EncodeAll(body, nil)
	}

	var buf bytes.Buffer
	buf.Grow(format.HeaderSize + len(body))
	_, _ = hdr.WriteTo(&buf)
	buf.Write(body)
	return os.WriteFile(filepath.Clean(path), buf.Bytes(), 0o640)
}

// readMsgpack reads a file written by writeMsgpack into v.
func readMsgpack(path string, typ byte, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	hdr, err := format.DecodeAndValidate(data, typ, formatVersion)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	body := data[format.HeaderSize:]
	if hdr.Flags&format.FlagCompressed != 0 {
		if body, err = zstdDec.DecodeAll(body, nil); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: %w: %w", path, ErrCorrupt, err)
	}
	return nil
}
