package archive

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"columnlog/internal/column"
	"columnlog/internal/dict"
	"columnlog/internal/format"
	"columnlog/internal/logging"
	"columnlog/internal/schema"
	"columnlog/internal/timestamp"
)

const formatVersion = 1

// seekableFrameSize is the uncompressed size of one seekable zstd frame.
// Reading a table decompresses only the frames it overlaps.
const seekableFrameSize = 256 << 10

var (
	ErrClosed        = errors.New("archive writer closed")
	ErrCorrupt       = errors.New("corrupt archive")
	ErrUnknownSchema = errors.New("schema not in archive")
)

// Metadata describes a complete archive. It is written last, so an archive
// directory without it is incomplete.
type Metadata struct {
	Version          int         `msgpack:"version"`
	ID               string      `msgpack:"id"`
	Created          time.Time   `msgpack:"created"`
	Records          int         `msgpack:"records"`
	UncompressedSize int64       `msgpack:"uncompressed_size"`
	Tables           []TableInfo `msgpack:"tables"`
}

// TableInfo locates the table of one schema in the uncompressed tables
// stream.
type TableInfo struct {
	SchemaID int32 `msgpack:"schema"`
	Offset   int64 `msgpack:"offset"`
	Size     int64 `msgpack:"size"`
	Records  int   `msgpack:"records"`
}

// Options configure an archive writer.
type Options struct {
	// CompressionLevel is a zstd level, 1 (fastest) to 22.
	CompressionLevel int
}

// Field is one value of a record, placed at a schema tree node. Object and
// Null nodes carry a zero Value.
type Field struct {
	Node  int32
	Value column.Value
}

type table struct {
	columns []column.Writer
	records int
}

// Writer builds one archive. Callers add nodes to Tree, append records and
// update Timestamps, then Close. A Writer is not safe for concurrent use.
type Writer struct {
	dir    Dir
	opts   Options
	logger *slog.Logger

	tree       *schema.Tree
	schemas    *schema.Map
	timestamps *timestamp.Dictionary
	dicts      column.WriterDicts
	tables     map[int32]*table
	records    int
	closed     bool
}

// Create starts a new archive under archivesDir.
// If logger is nil, logging is disabled.
func Create(archivesDir string, opts Options, logger *slog.Logger) (*Writer, error) {
	dir, err := createDir(archivesDir)
	if err != nil {
		return nil, err
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = 3
	}
	logger = logging.Default(logger).With("component", "archive-writer", "archive", dir.ID())
	logger.Debug("archive created")
	return &Writer{
		dir:        dir,
		opts:       opts,
		logger:     logger,
		tree:       schema.NewTree(),
		schemas:    schema.NewMap(),
		timestamps: timestamp.NewDictionary(),
		dicts: column.WriterDicts{
			Var:   dict.NewWriter(format.TypeVarDict),
			Log:   dict.NewWriter(format.TypeLogDict),
			Array: dict.NewWriter(format.TypeArrayDict),
		},
		tables: make(map[int32]*table),
	}, nil
}

// Dir returns the archive directory.
func (w *Writer) Dir() Dir { return w.dir }

// Tree returns the schema tree records are placed in.
func (w *Writer) Tree() *schema.Tree { return w.tree }

// Timestamps returns the timestamp index of the archive.
func (w *Writer) Timestamps() *timestamp.Dictionary { return w.timestamps }

// Records returns the number of records appended.
func (w *Writer) Records() int { return w.records }

// Append adds a record and returns its schema id. Fields may come in any
// order; a node listed twice keeps its first value.
func (w *Writer) Append(fields []Field) (int32, error) {
	if w.closed {
		return 0, ErrClosed
	}
	fields = slices.Clone(fields)
	slices.SortStableFunc(fields, func(a, b Field) int { return cmp.Compare(a.Node, b.Node) })
	fields = w.dropDuplicates(fields)

	ids := make([]int32, len(fields))
	for i, f := range fields {
		n := w.tree.Node(f.Node)
		if n == nil {
			return 0, fmt.Errorf("append: unknown node %d", f.Node)
		}
		if n.Type.HasData() {
			if err := column.CheckKind(n.Type, f.Value.Kind); err != nil {
				return 0, fmt.Errorf("append node %d: %w", f.Node, err)
			}
		}
		ids[i] = f.Node
	}
	sid := w.schemas.Add(ids)

	t, ok := w.tables[sid]
	if !ok {
		t = &table{}
		for _, id := range ids {
			n := w.tree.Node(id)
			if !n.Type.HasData() {
				continue
			}
			c, err := column.NewWriter(n.Type, w.dicts)
			if err != nil {
				return 0, err
			}
			t.columns = append(t.columns, c)
		}
		w.tables[sid] = t
	}

	col := 0
	for _, f := range fields {
		if !w.tree.Node(f.Node).Type.HasData() {
			continue
		}
		if err := t.columns[col].Add(f.Value); err != nil {
			return 0, fmt.Errorf("append node %d: %w", f.Node, err)
		}
		col++
	}
	t.records++
	w.records++
	return sid, nil
}

// dropDuplicates keeps the last of several fields for the same node, so a
// repeated key holds its final value. fields must be sorted stably by node.
func (w *Writer) dropDuplicates(fields []Field) []Field {
	out := fields[:0]
	for i, f := range fields {
		if i+1 < len(fields) && fields[i+1].Node == f.Node {
			w.logger.Debug("duplicate key dropped", "node", f.Node)
			continue
		}
		out = append(out, f)
	}
	return out
}

// EncodedSize estimates the size of the archive before compression.
func (w *Writer) EncodedSize() int64 {
	n := int64(w.dicts.Var.Size() + w.dicts.Log.Size() + w.dicts.Array.Size())
	for _, t := range w.tables {
		for _, c := range t.columns {
			n += int64(c.Size())
		}
	}
	return n
}

// Close writes the archive files and returns the metadata. The metadata
// file is written after all others.
func (w *Writer) Close() (*Metadata, error) {
	if w.closed {
		return nil, ErrClosed
	}
	w.closed = true

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(w.opts.CompressionLevel)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = enc.Close() }()

	meta := &Metadata{
		Version: formatVersion,
		ID:      w.dir.ID(),
		Created: time.Now().UTC(),
		Records: w.records,
	}
	if meta.Tables, meta.UncompressedSize, err = w.writeTables(enc); err != nil {
		return nil, fmt.Errorf("write tables: %w", err)
	}

	w.timestamps.Finalize()
	level := zstd.EncoderLevelFromZstd(w.opts.CompressionLevel)
	var g errgroup.Group
	g.Go(func() error {
		return writeMsgpack(w.dir.path(schemaTreeFile), format.TypeSchemaTree, w.tree.Nodes(), enc)
	})
	g.Go(func() error {
		return writeMsgpack(w.dir.path(schemasFile), format.TypeSchemas, w.schemas.All(), enc)
	})
	g.Go(func() error {
		return writeMsgpack(w.dir.path(timestampsFile), format.TypeTimestamps, w.timestamps, enc)
	})
	g.Go(func() error { return w.dicts.Var.WriteFile(w.dir.path(varDictFile), level) })
	g.Go(func() error { return w.dicts.Log.WriteFile(w.dir.path(logDictFile), level) })
	g.Go(func() error { return w.dicts.Array.WriteFile(w.dir.path(arrayDictFile), level) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeMsgpack(w.dir.MetadataPath(), format.TypeMetadata, meta, nil); err != nil {
		return nil, err
	}
	w.logger.Info("archive closed", "records", meta.Records, "schemas", len(meta.Tables),
		"uncompressed_bytes", meta.UncompressedSize)
	return meta, nil
}

// writeTables writes every table, in schema id order, as one seekable zstd
// stream and returns the table index.
func (w *Writer) writeTables(enc *zstd.Encoder) ([]TableInfo, int64, error) {
	f, err := os.Create(filepath.Clean(w.dir.TablesPath()))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	hdr := format.Header{Type: format.TypeTables, Version: formatVersion, Flags: format.FlagCompressed}
	if _, err := hdr.WriteTo(f); err != nil {
		return nil, 0, err
	}
	sw, err := seekable.NewWriter(f, enc)
	if err != nil {
		return nil, 0, err
	}
	fw := &frameWriter{w: sw, buf: make([]byte, 0, seekableFrameSize)}

	ids := make([]int32, 0, len(w.tables))
	for sid := range w.tables {
		ids = append(ids, sid)
	}
	slices.Sort(ids)

	var infos []TableInfo
	var offset int64
	for _, sid := range ids {
		t := w.tables[sid]
		info := TableInfo{SchemaID: sid, Offset: offset, Records: t.records}
		for _, c := range t.columns {
			n, err := c.WriteTo(fw)
			if err != nil {
				return nil, 0, err
			}
			info.Size += n
		}
		offset += info.Size
		infos = append(infos, info)
	}
	if err := fw.Flush(); err != nil {
		return nil, 0, err
	}
	if err := sw.Close(); err != nil {
		return nil, 0, err
	}
	return infos, offset, f.Close()
}

// frameWriter cuts its input into seekableFrameSize frames; every Write on
// a seekable writer becomes its own frame.
type frameWriter struct {
	w   io.Writer
	buf []byte
}

func (fw *frameWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		k := min(len(p), cap(fw.buf)-len(fw.buf))
		fw.buf = append(fw.buf, p[:k]...)
		p = p[k:]
		if len(fw.buf) == cap(fw.buf) {
			if err := fw.Flush(); err != nil {
				return 0, err
			}
		}
	}
	return n, nil
}

// Flush writes any buffered bytes as a frame.
func (fw *frameWriter) Flush() error {
	if len(fw.buf) == 0 {
		return nil
	}
	_, err := fw.w.Write(fw.buf)
	fw.buf = fw.buf[:0]
	return err
}

// Abort discards the archive directory.
func (w *Writer) Abort() error {
	w.closed = true
	w.logger.Debug("archive aborted")
	return os.RemoveAll(w.dir.Root())
}
