package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"golang.org/x/sync/errgroup"

	"columnlog/internal/column"
	"columnlog/internal/dict"
	"columnlog/internal/format"
	"columnlog/internal/logging"
	"columnlog/internal/schema"
	"columnlog/internal/timestamp"
)

// Reader is an opened archive. Its metadata, schema tree, timestamp index
// and dictionaries are loaded at open time and are read-only afterwards.
type Reader struct {
	dir    Dir
	logger *slog.Logger

	meta       Metadata
	tree       *schema.Tree
	schemas    *schema.Map
	timestamps *timestamp.Dictionary
	dicts      column.Dicts
	tables     map[int32]TableInfo
}

// Open loads the archive in dir.
// If logger is nil, logging is disabled.
func Open(dir Dir, logger *slog.Logger) (*Reader, error) {
	r := &Reader{
		dir:    dir,
		logger: logging.Default(logger).With("component", "archive-reader", "archive", dir.ID()),
	}
	if err := readMsgpack(dir.MetadataPath(), format.TypeMetadata, &r.meta); err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dir.Root(), err)
	}

	var nodes []*schema.Node
	var schemas [][]int32
	r.timestamps = timestamp.NewDictionary()

	var g errgroup.Group
	g.Go(func() error { return readMsgpack(dir.path(schemaTreeFile), format.TypeSchemaTree, &nodes) })
	g.Go(func() error { return readMsgpack(dir.path(schemasFile), format.TypeSchemas, &schemas) })
	g.Go(func() error { return readMsgpack(dir.path(timestampsFile), format.TypeTimestamps, r.timestamps) })
	g.Go(func() (err error) {
		r.dicts.Var, err = dict.Read(dir.path(varDictFile), format.TypeVarDict)
		return err
	})
	g.Go(func() (err error) {
		r.dicts.Log, err = dict.Read(dir.path(logDictFile), format.TypeLogDict)
		return err
	})
	g.Go(func() (err error) {
		r.dicts.Array, err = dict.Read(dir.path(arrayDictFile), format.TypeArrayDict)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dir.Root(), err)
	}

	tree, err := schema.TreeFromNodes(nodes)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dir.Root(), err)
	}
	r.tree = tree
	r.schemas = schema.MapFromSchemas(schemas)
	if r.schemas.Len() != len(schemas) {
		return nil, fmt.Errorf("open archive %s: %w: duplicate schemas", dir.Root(), ErrCorrupt)
	}

	r.tables = make(map[int32]TableInfo, len(r.meta.Tables))
	for _, t := range r.meta.Tables {
		r.tables[t.SchemaID] = t
	}
	r.logger.Debug("archive opened", "records", r.meta.Records, "schemas", r.schemas.Len(),
		"nodes", r.tree.Len())
	return r, nil
}

// Dir returns the archive directory.
func (r *Reader) Dir() Dir { return r.dir }

// Tree returns the archive-wide schema tree.
func (r *Reader) Tree() *schema.Tree { return r.tree }

// Schemas returns the schema map.
func (r *Reader) Schemas() *schema.Map { return r.schemas }

// Timestamps returns the timestamp range index.
func (r *Reader) Timestamps() *timestamp.Dictionary { return r.timestamps }

// Dicts returns the string dictionaries.
func (r *Reader) Dicts() column.Dicts { return r.dicts }

// SchemaIDs returns the ids of the schemas that have records, ascending.
func (r *Reader) SchemaIDs() []int32 {
	ids := make([]int32, len(r.meta.Tables))
	for i, t := range r.meta.Tables {
		ids[i] = t.SchemaID
	}
	return ids
}

// SchemaReader decodes the table of schema sid. The tables file is opened
// and closed within the call.
func (r *Reader) SchemaReader(sid int32) (*SchemaReader, error) {
	info, ok := r.tables[sid]
	if !ok {
		return nil, fmt.Errorf("archive %s: %w: %d", r.dir.ID(), ErrUnknownSchema, sid)
	}

	sr, err := newSchemaReader(r.tree, r.schemas.Get(sid), info.Records, r.dicts)
	if err != nil {
		return nil, fmt.Errorf("archive %s schema %d: %w", r.dir.ID(), sid, err)
	}

	tr, f, err := openSeekableReader(r.dir.TablesPath())
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", r.dir.ID(), err)
	}
	defer func() {
		_ = tr.Close()
		_ = f.Close()
	}()

	if err := sr.load(io.NewSectionReader(tr, info.Offset, info.Size)); err != nil {
		return nil, fmt.Errorf("archive %s schema %d: %w", r.dir.ID(), sid, err)
	}
	return sr, nil
}

// openSeekableReader opens the tables file and returns a random access
// reader over its decompressed body. Callers close both.
func openSeekableReader(path string) (seekable.Reader, *os.File, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	var hdr [format.HeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		_ = f.Close()
		return nil, nil, format.ErrHeaderTooSmall
	}
	if _, err := format.DecodeAndValidate(hdr[:], format.TypeTables, formatVersion); err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	// The seekable reader must see only the compressed body.
	section := io.NewSectionReader(f, format.HeaderSize, info.Size()-format.HeaderSize)
	r, err := seekable.NewReader(section, zstdDec)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
