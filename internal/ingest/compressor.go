// Package ingest compresses newline-delimited JSON files into archives.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/buger/jsonparser"

	"columnlog/internal/archive"
	"columnlog/internal/column"
	"columnlog/internal/logging"
	"columnlog/internal/querylang"
	"columnlog/internal/schema"
	"columnlog/internal/timestamp"
)

var (
	ErrInvalidRecord = errors.New("invalid JSON record")
	ErrNoInput       = errors.New("no input files")
)

// DefaultTargetEncodedSize is the encoded size at which an archive is
// closed and the next one started.
const DefaultTargetEncodedSize = 512 << 20

// Options configure a Compressor.
type Options struct {
	// ArchivesDir receives one directory per archive.
	ArchivesDir string
	// TimestampKey is the dotted path of the field indexed for time range
	// pruning. Empty disables the index.
	TimestampKey string
	// CompressionLevel is the zstd level of archive files.
	CompressionLevel int
	// TargetEncodedSize closes an archive once its encoded size reaches it.
	TargetEncodedSize int64
}

// Compressor ingests JSON records into archives. It is not safe for
// concurrent use.
type Compressor struct {
	opts     Options
	tsPath   []string
	patterns *timestamp.Patterns
	logger   *slog.Logger

	w        *archive.Writer
	archives []*archive.Metadata
}

// NewCompressor returns a compressor writing under opts.ArchivesDir.
// If logger is nil, logging is disabled.
func NewCompressor(opts Options, logger *slog.Logger) *Compressor {
	if opts.TargetEncodedSize <= 0 {
		opts.TargetEncodedSize = DefaultTargetEncodedSize
	}
	c := &Compressor{
		opts:     opts,
		patterns: timestamp.NewPatterns(),
		logger:   logging.Default(logger).With("component", "compressor"),
	}
	if opts.TimestampKey != "" {
		for _, t := range querylang.Tokenize(opts.TimestampKey) {
			c.tsPath = append(c.tsPath, t.Name)
		}
	}
	return c
}

// ExpandPaths resolves doublestar glob patterns into file paths. A pattern
// that names an existing directory expands to every file below it.
func ExpandPaths(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", p, err)
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if matches, err = doublestar.FilepathGlob(filepath.Join(p, "**"), doublestar.WithFilesOnly()); err != nil {
				return nil, fmt.Errorf("expand %q: %w", p, err)
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %q matched nothing", ErrNoInput, p)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// Compress ingests every file matched by patterns and returns the metadata
// of the archives written.
func (c *Compressor) Compress(ctx context.Context, patterns []string) ([]*archive.Metadata, error) {
	paths, err := ExpandPaths(patterns)
	if err != nil {
		return nil, err
	}
	c.archives = nil
	for _, p := range paths {
		if err := c.compressFile(ctx, p); err != nil {
			if c.w != nil {
				_ = c.w.Abort()
				c.w = nil
			}
			return c.archives, err
		}
	}
	if err := c.closeArchive(); err != nil {
		return c.archives, err
	}
	return c.archives, nil
}

func (c *Compressor) compressFile(ctx context.Context, path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	c.logger.Info("compressing file", "path", path)

	r := bufio.NewReaderSize(f, 1<<20)
	for line := 1; ; line++ {
		data, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("%s: %w", path, readErr)
		}
		if data = bytes.TrimSpace(data); len(data) > 0 {
			if line%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := c.ingest(data); err != nil {
				return fmt.Errorf("%s:%d: %w", path, line, err)
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

// ingest adds one record to the current archive, rotating it once it
// reaches the target size.
func (c *Compressor) ingest(data []byte) error {
	if c.w == nil {
		w, err := archive.Create(c.opts.ArchivesDir, archive.Options{CompressionLevel: c.opts.CompressionLevel}, c.logger)
		if err != nil {
			return err
		}
		c.w = w
	}

	p := parser{tree: c.w.Tree(), tsPath: c.tsPath, patterns: c.patterns}
	if err := p.parse(data); err != nil {
		return err
	}
	sid, err := c.w.Append(p.fields)
	if err != nil {
		return err
	}
	ts := c.w.Timestamps()
	for _, o := range p.stamps {
		switch {
		case o.untracked:
			ts.MarkUntracked(sid, c.tsPath)
		case o.float:
			ts.IngestFloat(sid, c.tsPath, o.f)
		default:
			ts.Ingest(sid, c.tsPath, o.i)
		}
	}

	if c.w.EncodedSize() >= c.opts.TargetEncodedSize {
		return c.closeArchive()
	}
	return nil
}

func (c *Compressor) closeArchive() error {
	if c.w == nil {
		return nil
	}
	w := c.w
	c.w = nil
	if w.Records() == 0 {
		return w.Abort()
	}
	meta, err := w.Close()
	if err != nil {
		return err
	}
	c.archives = append(c.archives, meta)
	return nil
}

// stamp is one observation of the timestamp key.
type stamp struct {
	untracked bool
	float     bool
	i         int64
	f         float64
}

// parser flattens one JSON object into schema tree fields.
type parser struct {
	tree     *schema.Tree
	tsPath   []string
	patterns *timestamp.Patterns

	path   []string
	fields []archive.Field
	stamps []stamp
}

func (p *parser) parse(data []byte) error {
	if data[0] != '{' {
		return fmt.Errorf("%w: not an object", ErrInvalidRecord)
	}
	if err := p.object(data, schema.RootID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

func (p *parser) isTimestamp() bool {
	if len(p.tsPath) == 0 || len(p.path) != len(p.tsPath) {
		return false
	}
	for i := range p.path {
		if p.path[i] != p.tsPath[i] {
			return false
		}
	}
	return true
}

func (p *parser) add(parent int32, key string, typ schema.NodeType, v column.Value) {
	id := p.tree.Add(parent, key, typ)
	p.fields = append(p.fields, archive.Field{Node: id, Value: v})
}

// object walks the members of an object placed under parent.
func (p *parser) object(data []byte, parent int32) error {
	return jsonparser.ObjectEach(data, func(rawKey, value []byte, typ jsonparser.ValueType, _ int) error {
		key, err := jsonparser.ParseString(rawKey)
		if err != nil {
			return err
		}
		p.path = append(p.path, key)
		defer func() { p.path = p.path[:len(p.path)-1] }()
		return p.value(parent, key, value, typ)
	})
}

func (p *parser) value(parent int32, key string, value []byte, typ jsonparser.ValueType) error {
	isTS := p.isTimestamp()
	switch typ {
	case jsonparser.Object:
		id := p.tree.Add(parent, key, schema.Object)
		before := len(p.fields)
		if err := p.object(value, id); err != nil {
			return err
		}
		if len(p.fields) == before {
			// Empty objects are part of the record's shape.
			p.fields = append(p.fields, archive.Field{Node: id})
		}
		if isTS {
			p.stamps = append(p.stamps, stamp{untracked: true})
		}

	case jsonparser.Array:
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return err
		}
		p.add(parent, key, schema.Array, column.Value{Kind: column.KindRaw, Str: buf.String()})
		if isTS {
			p.stamps = append(p.stamps, stamp{untracked: true})
		}

	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return err
		}
		if isTS {
			if ms, ok := p.patterns.EpochMillis(s); ok {
				p.add(parent, key, schema.DateString, column.Value{Kind: column.KindString, Int: ms, Str: s})
				p.stamps = append(p.stamps, stamp{i: ms})
				return nil
			}
			p.stamps = append(p.stamps, stamp{untracked: true})
		}
		nt := schema.VarString
		if strings.Contains(s, " ") {
			nt = schema.ClpString
		}
		p.add(parent, key, nt, column.Value{Kind: column.KindString, Str: s})

	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			p.add(parent, key, schema.Integer, column.Value{Kind: column.KindInt, Int: i})
			if isTS {
				p.stamps = append(p.stamps, stamp{i: i})
			}
			return nil
		}
		f, err := jsonparser.ParseFloat(value)
		if err != nil {
			return err
		}
		if isTS {
			p.add(parent, key, schema.FloatDateString, column.Value{Kind: column.KindFloat, Float: f})
			p.stamps = append(p.stamps, stamp{float: true, f: f})
			return nil
		}
		p.add(parent, key, schema.Float, column.Value{Kind: column.KindFloat, Float: f})

	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		if err != nil {
			return err
		}
		p.add(parent, key, schema.Boolean, column.Value{Kind: column.KindBool, Bool: b})
		if isTS {
			p.stamps = append(p.stamps, stamp{untracked: true})
		}

	case jsonparser.Null:
		p.add(parent, key, schema.Null, column.Value{})
		if isTS {
			p.stamps = append(p.stamps, stamp{untracked: true})
		}

	default:
		return fmt.Errorf("unsupported value at %s", strings.Join(p.path, "."))
	}
	return nil
}
