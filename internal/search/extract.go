package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"columnlog/internal/archive"
)

// Extract reconstructs every record of every archive into
// <outDir>/<archive-id>.jsonl and returns the files written. Records are
// grouped by schema, in schema id order.
func (e *Engine) Extract(ctx context.Context, outDir string) ([]string, error) {
	dirs, err := archive.ListArchives(e.archivesDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var files []string
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		path := filepath.Join(outDir, dir.ID()+".jsonl")
		n, err := e.extractArchive(ctx, dir, path)
		if err != nil {
			return files, err
		}
		e.logger.Info("archive extracted", "archive", dir.ID(), "records", n, "path", path)
		files = append(files, path)
	}
	return files, nil
}

func (e *Engine) extractArchive(ctx context.Context, dir archive.Dir, path string) (n int, err error) {
	ar, err := archive.Open(dir, e.base)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)

	for _, sid := range ar.SchemaIDs() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		sr, err := ar.SchemaReader(sid)
		if err != nil {
			return n, err
		}
		for i, ok := sr.Next(); ok; i, ok = sr.Next() {
			if err := sr.Write(w, i); err != nil {
				return n, fmt.Errorf("write %s: %w", path, err)
			}
			n++
		}
	}
	if err := w.Flush(); err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}
