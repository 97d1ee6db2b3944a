// Package archive reads and writes archive directories.
//
// An archives directory holds one sub-directory per archive, named by a
// UUIDv7 so that lexical order is creation order:
//
//	<archives>/
//	  <archive-id>/
//	    metadata      (msgpack: record count, table index; written last)
//	    schema_tree   (zstd msgpack: schema tree nodes)
//	    schemas       (zstd msgpack: node ids per schema)
//	    timestamps    (zstd msgpack: timestamp range index)
//	    var.dict      (variable dictionary)
//	    log.dict      (logtype dictionary)
//	    array.dict    (array logtype dictionary)
//	    tables        (seekable zstd: one column table per schema)
//
// Every file starts with a format.Header.
package archive

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
)

const (
	metadataFile   = "metadata"
	schemaTreeFile = "schema_tree"
	schemasFile    = "schemas"
	timestampsFile = "timestamps"
	varDictFile    = "var.dict"
	logDictFile    = "log.dict"
	arrayDictFile  = "array.dict"
	tablesFile     = "tables"
)

// Dir is the directory of one archive.
type Dir struct {
	root string
}

// NewDir returns the archive directory rooted at root.
func NewDir(root string) Dir {
	return Dir{root: root}
}

// Root returns the archive directory path.
func (d Dir) Root() string { return d.root }

// ID returns the archive id, the base name of the directory.
func (d Dir) ID() string { return filepath.Base(d.root) }

func (d Dir) path(name string) string { return filepath.Join(d.root, name) }

// MetadataPath returns the path of the metadata file.
func (d Dir) MetadataPath() string { return d.path(metadataFile) }

// TablesPath returns the path of the tables file.
func (d Dir) TablesPath() string { return d.path(tablesFile) }

// createDir makes a new archive directory with a fresh UUIDv7 name.
func createDir(archivesDir string) (Dir, error) {
	if err := os.MkdirAll(archivesDir, 0o750); err != nil {
		return Dir{}, fmt.Errorf("create archives directory %s: %w", archivesDir, err)
	}
	root := filepath.Join(archivesDir, uuid.Must(uuid.NewV7()).String())
	if err := os.Mkdir(root, 0o750); err != nil {
		return Dir{}, fmt.Errorf("create archive directory: %w", err)
	}
	return Dir{root: root}, nil
}

// ListArchives returns the complete archives in archivesDir, oldest first.
// Directories without a metadata file, such as an archive still being
// written, are skipped.
func ListArchives(archivesDir string) ([]Dir, error) {
	entries, err := os.ReadDir(archivesDir)
	if err != nil {
		return nil, fmt.Errorf("list archives in %s: %w", archivesDir, err)
	}
	var out []Dir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		d := NewDir(filepath.Join(archivesDir, e.Name()))
		if _, err := os.Stat(d.MetadataPath()); err != nil {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dir) int { return cmp.Compare(a.ID(), b.ID()) })
	return out, nil
}
