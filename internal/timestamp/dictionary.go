package timestamp

import (
	"slices"
	"sort"
)

// Dictionary is the timestamp range index of an archive: one Entry per
// timestamp column for each schema, and the merged Entry per column across
// all schemas.
type Dictionary struct {
	Columns []*Entry           `msgpack:"columns"`
	Schemas map[int32][]*Entry `msgpack:"schemas"`
}

// NewDictionary returns an empty index.
func NewDictionary() *Dictionary {
	return &Dictionary{Schemas: make(map[int32][]*Entry)}
}

func find(entries []*Entry, path []string) *Entry {
	for _, e := range entries {
		if slices.Equal(e.Path, path) {
			return e
		}
	}
	return nil
}

// schemaEntry returns the entry for path within schema, creating it.
func (d *Dictionary) schemaEntry(schema int32, path []string) *Entry {
	if e := find(d.Schemas[schema], path); e != nil {
		return e
	}
	e := NewEntry(slices.Clone(path))
	d.Schemas[schema] = append(d.Schemas[schema], e)
	return e
}

// Ingest records an integer timestamp for the column at path in schema.
func (d *Dictionary) Ingest(schema int32, path []string, v int64) {
	d.schemaEntry(schema, path).Ingest(v)
}

// IngestFloat records a floating point timestamp.
func (d *Dictionary) IngestFloat(schema int32, path []string, v float64) {
	d.schemaEntry(schema, path).IngestFloat(v)
}

// MarkUntracked records that the column held a value that is not a timestamp.
func (d *Dictionary) MarkUntracked(schema int32, path []string) {
	d.schemaEntry(schema, path).MarkUntracked()
}

// Finalize rebuilds the per-column entries from the per-schema entries.
// It must be called before the dictionary is written.
func (d *Dictionary) Finalize() {
	d.Columns = nil
	ids := make([]int32, 0, len(d.Schemas))
	for id := range d.Schemas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, e := range d.Schemas[id] {
			col := find(d.Columns, e.Path)
			if col == nil {
				col = NewEntry(slices.Clone(e.Path))
				d.Columns = append(d.Columns, col)
			}
			col.MergeRange(e)
		}
	}
}

// Range returns the archive-wide entry for the column at path, or nil.
func (d *Dictionary) Range(path []string) *Entry {
	return find(d.Columns, path)
}

// ForSchema returns a view restricted to one schema.
func (d *Dictionary) ForSchema(schema int32) SchemaRanges {
	return SchemaRanges{entries: d.Schemas[schema]}
}

// SchemaRanges is the index of a single schema.
type SchemaRanges struct {
	entries []*Entry
}

// Range returns the entry for the column at path within the schema, or nil.
func (s SchemaRanges) Range(path []string) *Entry {
	return find(s.entries, path)
}
