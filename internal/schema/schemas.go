package schema

import (
	"encoding/binary"
	"errors"
	"slices"
)

var ErrCorruptTree = errors.New("corrupt schema tree")

// Map assigns stable ids to schemas. A schema is a sorted set of node ids.
type Map struct {
	schemas [][]int32
	index   map[string]int32
}

// NewMap returns an empty schema map.
func NewMap() *Map {
	return &Map{index: make(map[string]int32)}
}

func schemaKey(ids []int32) string {
	b := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(id))
	}
	return string(b)
}

// Add returns the id of the schema made of ids, assigning the next id on
// first sight. ids need not be sorted or unique.
func (m *Map) Add(ids []int32) int32 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	k := schemaKey(sorted)
	if id, ok := m.index[k]; ok {
		return id
	}
	id := int32(len(m.schemas))
	m.schemas = append(m.schemas, sorted)
	m.index[k] = id
	return id
}

// Get returns the node ids of schema id. The slice must not be modified.
func (m *Map) Get(id int32) []int32 {
	if id < 0 || int(id) >= len(m.schemas) {
		return nil
	}
	return m.schemas[id]
}

// Len returns the number of schemas.
func (m *Map) Len() int { return len(m.schemas) }

// All returns the schemas in id order.
func (m *Map) All() [][]int32 { return m.schemas }

// MapFromSchemas rebuilds a map from schemas in id order.
func MapFromSchemas(schemas [][]int32) *Map {
	m := NewMap()
	for _, s := range schemas {
		m.Add(s)
	}
	return m
}
