// Package schema describes the structure of the records in an archive.
//
// A Tree holds one node per distinct (parent, key, type) triple ever seen
// during ingestion. A schema is the set of leaf node ids a record populates;
// records that share a schema are stored together in one table.
package schema

import (
	"fmt"
	"slices"
)

// NodeType is the type of a schema tree node.
type NodeType uint8

const (
	Object NodeType = iota
	Array
	Integer
	Float
	Boolean
	ClpString
	VarString
	DateString
	FloatDateString
	Null
)

func (t NodeType) String() string {
	switch t {
	case Object:
		return "object"
	case Array:
		return "array"
	case Integer:
		return "int"
	case Float:
		return "float"
	case Boolean:
		return "bool"
	case ClpString:
		return "clpstring"
	case VarString:
		return "varstring"
	case DateString:
		return "datestring"
	case FloatDateString:
		return "floatdate"
	case Null:
		return "null"
	default:
		return fmt.Sprintf("nodetype(%d)", t)
	}
}

// HasData reports whether nodes of this type store a value per record.
// Objects and nulls are fully described by the schema itself.
func (t NodeType) HasData() bool {
	return t != Object && t != Null
}

// RootID is the parent id of top-level nodes.
const RootID int32 = -1

// Node is one field path in the tree.
type Node struct {
	ID       int32    `msgpack:"id"`
	ParentID int32    `msgpack:"parent"`
	Type     NodeType `msgpack:"type"`
	Key      string   `msgpack:"key"`
	Children []int32  `msgpack:"-"`
}

type nodeKey struct {
	parent int32
	key    string
	typ    NodeType
}

// Tree is a forest of typed field paths. Top-level nodes have parent
// RootID. Ids are assigned in insertion order and never reused.
//
// A Tree is not safe for concurrent mutation; once loaded from an archive
// it is read-only and may be shared.
type Tree struct {
	nodes []*Node
	roots []int32
	index map[nodeKey]int32
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{index: make(map[nodeKey]int32)}
}

// Add returns the id of the node (parent, key, typ), creating it if needed.
func (t *Tree) Add(parent int32, key string, typ NodeType) int32 {
	k := nodeKey{parent: parent, key: key, typ: typ}
	if id, ok := t.index[k]; ok {
		return id
	}
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, &Node{ID: id, ParentID: parent, Type: typ, Key: key})
	t.index[k] = id
	if parent == RootID {
		t.roots = append(t.roots, id)
	} else {
		p := t.nodes[parent]
		p.Children = append(p.Children, id)
	}
	return id
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id int32) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Children returns the child ids of a node, or the roots for RootID.
func (t *Tree) Children(id int32) []int32 {
	if id == RootID {
		return t.roots
	}
	return t.nodes[id].Children
}

// Path returns the keys from the top level down to id.
func (t *Tree) Path(id int32) []string {
	var path []string
	for id != RootID {
		n := t.nodes[id]
		path = append(path, n.Key)
		id = n.ParentID
	}
	slices.Reverse(path)
	return path
}

// Nodes returns the nodes in id order.
func (t *Tree) Nodes() []*Node { return t.nodes }

// TreeFromNodes rebuilds a tree from nodes in id order, as written by an
// archive.
func TreeFromNodes(nodes []*Node) (*Tree, error) {
	t := NewTree()
	for i, n := range nodes {
		if n.ID != int32(i) {
			return nil, fmt.Errorf("%w: node %d has id %d", ErrCorruptTree, i, n.ID)
		}
		if n.ParentID != RootID && (n.ParentID < 0 || n.ParentID >= n.ID) {
			return nil, fmt.Errorf("%w: node %d has parent %d", ErrCorruptTree, n.ID, n.ParentID)
		}
		if id := t.Add(n.ParentID, n.Key, n.Type); id != n.ID {
			return nil, fmt.Errorf("%w: duplicate node %d", ErrCorruptTree, n.ID)
		}
	}
	return t, nil
}
