package schema

import (
	"errors"
	"slices"
	"testing"
)

func TestTreeAdd(t *testing.T) {
	tr := NewTree()
	a := tr.Add(RootID, "a", Object)
	b := tr.Add(a, "b", Integer)
	b2 := tr.Add(a, "b", Float)
	c := tr.Add(RootID, "c", VarString)

	if again := tr.Add(a, "b", Integer); again != b {
		t.Errorf("Add returned %d for existing node %d", again, b)
	}
	if b == b2 {
		t.Error("same key with different type must be a different node")
	}
	if tr.Len() != 4 {
		t.Errorf("Len = %d, want 4", tr.Len())
	}
	if !slices.Equal(tr.Children(RootID), []int32{a, c}) {
		t.Errorf("Children(RootID) = %v", tr.Children(RootID))
	}
	if !slices.Equal(tr.Children(a), []int32{b, b2}) {
		t.Errorf("Children(a) = %v", tr.Children(a))
	}
	if !slices.Equal(tr.Path(b), []string{"a", "b"}) {
		t.Errorf("Path(b) = %v", tr.Path(b))
	}
	if tr.Node(b).ParentID != a || tr.Node(a).ParentID != RootID {
		t.Error("wrong parent ids")
	}
	if tr.Node(99) != nil || tr.Node(-1) != nil {
		t.Error("Node out of range should be nil")
	}
}

func TestTreeFromNodes(t *testing.T) {
	tr := NewTree()
	a := tr.Add(RootID, "a", Object)
	tr.Add(a, "x", Boolean)
	tr.Add(RootID, "n", Null)

	var nodes []*Node
	for _, n := range tr.Nodes() {
		nodes = append(nodes, &Node{ID: n.ID, ParentID: n.ParentID, Type: n.Type, Key: n.Key})
	}
	rebuilt, err := TreeFromNodes(nodes)
	if err != nil {
		t.Fatalf("TreeFromNodes: %v", err)
	}
	if rebuilt.Len() != 3 || !slices.Equal(rebuilt.Children(a), []int32{1}) {
		t.Errorf("rebuilt tree differs: len=%d children=%v", rebuilt.Len(), rebuilt.Children(a))
	}

	bad := []*Node{{ID: 0, ParentID: 5, Type: Integer, Key: "a"}}
	if _, err := TreeFromNodes(bad); !errors.Is(err, ErrCorruptTree) {
		t.Errorf("err = %v, want ErrCorruptTree", err)
	}
}

func TestNodeTypeHasData(t *testing.T) {
	for _, typ := range []NodeType{Object, Null} {
		if typ.HasData() {
			t.Errorf("%s should not have data", typ)
		}
	}
	for _, typ := range []NodeType{Array, Integer, Float, Boolean, ClpString, VarString, DateString, FloatDateString} {
		if !typ.HasData() {
			t.Errorf("%s should have data", typ)
		}
	}
}

func TestMap(t *testing.T) {
	m := NewMap()
	s0 := m.Add([]int32{3, 1, 2})
	s1 := m.Add([]int32{1})
	if again := m.Add([]int32{2, 3, 1, 1}); again != s0 {
		t.Errorf("Add of same set = %d, want %d", again, s0)
	}
	if s0 != 0 || s1 != 1 || m.Len() != 2 {
		t.Errorf("ids = %d, %d; len %d", s0, s1, m.Len())
	}
	if !slices.Equal(m.Get(s0), []int32{1, 2, 3}) {
		t.Errorf("Get = %v", m.Get(s0))
	}
	if m.Get(7) != nil {
		t.Error("Get out of range should be nil")
	}

	rebuilt := MapFromSchemas(m.All())
	if rebuilt.Len() != 2 || !slices.Equal(rebuilt.Get(1), []int32{1}) {
		t.Error("MapFromSchemas mismatch")
	}
}
