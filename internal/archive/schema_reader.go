package archive

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"columnlog/internal/column"
	"columnlog/internal/schema"
)

// SchemaReader holds the decoded columns of one schema's table and turns
// them back into JSON records.
//
// The reader keeps a local tree made of the schema's nodes and their
// ancestors, and compiles it once into a template of JSON tokens and column
// slots. Local ids follow global id order, so records list keys in the order
// they were first seen during ingestion.
type SchemaReader struct {
	global *schema.Tree
	local  *schema.Tree

	globalToLocal map[int32]int32
	localToGlobal []int32

	columns  []column.Reader
	byGlobal map[int32]column.Reader
	byLocal  []column.Reader

	template []templateOp

	records int
	cur     int
}

type opKind uint8

const (
	opObjectStart opKind = iota
	opObjectEnd
	opMore
	opField
	opNull
	opValue
)

// templateOp is one step of a record's serialisation.
type templateOp struct {
	kind opKind
	key  string
	col  column.Reader
	ptr  string
}

func newSchemaReader(global *schema.Tree, nodes []int32, records int, dicts column.Dicts) (*SchemaReader, error) {
	sr := &SchemaReader{
		global:        global,
		local:         schema.NewTree(),
		globalToLocal: make(map[int32]int32),
		byGlobal:      make(map[int32]column.Reader),
		records:       records,
	}
	for _, id := range nodes {
		if global.Node(id) == nil {
			return nil, ErrCorrupt
		}
		sr.addLocal(id)
	}
	sr.byLocal = make([]column.Reader, sr.local.Len())
	for _, id := range nodes {
		n := global.Node(id)
		if !n.Type.HasData() {
			continue
		}
		c, err := column.NewReader(n.Type, id, dicts)
		if err != nil {
			return nil, err
		}
		sr.columns = append(sr.columns, c)
		sr.byGlobal[id] = c
		sr.byLocal[sr.globalToLocal[id]] = c
	}
	sr.template = sr.compileObject(nil, sr.local.Children(schema.RootID))
	return sr, nil
}

// addLocal adds a global node and its missing ancestors to the local tree.
func (sr *SchemaReader) addLocal(id int32) int32 {
	if local, ok := sr.globalToLocal[id]; ok {
		return local
	}
	n := sr.global.Node(id)
	parent := schema.RootID
	if n.ParentID != schema.RootID {
		parent = sr.addLocal(n.ParentID)
	}
	local := sr.local.Add(parent, n.Key, n.Type)
	sr.globalToLocal[id] = local
	sr.localToGlobal = append(sr.localToGlobal, id)
	return local
}

func (sr *SchemaReader) load(r io.Reader) error {
	for _, c := range sr.columns {
		if err := c.Load(r, sr.records); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of records.
func (sr *SchemaReader) Len() int { return sr.records }

// Columns returns the data columns in node id order.
func (sr *SchemaReader) Columns() []column.Reader { return sr.columns }

// Column returns the column of a global node id, or nil.
func (sr *SchemaReader) Column(id int32) column.Reader { return sr.byGlobal[id] }

// Next advances to the next record and returns its index.
func (sr *SchemaReader) Next() (int, bool) {
	if sr.cur >= sr.records {
		return 0, false
	}
	i := sr.cur
	sr.cur++
	return i, true
}

// pointer returns the JSON pointer (RFC 6901) of a global node id.
func (sr *SchemaReader) pointer(id int32) string {
	var b strings.Builder
	for _, key := range sr.global.Path(id) {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(key))
	}
	return b.String()
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func (sr *SchemaReader) compileObject(ops []templateOp, children []int32) []templateOp {
	ops = append(ops, templateOp{kind: opObjectStart})
	for k, id := range children {
		if k > 0 {
			ops = append(ops, templateOp{kind: opMore})
		}
		n := sr.local.Node(id)
		ops = append(ops, templateOp{kind: opField, key: strings.ToValidUTF8(n.Key, "\uFFFD")})
		switch {
		case n.Type == schema.Object:
			ops = sr.compileObject(ops, sr.local.Children(id))
		case n.Type == schema.Null:
			ops = append(ops, templateOp{kind: opNull})
		default:
			ops = append(ops, templateOp{kind: opValue, col: sr.byLocal[id], ptr: sr.pointer(sr.localToGlobal[id])})
		}
	}
	return append(ops, templateOp{kind: opObjectEnd})
}

var jsonAPI = jsoniter.ConfigFastest

func (sr *SchemaReader) encode(s *jsoniter.Stream, i int) error {
	for _, op := range sr.template {
		switch op.kind {
		case opObjectStart:
			s.WriteObjectStart()
		case opObjectEnd:
			s.WriteObjectEnd()
		case opMore:
			s.WriteMore()
		case opField:
			s.WriteObjectField(op.key)
		case opNull:
			s.WriteNil()
		case opValue:
			if op.col == nil {
				return fmt.Errorf("%w: no column for %s", ErrCorrupt, op.ptr)
			}
			v, err := op.col.ExtractValue(i)
			if err != nil {
				return fmt.Errorf("%s: %w", op.ptr, err)
			}
			v.WriteJSON(s)
		}
	}
	return s.Error
}

// Write writes record i to w as one line of JSON.
func (sr *SchemaReader) Write(w io.Writer, i int) error {
	s := jsonAPI.BorrowStream(w)
	defer jsonAPI.ReturnStream(s)
	if err := sr.encode(s, i); err != nil {
		return err
	}
	s.WriteRaw("\n")
	return s.Flush()
}
