package search

import (
	"strconv"

	"github.com/buger/jsonparser"

	ql "columnlog/internal/querylang"
)

// arrayFilter matches one filter against the JSON text of array values.
//
// Arrays are transparent: every element is visited with the same remaining
// tokens, and a numeric token may also select one element by position. An
// object consumes one token, either the literal key or any key for a
// wildcard token. Once the tokens run out the value reached is compared
// with the literal, descending through nested arrays. With anyDepth set,
// objects reached without tokens are searched too, so every leaf of the
// value is a candidate.
type arrayFilter struct {
	op       ql.FilterOp
	lit      ql.Literal
	exists   bool
	anyDepth bool
}

// match reports whether some element of the array text data satisfies the
// filter after following tokens.
func (af arrayFilter) match(data []byte, tokens []ql.Token) bool {
	return af.walk(data, jsonparser.Array, tokens)
}

func (af arrayFilter) walk(v []byte, typ jsonparser.ValueType, tokens []ql.Token) bool {
	if len(tokens) == 0 && af.exists {
		return true
	}
	switch typ {
	case jsonparser.Array:
		index := arrayIndex(tokens)
		found := false
		i := 0
		_, _ = jsonparser.ArrayEach(v, func(ev []byte, et jsonparser.ValueType, _ int, err error) {
			defer func() { i++ }()
			if found || err != nil {
				return
			}
			if i == index {
				found = af.walk(ev, et, tokens[1:])
			}
			if !found {
				found = af.walk(ev, et, tokens)
			}
		})
		return found
	case jsonparser.Object:
		if len(tokens) == 0 && !af.anyDepth {
			return false
		}
		found := false
		_ = jsonparser.ObjectEach(v, func(k, ev []byte, et jsonparser.ValueType, _ int) error {
			if found {
				return nil
			}
			if len(tokens) == 0 {
				found = af.walk(ev, et, nil)
				return nil
			}
			tok := tokens[0]
			if !tok.Wildcard {
				key, err := jsonparser.ParseString(k)
				if err != nil || key != tok.Name {
					return nil
				}
			}
			found = af.walk(ev, et, tokens[1:])
			return nil
		})
		return found
	default:
		return len(tokens) == 0 && af.leaf(v, typ)
	}
}

func (af arrayFilter) leaf(v []byte, typ jsonparser.ValueType) bool {
	switch typ {
	case jsonparser.String:
		pattern, ok := stringPattern(af.op, af.lit)
		if !ok {
			return false
		}
		s, err := jsonparser.ParseString(v)
		return err == nil && equality(af.op, ql.WildcardMatch(s, pattern))
	case jsonparser.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return matchInt(af.op, i, af.lit)
		}
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && matchFloat(af.op, f, af.lit)
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(v)
		return err == nil && matchBool(af.op, b, af.lit)
	case jsonparser.Null:
		return matchNull(af.op, af.lit)
	default:
		return false
	}
}

// arrayIndex returns the element position named by the first token, or -1.
func arrayIndex(tokens []ql.Token) int {
	if len(tokens) == 0 || tokens[0].Wildcard {
		return -1
	}
	n, err := strconv.Atoi(tokens[0].Name)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
