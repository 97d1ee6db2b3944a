package querylang

import (
	"slices"
	"strings"
)

// Token is one step of a column path.
type Token struct {
	Name     string
	Wildcard bool // matches any single key at this level
}

func (t Token) String() string {
	if t.Wildcard {
		return "*"
	}
	return escapeToken(t.Name)
}

// ColumnDescriptor identifies one or more columns by path, together with the
// set of column types it may still match.
type ColumnDescriptor struct {
	tokens []Token
	types  LiteralType
	id     int
}

// NewColumnDescriptor returns a descriptor over tokens matching all types.
func NewColumnDescriptor(tokens []Token) *ColumnDescriptor {
	return &ColumnDescriptor{tokens: tokens, types: AllTypes}
}

// ParseColumnDescriptor tokenizes a dotted path into a descriptor.
func ParseColumnDescriptor(path string) *ColumnDescriptor {
	return NewColumnDescriptor(Tokenize(path))
}

// Tokenize splits a dotted path on unescaped '.' characters. "\." and "\\"
// stand for a literal dot and backslash. A token that is exactly "*"
// becomes a wildcard token.
func Tokenize(path string) []Token {
	if path == "" {
		return nil
	}
	var (
		tokens []Token
		cur    strings.Builder
		raw    strings.Builder
	)
	flush := func() {
		if raw.String() == "*" {
			tokens = append(tokens, Token{Name: "*", Wildcard: true})
		} else {
			tokens = append(tokens, Token{Name: cur.String()})
		}
		cur.Reset()
		raw.Reset()
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '\\' && i+1 < len(path):
			i++
			cur.WriteByte(path[i])
			raw.WriteByte('\\')
			raw.WriteByte(path[i])
		case c == '.':
			flush()
		default:
			cur.WriteByte(c)
			raw.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func escapeToken(name string) string {
	if !strings.ContainsAny(name, `.\`) && name != "*" {
		return name
	}
	if name == "*" {
		return `\*`
	}
	r := strings.NewReplacer(`\`, `\\`, `.`, `\.`)
	return r.Replace(name)
}

// Tokens returns the path tokens. The slice must not be modified.
func (c *ColumnDescriptor) Tokens() []Token { return c.tokens }

// PureWildcard reports whether the descriptor is a lone "*", which
// matches any column.
func (c *ColumnDescriptor) PureWildcard() bool {
	return len(c.tokens) == 1 && c.tokens[0].Wildcard
}

// HasWildcard reports whether any token is a wildcard.
func (c *ColumnDescriptor) HasWildcard() bool {
	return slices.ContainsFunc(c.tokens, func(t Token) bool { return t.Wildcard })
}

// Types returns the column types the descriptor may still match.
func (c *ColumnDescriptor) Types() LiteralType { return c.types }

// SetTypes replaces the type mask.
func (c *ColumnDescriptor) SetTypes(t LiteralType) { c.types = t }

// MatchesAny reports whether the descriptor may match any type in t.
func (c *ColumnDescriptor) MatchesAny(t LiteralType) bool { return c.types&t != 0 }

// Prepend inserts prefix in front of the existing tokens.
func (c *ColumnDescriptor) Prepend(prefix []Token) {
	c.tokens = slices.Concat(prefix, c.tokens)
}

// ID returns the identifier schema matching assigned to this descriptor.
func (c *ColumnDescriptor) ID() int { return c.id }

// SetID assigns the identifier used to key column resolutions.
func (c *ColumnDescriptor) SetID(id int) { c.id = id }

// Copy returns an independent copy, preserving the ID.
func (c *ColumnDescriptor) Copy() *ColumnDescriptor {
	return &ColumnDescriptor{tokens: slices.Clone(c.tokens), types: c.types, id: c.id}
}

func (c *ColumnDescriptor) String() string {
	parts := make([]string, len(c.tokens))
	for i, t := range c.tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ".")
}
