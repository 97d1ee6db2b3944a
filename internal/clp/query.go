package clp

import (
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"columnlog/internal/dict"
	"columnlog/internal/querylang"
)

// Query is a string pattern compiled against an archive's dictionaries.
//
// A pattern without wildcards is encoded once and matched by comparing
// dictionary ids. A wildcard pattern is first matched against the logtype
// dictionary: its static tokens must appear in a value's logtype, so
// logtypes outside that candidate set are rejected without decoding.
// Candidates are decoded and glob-matched; results for logtypes without
// variables are cached.
type Query struct {
	pattern  string
	logtypes *dict.Dict
	vars     *dict.Dict

	exact      bool
	impossible bool
	logtypeID  uint32
	varIDs     []uint32

	// candidates is nil when the pattern does not narrow the logtypes.
	candidates *roaring.Bitmap
	cache      map[uint32]bool
}

// Compile prepares pattern for matching values encoded with logtypes and
// vars.
func Compile(pattern string, logtypes, vars *dict.Dict) *Query {
	q := &Query{pattern: pattern, logtypes: logtypes, vars: vars}
	if querylang.HasWildcard(pattern) {
		q.cache = make(map[uint32]bool)
		if lp, ok := logtypePattern(pattern); ok {
			q.candidates = logtypes.Search(lp)
			q.impossible = q.candidates.IsEmpty()
		}
		return q
	}

	q.exact = true
	lt, vs := Encode(querylang.UnescapeWildcards(pattern))
	id, ok := logtypes.ID(lt)
	if !ok {
		q.impossible = true
		return q
	}
	q.logtypeID = id
	for _, v := range vs {
		vid, ok := vars.ID(v)
		if !ok {
			q.impossible = true
			return q
		}
		q.varIDs = append(q.varIDs, vid)
	}
	return q
}

// logtypePattern derives a wildcard pattern over logtypes from a wildcard
// pattern over values. Tokens without wildcards are encoded the way Encode
// would encode them in any matching value; tokens with wildcards may cover
// any run of static text and variables and become '*'. It reports false
// when the result would match every logtype, or when the pattern escapes
// characters and its token boundaries are ambiguous.
func logtypePattern(pattern string) (string, bool) {
	if strings.ContainsRune(pattern, '\\') {
		return "", false
	}
	var b strings.Builder
	narrowed := false
	i := 0
	for i < len(pattern) {
		if isDelim(pattern[i]) {
			b.WriteByte(pattern[i])
			narrowed = true
			i++
			continue
		}
		start := i
		for i < len(pattern) && !isDelim(pattern[i]) {
			i++
		}
		token := pattern[start:i]
		var prev byte
		if start > 0 {
			prev = pattern[start-1]
		}
		switch {
		case querylang.HasWildcard(token):
			b.WriteByte('*')
		case isVariable(token, prev):
			b.WriteByte(PlaceholderVar)
			narrowed = true
		default:
			writeStatic(&b, token)
			narrowed = true
		}
	}
	return b.String(), narrowed
}

// Match reports whether the value encoded as (logtypeID, varIDs) matches.
func (q *Query) Match(logtypeID uint32, varIDs []uint32) (bool, error) {
	if q.impossible {
		return false, nil
	}
	if q.exact {
		return logtypeID == q.logtypeID && slices.Equal(varIDs, q.varIDs), nil
	}
	if q.candidates != nil && !q.candidates.Contains(logtypeID) {
		return false, nil
	}

	if len(varIDs) == 0 {
		if hit, ok := q.cache[logtypeID]; ok {
			return hit, nil
		}
	}
	s, err := DecodeIDs(q.logtypes, q.vars, logtypeID, varIDs)
	if err != nil {
		return false, err
	}
	hit := querylang.WildcardMatch(s, q.pattern)
	if len(varIDs) == 0 {
		q.cache[logtypeID] = hit
	}
	return hit, nil
}
