// Package clp splits free-text strings into a logtype and a list of
// variables, so that repeated message shapes share one dictionary entry.
//
// A string is cut into tokens at delimiter bytes. A token that contains a
// digit, or that directly follows '=', is a variable: it is moved to the
// variable list and replaced in the logtype by PlaceholderVar. Placeholder
// and escape bytes in the static text are prefixed with Escape.
//
//	"user=bob took 12ms" -> logtype "user=\x11 took \x11", vars ["bob", "12ms"]
package clp

import (
	"errors"
	"fmt"
	"strings"

	"columnlog/internal/dict"
)

const (
	PlaceholderVar = 0x11
	Escape         = 0x12
)

var ErrVarCount = errors.New("logtype placeholders and variables disagree")

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', ';', '=', '(', ')', '[', ']', '{', '}', '"', '\'', '<', '>', '|', '&', '!':
		return true
	}
	return false
}

func isVariable(token string, prev byte) bool {
	if prev == '=' {
		return true
	}
	return strings.ContainsFunc(token, func(r rune) bool { return r >= '0' && r <= '9' })
}

func writeStatic(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == PlaceholderVar || s[i] == Escape {
			b.WriteByte(Escape)
		}
		b.WriteByte(s[i])
	}
}

// Encode splits s into its logtype and variables.
func Encode(s string) (logtype string, vars []string) {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if isDelim(s[i]) {
			writeStatic(&b, s[i:i+1])
			i++
			continue
		}
		start := i
		for i < len(s) && !isDelim(s[i]) {
			i++
		}
		token := s[start:i]
		var prev byte
		if start > 0 {
			prev = s[start-1]
		}
		if isVariable(token, prev) {
			b.WriteByte(PlaceholderVar)
			vars = append(vars, token)
			continue
		}
		writeStatic(&b, token)
	}
	return b.String(), vars
}

// Decode rebuilds the original string from a logtype and its variables.
func Decode(logtype string, vars []string) (string, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(logtype); i++ {
		c := logtype[i]
		switch c {
		case Escape:
			i++
			if i == len(logtype) {
				return "", fmt.Errorf("%w: trailing escape", ErrVarCount)
			}
			b.WriteByte(logtype[i])
		case PlaceholderVar:
			if next == len(vars) {
				return "", fmt.Errorf("%w: more placeholders than %d variables", ErrVarCount, len(vars))
			}
			b.WriteString(vars[next])
			next++
		default:
			b.WriteByte(c)
		}
	}
	if next != len(vars) {
		return "", fmt.Errorf("%w: %d placeholders, %d variables", ErrVarCount, next, len(vars))
	}
	return b.String(), nil
}

// Placeholders counts the variables a logtype expects.
func Placeholders(logtype string) int {
	n := 0
	for i := 0; i < len(logtype); i++ {
		switch logtype[i] {
		case Escape:
			i++
		case PlaceholderVar:
			n++
		}
	}
	return n
}

// EncodeIDs encodes s and interns the logtype and variables.
func EncodeIDs(s string, logtypes, vars *dict.Writer) (uint32, []uint32) {
	lt, vs := Encode(s)
	var ids []uint32
	if len(vs) > 0 {
		ids = make([]uint32, len(vs))
		for i, v := range vs {
			ids[i] = vars.Add(v)
		}
	}
	return logtypes.Add(lt), ids
}

// DecodeIDs resolves a logtype id and variable ids and decodes them.
func DecodeIDs(logtypes, vars *dict.Dict, logtypeID uint32, varIDs []uint32) (string, error) {
	lt, err := logtypes.Lookup(logtypeID)
	if err != nil {
		return "", err
	}
	if n := Placeholders(lt); n != len(varIDs) {
		return "", fmt.Errorf("%w: logtype %d has %d placeholders, %d variables", ErrVarCount, logtypeID, n, len(varIDs))
	}
	vs := make([]string, len(varIDs))
	for i, id := range varIDs {
		if vs[i], err = vars.Lookup(id); err != nil {
			return "", err
		}
	}
	return Decode(lt, vs)
}
