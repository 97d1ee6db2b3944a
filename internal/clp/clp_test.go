package clp

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/klauspost/compress/zstd"

	"columnlog/internal/dict"
	"columnlog/internal/format"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		in      string
		logtype string
		vars    []string
	}{
		{"x y", "x y", nil},
		{"user=bob took 12ms", "user=\x11 took \x11", []string{"bob", "12ms"}},
		{"connect 10.0.0.1:443 failed", "connect \x11 failed", []string{"10.0.0.1:443"}},
		{"", "", nil},
		{"a\x11b", "a\x12\x11b", nil},
		{"esc\x12 1", "esc\x12\x12 \x11", []string{"1"}},
		{`[1,"a b",{"k":2}]`, "[\x11,\"a b\",{\"k\"\x11}]", []string{"1", ":2"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lt, vars := Encode(tt.in)
			if lt != tt.logtype {
				t.Errorf("logtype = %q, want %q", lt, tt.logtype)
			}
			if !slices.Equal(vars, tt.vars) {
				t.Errorf("vars = %q, want %q", vars, tt.vars)
			}
			if n := Placeholders(lt); n != len(vars) {
				t.Errorf("Placeholders = %d, want %d", n, len(vars))
			}
			back, err := Decode(lt, vars)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if back != tt.in {
				t.Errorf("Decode = %q, want %q", back, tt.in)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		logtype string
		vars    []string
	}{
		{"missing var", "a \x11", nil},
		{"extra var", "a", []string{"1"}},
		{"trailing escape", "a\x12", nil},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.logtype, tt.vars); !errors.Is(err, ErrVarCount) {
			t.Errorf("%s: error = %v, want ErrVarCount", tt.name, err)
		}
	}
}

type encoded struct {
	logtype uint32
	vars    []uint32
}

// buildDicts encodes values and returns the loaded dictionaries.
func buildDicts(t *testing.T, values ...string) (*dict.Dict, *dict.Dict, []encoded) {
	t.Helper()
	lw := dict.NewWriter(format.TypeLogDict)
	vw := dict.NewWriter(format.TypeVarDict)
	var out []encoded
	for _, v := range values {
		lt, vars := EncodeIDs(v, lw, vw)
		out = append(out, encoded{lt, vars})
	}
	load := func(w *dict.Writer, typ byte) *dict.Dict {
		var buf bytes.Buffer
		if err := w.Encode(&buf, zstd.SpeedFastest); err != nil {
			t.Fatal(err)
		}
		d, err := dict.Decode(buf.Bytes(), typ)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}
	return load(lw, format.TypeLogDict), load(vw, format.TypeVarDict), out
}

func TestQueryMatch(t *testing.T) {
	values := []string{"x y", "user=bob took 12ms", "user=alice took 7ms", "disk full"}
	logtypes, vars, enc := buildDicts(t, values...)

	tests := []struct {
		pattern    string
		want       []bool
		impossible bool
	}{
		{"x y", []bool{true, false, false, false}, false},
		{"user=bob took 12ms", []bool{false, true, false, false}, false},
		{"user=bob took 7ms", []bool{false, false, false, false}, false},
		{"user=carol took 7ms", nil, true},
		{"never seen", nil, true},
		{"user=* took *", []bool{false, true, true, false}, false},
		{"*full", []bool{false, false, false, true}, false},
		{"?isk*", []bool{false, false, false, true}, false},
		{"*", []bool{true, true, true, true}, false},
		{"*12*", []bool{false, true, false, false}, false},
		{"user=* took 7*", []bool{false, false, true, false}, false},
		{"disk *", []bool{false, false, false, true}, false},
		{"* full", []bool{false, false, false, true}, false},
		{"no such *", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			q := Compile(tt.pattern, logtypes, vars)
			if q.impossible != tt.impossible {
				t.Fatalf("impossible = %v, want %v", q.impossible, tt.impossible)
			}
			for i, e := range enc {
				got, err := q.Match(e.logtype, e.vars)
				if err != nil {
					t.Fatalf("Match(%q): %v", values[i], err)
				}
				want := tt.want != nil && tt.want[i]
				if got != want {
					t.Errorf("Match(%q) = %v, want %v", values[i], got, want)
				}
			}
		})
	}
}

func TestLogtypePattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		ok      bool
	}{
		{"user=* took *", "user=* took *", true},
		{"disk f*", "disk *", true},
		{"*=bob *", "*=\x11 *", true},
		{"took 12* ms", "took * ms", true},
		{"at 10:00 *", "at \x11 *", true},
		{"*full", "", false},
		{"*", "", false},
		{`a\* b*`, "", false},
	}
	for _, tt := range tests {
		got, ok := logtypePattern(tt.pattern)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("logtypePattern(%q) = %q, %v, want %q, %v", tt.pattern, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQueryRejectsNonCandidateLogtype(t *testing.T) {
	logtypes, vars, enc := buildDicts(t, "user=bob took 12ms", "disk full on 7")
	q := Compile("user=* took *", logtypes, vars)
	if q.candidates == nil || q.candidates.GetCardinality() != 1 {
		t.Fatalf("candidates = %v, want one logtype", q.candidates)
	}

	// Variable ids that are not in the dictionary prove no lookup happens.
	bogus := []uint32{999}
	if ok, err := q.Match(enc[1].logtype, bogus); ok || err != nil {
		t.Errorf("Match(non-candidate) = %v, %v, want false, nil", ok, err)
	}
	if _, err := q.Match(enc[0].logtype, []uint32{999, 999}); !errors.Is(err, dict.ErrIDNotFound) {
		t.Errorf("Match(candidate, unknown vars) error = %v, want ErrIDNotFound", err)
	}
}

func TestQueryCacheStable(t *testing.T) {
	logtypes, vars, enc := buildDicts(t, "disk full", "disk empty")
	q := Compile("disk f*", logtypes, vars)
	for range 3 {
		if ok, _ := q.Match(enc[0].logtype, nil); !ok {
			t.Fatal("cached logtype stopped matching")
		}
		if ok, _ := q.Match(enc[1].logtype, nil); ok {
			t.Fatal("cached logtype started matching")
		}
	}
}

func TestDecodeIDs(t *testing.T) {
	logtypes, vars, enc := buildDicts(t, "user=bob took 12ms")
	s, err := DecodeIDs(logtypes, vars, enc[0].logtype, enc[0].vars)
	if err != nil || s != "user=bob took 12ms" {
		t.Errorf("DecodeIDs = %q, %v", s, err)
	}
	if _, err := DecodeIDs(logtypes, vars, 5, nil); !errors.Is(err, dict.ErrIDNotFound) {
		t.Errorf("unknown logtype error = %v", err)
	}
	if _, err := DecodeIDs(logtypes, vars, enc[0].logtype, enc[0].vars[:1]); !errors.Is(err, ErrVarCount) {
		t.Errorf("short variable list error = %v", err)
	}
}
