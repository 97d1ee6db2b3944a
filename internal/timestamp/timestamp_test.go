package timestamp

import (
	"testing"
	"time"

	"columnlog/internal/querylang"
)

func TestPatternsParse(t *testing.T) {
	p := NewPatterns()
	p.now = func() time.Time { return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		in      string
		want    time.Time
		pattern string
	}{
		{"2024-01-15T10:30:45Z", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC), "rfc3339"},
		{"2024-01-15T10:30:45.5+01:00", time.Date(2024, 1, 15, 9, 30, 45, 500_000_000, time.UTC), "rfc3339"},
		{"2024-01-15T10:30:45.123", time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.UTC), "iso8601-local"},
		{"2024-01-15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC), "apple-unified"},
		{"2024-01-15 10:30:45.25-0100", time.Date(2024, 1, 15, 11, 30, 45, 250_000_000, time.UTC), "apple-unified"},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "iso-date"},
		{"[02/Jan/2006:15:04:05 -0700]", time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC), "clf"},
		{"02/Jan/2006:15:04:05 +0000", time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), "clf"},
		{"2024/01/15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC), "go-ruby"},
		{"Jan  5 15:04:02", time.Date(2025, 1, 5, 15, 4, 2, 0, time.UTC), "syslog-bsd"},
		{"Dec 31 23:00:00", time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), "syslog-bsd"},
		{"Fri Feb 13 17:49:50 2026", time.Date(2026, 2, 13, 17, 49, 50, 0, time.UTC), "ctime"},
		{"Fri Feb 13 17:49:50.028 2026", time.Date(2026, 2, 13, 17, 49, 50, 28_000_000, time.UTC), "ctime"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, name, ok := p.Parse(tt.in)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.in)
			}
			if name != tt.pattern {
				t.Errorf("pattern = %s, want %s", name, tt.pattern)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPatternsRejectPartial(t *testing.T) {
	p := NewPatterns()
	for _, in := range []string{
		"",
		"hello",
		"2024-01-15 and more",
		"2024-01-15T10:30:45Z trailing",
		"2024-13-45",
		"1700000000",
	} {
		if _, _, ok := p.Parse(in); ok {
			t.Errorf("Parse(%q) succeeded, want failure", in)
		}
	}
}

func TestEpochMillis(t *testing.T) {
	p := NewPatterns()
	got, ok := p.EpochMillis("1970-01-01T00:00:01.5Z")
	if !ok || got != 1500 {
		t.Errorf("EpochMillis = %d, %v; want 1500, true", got, ok)
	}
}

func TestEntryRange(t *testing.T) {
	e := NewEntry([]string{"ts"})
	if e.Encoding != UnknownEncoding {
		t.Fatalf("encoding = %v", e.Encoding)
	}
	e.Ingest(1500)
	e.Ingest(1000)
	e.Ingest(2000)
	if e.EpochStart != 1000 || e.EpochEnd != 2000 || e.Encoding != Epoch {
		t.Fatalf("range = [%d, %d] %v", e.EpochStart, e.EpochEnd, e.Encoding)
	}

	other := NewEntry([]string{"ts"})
	other.Ingest(500)
	other.IngestFloat(3.5)
	e.MergeRange(other)
	if e.EpochStart != 500 || e.EpochEnd != 2000 {
		t.Errorf("merged int range = [%d, %d]", e.EpochStart, e.EpochEnd)
	}
	if !e.HasFloat || e.FloatStart != 3.5 || e.Encoding != DoubleEpoch {
		t.Errorf("merged float range = %v [%v, %v]", e.HasFloat, e.FloatStart, e.FloatEnd)
	}
}

func TestEntryEvaluateFilter(t *testing.T) {
	e := NewEntry([]string{"ts"})
	e.Ingest(1000)
	e.Ingest(2000)

	tests := []struct {
		op   querylang.FilterOp
		lit  querylang.Literal
		want EvaluatedValue
	}{
		{querylang.OpGt, querylang.NewIntLiteral(5000), False},
		{querylang.OpGt, querylang.NewIntLiteral(2000), False},
		{querylang.OpGt, querylang.NewIntLiteral(1999), Unknown},
		{querylang.OpGte, querylang.NewIntLiteral(2000), Unknown},
		{querylang.OpLt, querylang.NewIntLiteral(1000), False},
		{querylang.OpLte, querylang.NewIntLiteral(1000), Unknown},
		{querylang.OpEq, querylang.NewIntLiteral(1500), Unknown},
		{querylang.OpEq, querylang.NewIntLiteral(3000), False},
		{querylang.OpEq, querylang.NewFloatLiteral(1500.5), Unknown},
		{querylang.OpNeq, querylang.NewIntLiteral(1500), Unknown},
		{querylang.OpExists, nil, Unknown},
		{querylang.OpEq, querylang.NewStringLiteral("x"), Unknown},
		{querylang.OpGt, querylang.NewDateLiteral(5000, "d"), False},
	}
	for _, tt := range tests {
		if got := e.EvaluateFilter(tt.op, tt.lit); got != tt.want {
			t.Errorf("EvaluateFilter(%s %v) = %s, want %s", tt.op, tt.lit, got, tt.want)
		}
	}

	single := NewEntry([]string{"ts"})
	single.Ingest(7)
	if got := single.EvaluateFilter(querylang.OpNeq, querylang.NewIntLiteral(7)); got != False {
		t.Errorf("NEQ on single-valued range = %s, want false", got)
	}

	e.MarkUntracked()
	if got := e.EvaluateFilter(querylang.OpGt, querylang.NewIntLiteral(5000)); got != Unknown {
		t.Errorf("untracked entry pruned: %s", got)
	}
}

func TestEntryEvaluateFloat(t *testing.T) {
	e := NewEntry([]string{"ts"})
	e.IngestFloat(1.5)
	e.IngestFloat(2.5)
	if got := e.EvaluateFilter(querylang.OpGt, querylang.NewFloatLiteral(2.5)); got != False {
		t.Errorf("got %s, want false", got)
	}
	// Date literals compare against float ranges in seconds.
	if got := e.EvaluateFilter(querylang.OpGt, querylang.NewDateLiteral(2000, "d")); got != Unknown {
		t.Errorf("got %s, want unknown", got)
	}
	if got := e.EvaluateFilter(querylang.OpGt, querylang.NewDateLiteral(3000, "d")); got != False {
		t.Errorf("got %s, want false", got)
	}
}

func TestDictionary(t *testing.T) {
	d := NewDictionary()
	d.Ingest(0, []string{"ts"}, 1000)
	d.Ingest(1, []string{"ts"}, 2000)
	d.Ingest(1, []string{"meta", "ts"}, 5)
	d.Finalize()

	ts := d.Range([]string{"ts"})
	if ts == nil || ts.EpochStart != 1000 || ts.EpochEnd != 2000 {
		t.Fatalf("column range = %+v", ts)
	}
	if d.Range([]string{"missing"}) != nil {
		t.Error("unexpected range for missing column")
	}
	if r := d.ForSchema(0).Range([]string{"ts"}); r == nil || r.EpochEnd != 1000 {
		t.Errorf("schema 0 range = %+v", r)
	}
	if d.ForSchema(0).Range([]string{"meta", "ts"}) != nil {
		t.Error("schema 0 has no meta.ts")
	}
	if len(d.Columns) != 2 {
		t.Errorf("columns = %d, want 2", len(d.Columns))
	}
}
