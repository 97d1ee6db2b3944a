package timestamp

import (
	"math"

	"columnlog/internal/querylang"
)

// EvaluatedValue is the three-valued outcome of evaluating a filter against
// coarse metadata.
type EvaluatedValue int

const (
	Unknown EvaluatedValue = iota
	True
	False
)

func (v EvaluatedValue) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Encoding records which kinds of values an Entry has seen.
type Encoding int

const (
	// UnknownEncoding means nothing has been ingested.
	UnknownEncoding Encoding = iota
	// Epoch means only integer epochs were ingested.
	Epoch
	// DoubleEpoch means at least one floating point epoch was ingested.
	DoubleEpoch
)

// Entry is the observed value range of one timestamp column. Integer and
// floating point values are tracked in separate ranges; ranges only widen.
type Entry struct {
	Path       []string `msgpack:"path"`
	Encoding   Encoding `msgpack:"encoding"`
	HasInt     bool     `msgpack:"has_int"`
	HasFloat   bool     `msgpack:"has_float"`
	EpochStart int64    `msgpack:"epoch_start"`
	EpochEnd   int64    `msgpack:"epoch_end"`
	FloatStart float64  `msgpack:"float_start"`
	FloatEnd   float64  `msgpack:"float_end"`
	// Untracked is set when the column held values that are not in either
	// range, such as unparseable strings. Such an entry cannot prune.
	Untracked bool `msgpack:"untracked"`
}

// NewEntry returns an empty entry for the column at path.
func NewEntry(path []string) *Entry {
	return &Entry{
		Path:       path,
		EpochStart: math.MaxInt64,
		EpochEnd:   math.MinInt64,
		FloatStart: math.Inf(1),
		FloatEnd:   math.Inf(-1),
	}
}

// Ingest widens the integer range to include v.
func (e *Entry) Ingest(v int64) {
	e.HasInt = true
	e.EpochStart = min(e.EpochStart, v)
	e.EpochEnd = max(e.EpochEnd, v)
	if e.Encoding == UnknownEncoding {
		e.Encoding = Epoch
	}
}

// IngestFloat widens the floating point range to include v.
func (e *Entry) IngestFloat(v float64) {
	e.HasFloat = true
	e.FloatStart = min(e.FloatStart, v)
	e.FloatEnd = max(e.FloatEnd, v)
	e.Encoding = DoubleEpoch
}

// MarkUntracked records that the column held a value outside both ranges.
func (e *Entry) MarkUntracked() { e.Untracked = true }

// MergeRange widens e to cover other.
func (e *Entry) MergeRange(other *Entry) {
	if other.HasInt {
		e.Ingest(other.EpochStart)
		e.Ingest(other.EpochEnd)
	}
	if other.HasFloat {
		e.IngestFloat(other.FloatStart)
		e.IngestFloat(other.FloatEnd)
	}
	e.Untracked = e.Untracked || other.Untracked
}

// EvaluateFilter decides whether any value in the entry's ranges could
// satisfy "value op lit". It returns False when no value can, and Unknown
// otherwise; a range never proves a filter True.
func (e *Entry) EvaluateFilter(op querylang.FilterOp, lit querylang.Literal) EvaluatedValue {
	if e.Untracked || lit == nil {
		return Unknown
	}
	switch op {
	case querylang.OpExists, querylang.OpNExists:
		return Unknown
	}
	if !e.HasInt && !e.HasFloat {
		// The column never held a value, so no comparison can hold.
		return False
	}
	if e.HasInt {
		v, ok := lit.AsEpochDate(op)
		if !ok || rangeAdmits(op, e.EpochStart, e.EpochEnd, v) {
			return Unknown
		}
	}
	if e.HasFloat {
		v, ok := lit.AsFloatDate(op)
		if !ok || rangeAdmits(op, e.FloatStart, e.FloatEnd, v) {
			return Unknown
		}
	}
	return False
}

// rangeAdmits reports whether some x in [lo, hi] may satisfy "x op v".
func rangeAdmits[T int64 | float64](op querylang.FilterOp, lo, hi, v T) bool {
	switch op {
	case querylang.OpEq:
		return v >= lo && v <= hi
	case querylang.OpNeq:
		return !(lo == v && hi == v)
	case querylang.OpLt:
		return lo < v
	case querylang.OpLte:
		return lo <= v
	case querylang.OpGt:
		return hi > v
	case querylang.OpGte:
		return hi >= v
	default:
		return true
	}
}
