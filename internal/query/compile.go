package query

import (
	"errors"
	"fmt"
	"log/slog"

	"columnlog/internal/logging"
	ql "columnlog/internal/querylang"
)

var (
	// ErrInvalidQuery wraps parse failures.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrLogicallyFalse means the query cannot match any record.
	ErrLogicallyFalse = errors.New("query is logically false")
	// ErrNoTimestampMatch means no timestamp range can satisfy the query.
	ErrNoTimestampMatch = errors.New("no matching timestamp ranges")
	// ErrNoSchemaMatch means no schema in the archive can satisfy the query.
	ErrNoSchemaMatch = errors.New("no matching schemas")
)

// IsNoMatch reports whether err says the query was proven to have no
// results, as opposed to having failed.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrLogicallyFalse) ||
		errors.Is(err, ErrNoTimestampMatch) ||
		errors.Is(err, ErrNoSchemaMatch)
}

// Compiler turns query text into a rewritten filter expression.
type Compiler struct {
	dates  ql.DateParser
	logger *slog.Logger
}

// NewCompiler returns a compiler resolving date literals with dates.
// If logger is nil, logging is disabled.
func NewCompiler(dates ql.DateParser, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Compiler{dates: dates, logger: logger.With("component", "query-compiler")}
}

// Compile parses text and runs the rewrite passes in order: standardize,
// narrow types, convert to existence checks, then constant propagation and
// standardization again. It returns ErrLogicallyFalse, wrapped, when the
// result is EMPTY. The returned expression may be the tautology.
func (c *Compiler) Compile(text string) (ql.Expr, error) {
	expr, err := ql.Parse(text, c.dates)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidQuery, text, err)
	}
	c.logger.Debug("parsed query", "expr", expr)

	falseErr := func() error { return fmt.Errorf("%w: %q", ErrLogicallyFalse, text) }

	expr = Standardize(expr)
	if ql.IsEmpty(expr) {
		return nil, falseErr()
	}

	expr = NarrowTypes(expr)
	if ql.IsEmpty(expr) {
		return nil, falseErr()
	}

	expr, converted := ConvertToExists(expr)
	c.logger.Debug("narrowed query", "expr", expr, "converted", converted)

	expr = Standardize(ConstantProp(expr))
	if ql.IsEmpty(expr) {
		return nil, falseErr()
	}
	c.logger.Debug("compiled query", "expr", expr)
	return expr, nil
}
