// Package search evaluates queries over archives and reconstructs their
// records.
//
// A search compiles the query once, then visits the archives of a directory
// in order. Each archive is first checked against its timestamp index, then
// matched against its schema tree; only the schemas that can satisfy the
// query have their tables decoded and evaluated record by record.
package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"columnlog/internal/archive"
	"columnlog/internal/logging"
	"columnlog/internal/query"
	ql "columnlog/internal/querylang"
	"columnlog/internal/timestamp"
)

// ErrNoArchives is returned when the archives directory holds no complete
// archive.
var ErrNoArchives = errors.New("no archives")

// Stats counts the work done by one search.
type Stats struct {
	Archives         int
	ArchivesSearched int
	SchemasSearched  int
	RecordsScanned   int
	Matches          int
}

// Engine runs queries and extractions over an archives directory.
type Engine struct {
	archivesDir string
	compiler    *query.Compiler
	base        *slog.Logger
	logger      *slog.Logger
}

// NewEngine returns an engine over archivesDir.
// If logger is nil, logging is disabled.
func NewEngine(archivesDir string, logger *slog.Logger) *Engine {
	logger = logging.Default(logger)
	return &Engine{
		archivesDir: archivesDir,
		compiler:    query.NewCompiler(timestamp.NewPatterns(), logger),
		base:        logger,
		logger:      logger.With("component", "search"),
	}
}

// Search writes every record matching text to w as one line of JSON.
// Records are grouped by archive, then by schema.
//
// Query errors are returned wrapped: query.ErrInvalidQuery and
// query.ErrLogicallyFalse before any archive is read, and
// query.ErrNoTimestampMatch or query.ErrNoSchemaMatch when every archive
// was pruned. query.IsNoMatch distinguishes the latter three from failures.
func (e *Engine) Search(ctx context.Context, text string, w io.Writer) (Stats, error) {
	var stats Stats
	expr, err := e.compiler.Compile(text)
	if err != nil {
		return stats, err
	}

	dirs, err := archive.ListArchives(e.archivesDir)
	if err != nil {
		return stats, err
	}
	if len(dirs) == 0 {
		return stats, fmt.Errorf("%w in %s", ErrNoArchives, e.archivesDir)
	}
	stats.Archives = len(dirs)

	bw := bufio.NewWriter(w)
	timestampPruned := 0
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		err := e.searchArchive(ctx, dir, expr.Copy(), bw, &stats)
		switch {
		case errors.Is(err, query.ErrNoTimestampMatch):
			timestampPruned++
		case errors.Is(err, query.ErrNoSchemaMatch):
		case err != nil:
			_ = bw.Flush()
			return stats, err
		}
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("write results: %w", err)
	}

	e.logger.Info("search finished", "query", text, "archives", stats.Archives,
		"searched", stats.ArchivesSearched, "schemas", stats.SchemasSearched,
		"scanned", stats.RecordsScanned, "matches", stats.Matches)

	switch {
	case timestampPruned == len(dirs):
		return stats, fmt.Errorf("%w: %q", query.ErrNoTimestampMatch, text)
	case stats.ArchivesSearched == 0:
		return stats, fmt.Errorf("%w: %q", query.ErrNoSchemaMatch, text)
	}
	return stats, nil
}

// searchArchive evaluates expr over one archive. It returns
// query.ErrNoTimestampMatch or query.ErrNoSchemaMatch when the archive was
// pruned without reading any table.
func (e *Engine) searchArchive(ctx context.Context, dir archive.Dir, expr ql.Expr, w io.Writer, stats *Stats) error {
	logger := e.logger.With("archive", dir.ID())
	ar, err := archive.Open(dir, e.base)
	if err != nil {
		return err
	}

	if query.EvaluateTimestampIndex(expr, ar.Timestamps()) == timestamp.False {
		logger.Debug("archive pruned by timestamp index")
		return query.ErrNoTimestampMatch
	}

	match := query.NewSchemaMatch(ar.Tree(), ar.Schemas(), e.base)
	if ql.IsEmpty(match.Run(expr)) {
		logger.Debug("no schema matches")
		return query.ErrNoSchemaMatch
	}
	stats.ArchivesSearched++

	ev := NewEvaluator(ar.Tree(), ar.Dicts(), match, e.base)
	for _, sid := range match.Schemas() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := match.Query(sid)
		if query.EvaluateTimestampIndex(sub, ar.Timestamps().ForSchema(sid)) == timestamp.False {
			logger.Debug("schema pruned by timestamp index", "schema", sid)
			continue
		}
		if err := e.searchSchema(ar, sid, ev, w, stats); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) searchSchema(ar *archive.Reader, sid int32, ev *Evaluator, w io.Writer, stats *Stats) error {
	sr, err := ar.SchemaReader(sid)
	if err != nil {
		return err
	}
	if err := ev.Init(sr, sid); err != nil {
		return err
	}
	stats.SchemasSearched++

	all := ql.IsTrue(ev.expr)
	for i, ok := sr.Next(); ok; i, ok = sr.Next() {
		stats.RecordsScanned++
		if !all {
			hit, err := ev.Filter(i)
			if err != nil {
				return fmt.Errorf("archive %s: %w", ar.Dir().ID(), err)
			}
			if !hit {
				continue
			}
		}
		if err := sr.Write(w, i); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		stats.Matches++
	}
	return nil
}
