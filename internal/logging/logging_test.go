package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestDefault(t *testing.T) {
	if Default(nil).Enabled(context.Background(), slog.LevelError) {
		t.Error("Default(nil) is not a discard logger")
	}

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	if Default(l) != l {
		t.Error("Default returned a different logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// recorder counts the records it receives. Handlers derived with WithAttrs
// share the count.
type recorder struct {
	mu *sync.Mutex
	n  *int
}

func newRecorder() recorder {
	return recorder{mu: new(sync.Mutex), n: new(int)}
}

func (recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r recorder) Handle(context.Context, slog.Record) error {
	r.mu.Lock()
	*r.n++
	r.mu.Unlock()
	return nil
}

func (r recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r recorder) WithGroup(string) slog.Handler      { return r }

func (r recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.n
}

func TestComponentFilterHandler(t *testing.T) {
	rec := newRecorder()
	filter := NewComponentFilterHandler(rec, slog.LevelInfo)
	logger := slog.New(filter)

	steps := []struct {
		name  string
		log   func()
		total int
	}{
		{"info passes", func() { logger.Info("m", "component", "archive") }, 1},
		{"debug dropped", func() { logger.Debug("m", "component", "archive") }, 1},
		{"warn passes", func() { logger.Warn("m", "component", "archive") }, 2},
		{"no component uses default", func() { logger.Debug("m") }, 2},
		{"override enables debug", func() {
			filter.SetLevel("schema-match", slog.LevelDebug)
			logger.Debug("m", "component", "schema-match")
		}, 3},
		{"override is per component", func() { logger.Debug("m", "component", "archive") }, 3},
		{"scoped logger uses override", func() { logger.With("component", "schema-match").Debug("m") }, 4},
		{"override can be raised again", func() {
			filter.SetLevel("schema-match", slog.LevelInfo)
			logger.Debug("m", "component", "schema-match")
		}, 4},
		{"group keeps filtering", func() {
			g := slog.New(filter.WithGroup("g"))
			g.Debug("m", "component", "archive")
			g.Info("m", "component", "archive")
		}, 5},
	}
	for _, s := range steps {
		s.log()
		if got := rec.count(); got != s.total {
			t.Fatalf("%s: %d records, want %d", s.name, got, s.total)
		}
	}
}

func TestComponentFilterHandlerLevels(t *testing.T) {
	filter := NewComponentFilterHandler(nil, slog.LevelWarn)

	ctx := context.Background()
	ingest := filter.WithAttrs([]slog.Attr{slog.String("component", "ingest")})
	other := filter.WithAttrs([]slog.Attr{slog.String("component", "other")})

	tests := []struct {
		name  string
		set   bool
		h     slog.Handler
		level slog.Level
		want  bool
	}{
		{"default drops info", false, ingest, slog.LevelInfo, false},
		{"default passes warn", false, ingest, slog.LevelWarn, true},
		{"override enables debug", true, ingest, slog.LevelDebug, true},
		{"other component keeps default", true, other, slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				filter.SetLevel("ingest", slog.LevelDebug)
			}
			if got := tt.h.Enabled(ctx, tt.level); got != tt.want {
				t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}

	// A nil base drops everything without failing.
	slog.New(filter).Error("m", "component", "ingest")
}

func TestComponentFilterHandlerText(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := NewComponentFilterHandler(base, slog.LevelInfo)
	logger := slog.New(filter)

	archive := logger.With("component", "archive")
	search := logger.With("component", "search")

	archive.Debug("archive debug 1")
	search.Debug("search debug 1")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	filter.SetLevel("archive", slog.LevelDebug)
	archive.Debug("archive debug 2")
	search.Debug("search debug 2")

	out := buf.String()
	if !strings.Contains(out, "archive debug 2") {
		t.Errorf("missing archive debug record: %s", out)
	}
	if strings.Contains(out, "search debug") {
		t.Errorf("search debug record leaked: %s", out)
	}
}

func TestComponentFilterHandlerConcurrent(t *testing.T) {
	rec := newRecorder()
	filter := NewComponentFilterHandler(rec, slog.LevelInfo)
	logger := slog.New(filter)

	const workers, iterations = 8, 100
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for range iterations {
				logger.Info("m", "component", "search")
			}
		})
		wg.Go(func() {
			for range iterations {
				filter.SetLevel("search", slog.LevelDebug)
				filter.SetLevel("search", slog.LevelInfo)
			}
		})
	}
	wg.Wait()

	if got := rec.count(); got != workers*iterations {
		t.Errorf("got %d records, want %d", got, workers*iterations)
	}
}
