package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentKey is the attribute that names the component a record belongs to.
const ComponentKey = "component"

// levels is the level table shared by a handler and its derived handlers.
type levels struct {
	mu         sync.RWMutex
	defaultLvl slog.Level
	components map[string]slog.Level
}

func (l *levels) get(component string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.components[component]; ok && component != "" {
		return lvl
	}
	return l.defaultLvl
}

// min returns the lowest level any component is enabled at.
func (l *levels) min() slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m := l.defaultLvl
	for _, lvl := range l.components {
		m = min(m, lvl)
	}
	return m
}

// ComponentFilterHandler filters records by a per-component minimum level.
// The component is taken from a "component" attribute, either attached with
// Logger.With or passed on the record itself. Records without one use the
// default level. Levels can be changed at any time and apply to every
// logger derived from the handler.
type ComponentFilterHandler struct {
	base      slog.Handler
	levels    *levels
	component string
}

// NewComponentFilterHandler wraps base. A nil base drops every record but
// still tracks levels.
func NewComponentFilterHandler(base slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		base: base,
		levels: &levels{
			defaultLvl: defaultLevel,
			components: make(map[string]slog.Level),
		},
	}
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	h.levels.components[component] = level
	h.levels.mu.Unlock()
}

// Enabled is a pre-filter. When the component is not yet known it admits
// any level some component is enabled at, and Handle decides.
func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.base != nil && !h.base.Enabled(ctx, level) {
		return false
	}
	if h.component != "" {
		return level >= h.levels.get(h.component)
	}
	return level >= h.levels.min()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.levels.get(component) || h.base == nil {
		return nil
	}
	return h.base.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	for _, a := range attrs {
		if a.Key == ComponentKey {
			out.component = a.Value.String()
		}
	}
	if h.base != nil {
		out.base = h.base.WithAttrs(attrs)
	}
	return &out
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	out := *h
	if h.base != nil {
		out.base = h.base.WithGroup(name)
	}
	return &out
}
