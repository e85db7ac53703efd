// Package logger builds the process slog.Logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"

	"innsearch/internal/platform/config"
	"innsearch/pkg/requestcontext"
)

// New returns a logger writing to stdout and, when cfg.File is set, also to
// that file. The returned closer releases the file; it is never nil.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return slog.New(NewContextHandler(newHandler(out, cfg.Format, level))), closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// ContextHandler stamps records with the run, person and source carried by
// the context. Keys already present on the record, or attached earlier with
// Logger.With, win.
type ContextHandler struct {
	slog.Handler
	// preset holds top-level keys attached through WithAttrs.
	preset  map[string]bool
	grouped bool
}

func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: next}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	present := maps.Clone(h.preset)
	if present == nil {
		present = map[string]bool{}
	}
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	add := func(key, value string) {
		if value != "" && !present[key] {
			r.AddAttrs(slog.String(key, value))
		}
	}
	add("run_id", requestcontext.RunID(ctx))
	add("person_id", requestcontext.PersonID(ctx))
	add("source", requestcontext.Source(ctx))
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	preset := maps.Clone(h.preset)
	if !h.grouped {
		if preset == nil {
			preset = make(map[string]bool, len(attrs))
		}
		for _, a := range attrs {
			preset[a.Key] = true
		}
	}
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs), preset: preset, grouped: h.grouped}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name), preset: h.preset, grouped: h.grouped || name != ""}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
