package logging

import (
	"context"
	"log/slog"
	"strings"
)

// StageLevels maps stage names to a minimum log level so a noisy stage can be
// quietened (or a suspicious one made verbose) without touching the global
// level. Keys are matched case-insensitively.
type StageLevels map[string]string

// Apply returns logger restricted to the level configured for stage, or
// logger unchanged when no override exists.
func (s StageLevels) Apply(logger *slog.Logger, stage string) *slog.Logger {
	if len(s) == 0 || logger == nil {
		return logger
	}
	for key, value := range s {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(stage)) {
			level, ok := ParseLevel(value)
			if !ok {
				return logger
			}
			return slog.New(&levelOverrideHandler{next: logger.Handler(), level: level})
		}
	}
	return logger
}

type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithGroup(name), level: h.level}
}
