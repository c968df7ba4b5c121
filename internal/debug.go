package internal

import (
	"context"
	"log/slog"
)

const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l would actually emit a record at lvl,
// letting callers skip building attrs for a disabled logger.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the allocation-free-when-disabled logging helper every
// package-local logger struct in this module routes through.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
