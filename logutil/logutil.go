// Package logutil - slog-Konfiguration mit zusaetzlichem TRACE-Level
//
// Hauptkomponenten:
// - LevelTrace: Level unterhalb von DEBUG fuer sehr ausfuehrliche Ausgaben
// - NewLogger: Erstellt einen Text-Logger mit kurzen Quellangaben
// - Trace/TraceContext: Schreiben auf LevelTrace ueber den Default-Logger
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// LevelTrace liegt unterhalb von slog.LevelDebug
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Logger, der ab level nach w schreibt
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if attr.Value.Any().(slog.Level) == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// Trace schreibt eine Nachricht auf LevelTrace
func Trace(msg string, args ...any) {
	trace(context.Background(), msg, args...)
}

// TraceContext schreibt eine Nachricht auf LevelTrace mit Context
func TraceContext(ctx context.Context, msg string, args ...any) {
	trace(ctx, msg, args...)
}

// trace darf nur direkt aus Trace und TraceContext gerufen werden, die
// Quellangabe ueberspringt genau diese beiden Rahmen
func trace(ctx context.Context, msg string, args ...any) {
	if logger := slog.Default(); logger.Enabled(ctx, LevelTrace) {
		var pcs [1]uintptr
		// runtime.Callers, trace, Trace bzw. TraceContext
		runtime.Callers(3, pcs[:])
		r := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
		r.Add(args...)
		logger.Handler().Handle(ctx, r) //nolint:errcheck
	}
}
