package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger configured with a text handler writing to STDOUT.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// NewFile returns a text logger writing to a size-rotated file at path.
// The returned closer releases the file.
func NewFile(path string, level slog.Level) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    32, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	return slog.New(slog.NewTextHandler(lj, &slog.HandlerOptions{Level: level})), lj
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level,
// defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type ctxKey struct{}

// NewContext returns a copy of ctx with the logger stored.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves a logger from ctx or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
