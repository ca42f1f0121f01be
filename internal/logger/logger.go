package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

func Init() {
	log = slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// New wraps a handler into a logger; tests use it to capture output.
func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func l() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func Info(msg string, args ...any) {
	l().Info(msg, args...)
}

func Infof(format string, v ...any) {
	l().Info(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...any) {
	l().Error(msg, args...)
}

func Errorf(format string, v ...any) {
	l().Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) {
	l().Debug(msg, args...)
}

func Debugf(format string, v ...any) {
	l().Debug(fmt.Sprintf(format, v...))
}

func Warn(msg string, args ...any) {
	l().Warn(msg, args...)
}

func Fatal(msg string) {
	l().Error(msg)
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	l().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func WithError(err error) *slog.Logger {
	return l().With("error", err)
}

func WithFields(fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l().With(args...)
}
