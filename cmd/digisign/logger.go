package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.LevelDebug - 4

// slogLogger adapts a *slog.Logger to glog.Logger for --verbose output.
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newSlogLogger(w io.Writer) *slogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelTrace})
	return &slogLogger{logger: slog.New(handler), ctx: context.Background()}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.logger.Log(l.ctx, levelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Log(l.ctx, slog.LevelDebug, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Log(l.ctx, slog.LevelInfo, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Log(l.ctx, slog.LevelWarn, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Log(l.ctx, slog.LevelError, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.logger.Log(l.ctx, slog.LevelError, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{logger: l.logger, ctx: ctx}
}

// newLogger returns the logger handed to the client.
func newLogger() glog.Logger {
	if verbose {
		return newSlogLogger(os.Stderr)
	}
	return glog.Nop()
}
