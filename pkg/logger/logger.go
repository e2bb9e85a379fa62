// Package logger builds the application slog.Logger: leveled, optionally
// rotated to disk, PIN-masking, and mirrored to Sentry at error level.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogsentry "github.com/samber/slog-sentry/v2"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cashpoint-io/atmd/pkg/config"
)

// New builds the root logger from configuration. Every handler is wrapped
// in the masking handler so PIN material never reaches any sink.
func New(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.Logger.Level)

	var out io.Writer = os.Stdout
	if cfg.Logger.File.Enabled && cfg.Logger.File.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logger.File.Path,
			MaxSize:    cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAge:     cfg.Logger.File.MaxAgeDays,
			Compress:   cfg.Logger.File.Compress,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logger.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{Level: slog.LevelError}.NewSentryHandler()
		handler = newTeeHandler(handler, sentryHandler)
	}

	return slog.New(NewMaskingHandler(handler)).With(
		slog.String("env", cfg.AppEnv),
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// teeHandler fans records out to two handlers; small local fanout that
// avoids a multi-handler dependency.
type teeHandler struct {
	first  slog.Handler
	second slog.Handler
}

func newTeeHandler(first, second slog.Handler) slog.Handler {
	return &teeHandler{first: first, second: second}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.first.Enabled(ctx, level) || h.second.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.first.Enabled(ctx, record.Level) {
		err = h.first.Handle(ctx, record.Clone())
	}
	if h.second.Enabled(ctx, record.Level) {
		if herr := h.second.Handle(ctx, record.Clone()); herr != nil && err == nil {
			err = herr
		}
	}

	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{first: h.first.WithAttrs(attrs), second: h.second.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{first: h.first.WithGroup(name), second: h.second.WithGroup(name)}
}
