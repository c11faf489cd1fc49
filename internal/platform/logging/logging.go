// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Config selects the level and output format of the process logger.
type Config struct {
	Level  string `env:"OPSROOM_LOG_LEVEL" envDefault:"info"`
	Format string `env:"OPSROOM_LOG_FORMAT" envDefault:"text"`
}

// New builds a logger writing to w. When bridgeOTel is set, every record is
// also forwarded to the global OpenTelemetry logger provider under service.
func New(w io.Writer, cfg Config, service string, bridgeOTel bool) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	if bridgeOTel {
		handler = slog.NewMultiHandler(handler, otelslog.NewHandler(service))
	}
	return slog.New(handler).With("service", service), nil
}

// Install builds a logger and makes it the slog default.
func Install(w io.Writer, cfg Config, service string, bridgeOTel bool) (*slog.Logger, error) {
	logger, err := New(w, cfg, service, bridgeOTel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	value = strings.TrimSpace(value)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", value, err)
	}
	return level, nil
}
