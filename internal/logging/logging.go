package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/autoguides/contentfix/internal/config"
)

const serviceName = "contentfix"

// New constructs a slog.Logger writing to stdout, configured according to the
// provided settings.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination. Every record carries the
// service name so pipeline logs can be filtered out of shared sinks.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	handler, err := buildHandler(cfg, w)
	if err != nil {
		return nil, err
	}

	return slog.New(handler).With("service", serviceName), nil
}

func buildHandler(cfg config.LoggingConfig, w io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
