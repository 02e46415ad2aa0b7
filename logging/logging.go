// ABOUTME: Structured logger setup shared by the CLI, HTTP server, and MCP server
// ABOUTME: Installs a text or JSON slog handler on stderr as the process default
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/harperreed/crmsync/config"
)

// Configure sets up the default logger based on log configuration.
func Configure(cfg config.LogConfig) *slog.Logger {
	return ConfigureWriter(os.Stderr, cfg)
}

// ConfigureWriter is Configure with an explicit destination.
func ConfigureWriter(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Debug("logger configured",
		"level", cfg.Level.String(),
		"format", cfg.Format)

	return logger
}
