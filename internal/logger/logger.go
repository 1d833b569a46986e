// Package logger builds the process-wide slog.Logger from configuration.
// A misconfigured logger never stops the process from starting: unknown
// levels fall back to info, unknown formats to text, and an unwritable
// log file to stdout.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler's level, encoding, and destination.
type Config struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
	Output string `mapstructure:"output"` // stdout | stderr | file
	// FilePath is the log file written when Output is "file".
	FilePath string `mapstructure:"file_path"`
}

const defaultFilePath = "codesentry.log"

// New builds a slog.Logger from cfg. A nil w lets cfg.Output pick the
// destination; tests pass their own writer.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = cfg.destination()
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) destination() io.Writer {
	switch c.Output {
	case "stderr":
		return os.Stderr
	case "file":
		path := c.FilePath
		if path == "" {
			path = defaultFilePath
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: cannot open %s, falling back to stdout: %v\n", path, err)
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}
