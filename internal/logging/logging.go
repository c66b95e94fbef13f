// Package logging sets up structured logging for keeprag. Logs go to a
// rotating file as JSON; when stderr is an interactive terminal a text
// handler is mirrored there for readability, JSON otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB is the size before rotation.
	MaxSizeMB int
	// MaxFiles is how many rotated files to keep.
	MaxFiles int
	// Stderr mirrors log output to stderr.
	Stderr bool
}

// DefaultConfig returns the standard file-plus-stderr setup.
func DefaultConfig(level string) Config {
	if level == "" {
		level = "info"
	}
	return Config{
		Level:     level,
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
		Stderr:    true,
	}
}

// Setup initializes logging, installs the logger as the slog default, and
// returns a cleanup function that flushes and closes the log file.
func Setup(cfg Config) (func(), error) {
	level := parseLevel(cfg.Level)

	var writer *RotatingWriter
	var fileOut io.Writer
	if cfg.FilePath != "" {
		var err error
		writer, err = NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, err
		}
		fileOut = writer
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch {
	case fileOut != nil && cfg.Stderr:
		if interactive(os.Stderr) {
			// Readable stream for the terminal, JSON for the file.
			handler = tee{
				slog.NewTextHandler(os.Stderr, opts),
				slog.NewJSONHandler(fileOut, opts),
			}
		} else {
			handler = slog.NewJSONHandler(io.MultiWriter(fileOut, os.Stderr), opts)
		}
	case fileOut != nil:
		handler = slog.NewJSONHandler(fileOut, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	cleanup := func() {
		if writer != nil {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}
	return cleanup, nil
}

// interactive reports whether the writer is a terminal.
func interactive(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// parseLevel converts a string level to slog.Level. Unknown means info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
