// Package logging builds the process-wide slog handler: colorized text on a
// terminal, JSON everywhere else.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Formats accepted by Config.Format.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects the handler and minimum level.
type Config struct {
	Level  string
	Format string
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger writing to out. In auto format the text handler is
// used only when out is a terminal.
func New(out io.Writer, cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch cfg.Format {
	case FormatText:
		h = textHandler(out, level)
	case FormatJSON:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "", FormatAuto:
		if isTerminal(out) {
			h = textHandler(out, level)
		} else {
			h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
		}
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: auto, text, json)", cfg.Format)
	}
	return slog.New(h), nil
}

func textHandler(out io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(out),
	})
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
