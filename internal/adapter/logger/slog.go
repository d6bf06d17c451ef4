// Package logger adapts log/slog to the domain.Logger port. Format, level and
// destination come from the --logformat, --loglevel and --logoutput flags.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sharpinstall/internal/domain"
)

// Format names.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Slog writes structured log records through a slog.Logger.
type Slog struct {
	l *slog.Logger
}

// New creates a logger writing to w in the given format at the given level.
func New(w io.Writer, format string, level slog.Level) (*Slog, error) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case FormatText:
		h = slog.NewTextHandler(w, opts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return &Slog{l: slog.New(h)}, nil
}

// Discard returns a logger that drops everything.
func Discard() *Slog {
	return &Slog{l: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps debug|info|warn|error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// With returns a logger that adds args to every record.
func (s *Slog) With(args ...any) domain.Logger {
	return &Slog{l: s.l.With(args...)}
}

func (s *Slog) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *Slog) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *Slog) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *Slog) Error(msg string, args ...any) { s.l.Error(msg, args...) }
