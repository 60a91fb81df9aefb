// Package logger wires log/slog with tint for console output and JSON for
// collectors.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/codedrop-io/codedrop/internal/shared/config"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
)

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]struct{}{
	"token":       {},
	"api_key":     {},
	"feed_secret": {},
	"jwt_secret":  {},
	"password":    {},
}

const redacted = "[REDACTED]"

// Init configures the process-wide logger. Debug mode attaches the source
// location to every record; other modes only to warnings and errors.
func Init(cfg *config.LoggerConfig, mode string) error {
	level.Set(parseLevel(cfg.Level))

	w, err := openOutput(cfg.OutputPath)
	if err != nil {
		return err
	}

	sourceLevel := slog.LevelWarn
	if mode == "debug" {
		sourceLevel = slog.LevelDebug
	}

	setDefault(slog.New(withSource(newHandler(w, cfg.Format), sourceLevel)))
	return nil
}

// Get returns the process-wide logger, building a console logger on first
// use when Init was never called.
func Get() *slog.Logger {
	if defaultLogger == nil {
		setDefault(slog.New(withSource(newHandler(os.Stdout, "console"), slog.LevelWarn)))
	}
	return defaultLogger
}

// SetLevel changes the minimum level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

func setDefault(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}

func newHandler(w io.Writer, format string) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: redactAttr,
		})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.DateTime,
		NoColor:     !isTerminal(w),
		ReplaceAttr: consoleAttr,
	})
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

func openOutput(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[a.Key]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

// consoleAttr redacts secrets and renders errors with tint's styling.
func consoleAttr(groups []string, a slog.Attr) slog.Attr {
	a = redactAttr(groups, a)
	if a.Key == "error" && a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return tint.Err(err)
		}
	}
	return a
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
