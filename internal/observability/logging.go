// Package observability wires structured logging and tracing for mnemo.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/paths"
)

const redactedValue = "[REDACTED]"

// Log files rotate past 5 MiB and keep three backups.
const (
	rotateAt     = 5 << 20
	keepRotated  = 3
	logFileMode  = 0o600
	logDirectory = 0o700
)

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Attribute keys containing any of these are logged as [REDACTED].
var secretKeyParts = []string{"authorization", "token", "api_key", "apikey", "secret", "credential", "password"}

type loggerKey struct{}

// Config selects where and how a mnemo invocation logs.
type Config struct {
	Level      string
	Format     string
	LogFile    string
	StderrMode string
	// InteractiveTTY marks commands that own the terminal; "auto" stderr
	// logging is off for them.
	InteractiveTTY bool
	SessionID      string
	CommandPath    string
	Version        string
	Commit         string
}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// Component tags logger with a component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With(slog.String("component", name))
}

// NewLogger builds the invocation logger and a func closing its log file.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(cfg.Level))]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", cfg.Level)
	}

	toStderr, err := stderrWanted(cfg.StderrMode, cfg.InteractiveTTY)
	if err != nil {
		return nil, nil, err
	}

	sinks, err := openSinks(toStderr, strings.TrimSpace(cfg.LogFile))
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}

	var handler slog.Handler

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		handler = slog.NewJSONHandler(sinks.writer(), opts)
	case "text":
		handler = slog.NewTextHandler(sinks.writer(), opts)
	default:
		_ = sinks.Close()
		return nil, nil, fmt.Errorf("invalid log format: %q (allowed: json, text)", cfg.Format)
	}

	logger := slog.New(handler).With(
		slog.String("session.id", cfg.SessionID),
		slog.String("command.path", cfg.CommandPath),
		slog.String("cli.version", cfg.Version),
		slog.String("cli.commit", cfg.Commit),
	)

	return logger, sinks.Close, nil
}

func stderrWanted(mode string, interactive bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return !interactive, nil
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}

	return false, fmt.Errorf("invalid --log-stderr value %q (allowed: auto, on, off)", mode)
}

type logSinks struct {
	stderr bool
	file   *os.File
}

// openSinks falls back to the state-dir log file when stderr is off and no
// file was named, so a logger always has somewhere to write.
func openSinks(toStderr bool, path string) (*logSinks, error) {
	s := &logSinks{stderr: toStderr}

	if path == "" && !toStderr {
		fallback, err := paths.DefaultLogFile()
		if err != nil {
			return nil, fmt.Errorf("no log sinks configured: set --log-file or enable --log-stderr: %w", err)
		}

		path = fallback
	}

	if path == "" {
		return s, nil
	}

	file, err := openLogFile(path)
	if err != nil {
		return nil, err
	}

	s.file = file

	return s, nil
}

func (s *logSinks) writer() io.Writer {
	switch {
	case s.file != nil && s.stderr:
		return io.MultiWriter(os.Stderr, s.file)
	case s.file != nil:
		return s.file
	default:
		return os.Stderr
	}
}

func (s *logSinks) Close() error {
	if s.file == nil {
		return nil
	}

	return s.file.Close()
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), logDirectory); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}

	if err := rotate(path, rotateAt, keepRotated); err != nil {
		return nil, fmt.Errorf("rotate log file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// rotate renames path to path.1 once it is larger than limit. Existing
// backups shift up by one and the one past backups is removed.
func rotate(path string, limit int64, backups int) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	if backups < 1 || info.Size() <= limit {
		return nil
	}

	backup := func(n int) string { return fmt.Sprintf("%s.%d", path, n) }

	if err := os.Remove(backup(backups)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	for n := backups - 1; n > 0; n-- {
		if err := os.Rename(backup(n), backup(n+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return os.Rename(path, backup(1))
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)

	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return slog.String(attr.Key, redactedValue)
		}
	}

	return attr
}
