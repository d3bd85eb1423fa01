package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeanpaul/jarbas/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds the process logger from cfg and installs it as the global
// zerolog logger. The returned closer releases a log file, if one was opened.
func Init(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	return initWith(cfg, nil)
}

// initWith lets tests redirect stdout/stderr output.
func initWith(cfg config.LogConfig, override io.Writer) (zerolog.Logger, io.Closer, error) {
	lvl := cfg.Level
	if lvl == "" {
		lvl = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(lvl))
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(cfg.TimeFormat) {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var output io.Writer
	var closer io.Closer = nopCloser{}
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log output is file but no file_path is set")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
		}
		output, closer = file, file
	default:
		output = os.Stderr
	}
	if override != nil {
		output = override
	}

	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = l

	l.Debug().
		Str("level", lvl).
		Str("format", cfg.Format).
		Str("output", cfg.Output).
		Msg("logger initialized")
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
