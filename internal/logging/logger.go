// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"skillbase/internal/config"
)

// New returns a logger writing to stdout and, when configured, to a rotating
// file. The returned closer releases the file and is never nil.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		maxBytes := int64(cfg.MaxSizeMB) << 20
		if maxBytes <= 0 {
			maxBytes = 20 << 20
		}
		rf, err := OpenRotatingFile(cfg.File, maxBytes, cfg.MaxBackups)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, rf)
		closer = rf
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
