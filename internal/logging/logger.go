package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls where and how the process logs.
type Options struct {
	Level string
	// File receives JSON lines when set; otherwise logs go to Writer.
	File string
	// Writer defaults to stderr.
	Writer io.Writer
	// Pretty renders human-readable console output instead of JSON.
	Pretty bool
}

// New builds a logger from opts. The returned closer releases the log file.
func New(opts Options) (zerolog.Logger, func(), error) {
	closer := func() {}
	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("parse log level: %w", err)
	}

	var w io.Writer = os.Stderr
	if opts.Writer != nil {
		w = opts.Writer
	}
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, closer, err
		}
		closer = func() { _ = f.Close() }
		w = f
	case opts.Pretty:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return l, closer, nil
}

// Setup installs the logger built from opts as the global logger.
func Setup(opts Options) (func(), error) {
	l, closer, err := New(opts)
	if err != nil {
		return closer, err
	}
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return closer, nil
}

// Component creates a child of the global logger tagged with cmp=name.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}
