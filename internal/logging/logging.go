package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
	maxLogAgeDays = 28
)

// Options configures the diagnostic logger. Diagnostics never go to stdout,
// which carries the JSON result.
type Options struct {
	Debug  bool
	File   string
	Stderr io.Writer
}

// New builds the run logger. Narration is logged at debug and info, so it
// is only visible with Debug set; warnings and errors always are.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := slog.LevelWarn
	if opts.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
