package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options controls logger construction.
type Options struct {
	// Verbose lowers the level from Info to Debug.
	Verbose bool
	// File, when non-empty, duplicates log output to this path in append
	// mode so successive runs accumulate in one file.
	File string
}

// New builds the process logger: a text handler on stderr, optionally teeing
// into a log file. The returned close function releases the file and is safe
// to call when no file was opened.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	out := io.Writer(os.Stderr)
	closeFn := func() error { return nil }

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = f.Close
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}
