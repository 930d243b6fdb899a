package cli

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for --log-file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 5
	logMaxAgeDays = 30
)

// newLogger builds the process logger. Logs go to stderr as text, or to
// a size-rotated JSON file when --log-file is set. --verbose lowers the
// level to debug. The returned closer releases the log file.
func newLogger(opts *RootOptions, stderr io.Writer) (*slog.Logger, io.Closer) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	if opts.LogFile == "" {
		return slog.New(slog.NewTextHandler(stderr, handlerOpts)), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	}
	return slog.New(slog.NewJSONHandler(rotator, handlerOpts)), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
