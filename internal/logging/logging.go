package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how the application logs.
type Options struct {
	FileName   string // rotated log file; empty disables file output
	MaxBytes   int    // size at which the file rotates
	MaxBackups int
	Level      string // debug, info, warn, error
	Format     string // console or json
	Console    bool   // also write to stderr
}

// New returns a logger writing according to opts, and the closer for the log
// file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if opts.FileName != "" {
		file := &lumberjack.Logger{
			Filename:   opts.FileName,
			MaxSize:    megabytes(opts.MaxBytes),
			MaxBackups: opts.MaxBackups,
		}
		closer = file
		writers = append(writers, formatWriter(file, opts.Format, true))
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, formatWriter(os.Stderr, opts.Format, false))
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()
	return logger, closer, nil
}

// parseLevel accepts zerolog's level names plus "warning"; empty means info.
func parseLevel(s string) (zerolog.Level, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}

func formatWriter(w io.Writer, format string, noColor bool) io.Writer {
	if strings.EqualFold(format, "json") {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05", NoColor: noColor}
}

// megabytes converts a byte limit to lumberjack's megabyte unit, rounding up.
func megabytes(n int) int {
	const mb = 1 << 20
	if n <= 0 {
		return 0
	}
	return (n + mb - 1) / mb
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
