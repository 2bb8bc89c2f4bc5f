package lime2node

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/mdouchement/logger"
)

// ParseLogLevel maps the DEBUG, INFO and ALERT levels onto slog levels.
// Typos default to INFO.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "ALERT":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewConsoleLogger logs with colors on w.
func NewConsoleLogger(w io.Writer, level slog.Level) logger.Logger {
	h := logger.NewSlogTextHandler(w, &logger.SlogTextOption{
		Level:           level,
		ForceColors:     true,
		ForceFormatting: true,
		PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger.WrapSlogHandler(h)
}

// NewFileLogger logs without colors on w, suitable for a file read back by
// the relay.
func NewFileLogger(w io.Writer, level slog.Level) logger.Logger {
	h := logger.NewSlogTextHandler(w, &logger.SlogTextOption{
		Level:           level,
		ForceFormatting: true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger.WrapSlogHandler(h)
}

// OpenOperationLog acquires the bus mutex, then truncates and opens the log
// of the operation it guards. A busy bus leaves the log of the operation in
// flight untouched. An empty path or "stdout" selects stdout.
// The returned close function closes the log and releases the mutex.
func OpenOperationLog(mutex BusMutex, path string, level slog.Level) (logger.Logger, func() error, error) {
	lock, err := mutex.TryAcquire()
	if err != nil {
		return nil, nil, err
	}

	if path == "" || path == "stdout" {
		return NewConsoleLogger(os.Stdout, level), lock.Release, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	if err = f.Truncate(0); err != nil {
		f.Close()
		lock.Release()
		return nil, nil, err
	}

	return NewFileLogger(f, level), func() error {
		return errors.Join(f.Close(), lock.Release())
	}, nil
}
