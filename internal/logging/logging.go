// Package logging builds the logrus loggers used by the CLI and the daemon.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name. Empty means warn.
	Level string
	// Verbose forces debug level.
	Verbose bool
	// JSON selects logrus.JSONFormatter instead of text.
	JSON bool
	// File, when set, writes through a rotating log file instead of Out.
	File string
	// Out defaults to stderr.
	Out io.Writer
}

// New creates a logger. The caller should Close it when File is set.
func New(opts Options) (*logrus.Logger, error) {
	level := logrus.WarnLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: opts.File == "",
			FullTimestamp:    true,
		})
	}

	switch {
	case opts.File != "":
		logger.SetOutput(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	case opts.Out != nil:
		logger.SetOutput(opts.Out)
	default:
		logger.SetOutput(os.Stderr)
	}
	return logger, nil
}

// Close releases a log file opened by New. Loggers writing to a plain
// stream are left alone.
func Close(logger *logrus.Logger) error {
	if rotating, ok := logger.Out.(*lumberjack.Logger); ok {
		return rotating.Close()
	}
	return nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
