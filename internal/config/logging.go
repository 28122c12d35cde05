package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logrus logger from the log section.
// With a file set, entries go to stderr and to a rotated log file.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	switch c.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	out := io.Writer(os.Stderr)
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		})
	}
	logger.SetOutput(out)

	return logger, nil
}
