// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/config"
)

// New builds a logger from config. Components derive their own entries via
// logger.WithField("component", ...).
func New(cfg config.Logging) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger.SetOutput(os.Stdout)
	return logger, nil
}
