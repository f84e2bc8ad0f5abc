// Package logging hands out per-component logrus entries that share one
// configured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	root      = logrus.StandardLogger()
)

// Config holds the log settings read from the "log" config section
type Config struct {
	Level  string
	Format string
}

// Configure applies level and format to the shared logger.
// Unknown levels fall back to info; format is "text" (default) or "json".
func Configure(cfg Config) {
	ConfigureOutput(cfg, os.Stderr)
}

// ConfigureOutput is Configure with an explicit sink
func ConfigureOutput(cfg Config, out io.Writer) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	root.SetLevel(level)
	root.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
			DisableColors:   !isTerminal(out),
		})
	}
}

// NewLogger returns the logger for a component, creating it once
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := root.WithField("component", component)
	loggers[component] = logger
	return logger
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
