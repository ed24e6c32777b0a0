// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/config"
)

// New returns a logrus logger configured from cfg.  Every entry carries
// service and version fields.
func New(cfg config.LoggingConfig, version string) *logrus.Entry {
	return NewWithOutput(cfg, version, nil)
}

// NewWithOutput is New with an explicit writer; nil selects cfg.Output.
func NewWithOutput(cfg config.LoggingConfig, version string, out io.Writer) *logrus.Entry {
	l := logrus.New()

	if out == nil {
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			out = os.Stderr
		default:
			out = os.Stdout
		}
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return l.WithFields(logrus.Fields{
		"service": "biogate",
		"version": version,
	})
}
