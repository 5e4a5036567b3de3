package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// newLogger returns a logrus logger writing diagnostics to w. verbose forces
// debug level regardless of level.
func newLogger(w io.Writer, level string, verbose bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if verbose {
		lvl = logrus.DebugLevel
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return log, nil
}
