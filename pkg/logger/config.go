package logger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log output formats.
const (
	TextFormat = "text"
	JSONFormat = "json"
)

// Config controls how the manager and worker daemons write their logs.
type Config struct {
	// Level is a logrus level name such as "info" or "debug".
	Level string `json:"level"`
	// Color only applies to the text format.
	Color  bool   `json:"color"`
	Format string `json:"format"`
}

// DefaultConfig logs colored text at info level.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Color:  true,
		Format: TextFormat,
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	var errs []error
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Format {
	case "", TextFormat, JSONFormat:
	default:
		errs = append(errs, errors.Errorf("unknown log format %q", c.Format))
	}
	return errs
}

// Configure points the global logrus logger at c. An empty format means text. The logger is left
// untouched when c is invalid.
func Configure(c Config) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return errors.Wrap(err, "configuring logger")
	}

	var formatter logrus.Formatter
	switch c.Format {
	case JSONFormat:
		formatter = &logrus.JSONFormatter{}
	case "", TextFormat:
		formatter = &logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   c.Color,
			DisableColors: !c.Color,
		}
	default:
		return errors.Errorf("unknown log format %q", c.Format)
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	return nil
}
