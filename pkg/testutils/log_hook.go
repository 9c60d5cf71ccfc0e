// Package testutils holds helpers shared by package tests.
package testutils

import (
	"github.com/sirupsen/logrus"
)

// LogChannel is a channel implementing logrus.Hook.
type LogChannel chan *logrus.Entry

// NewLogChannel creates a new LogChannel.
func NewLogChannel(bufSize int) LogChannel {
	return make(chan *logrus.Entry, bufSize)
}

// Fire implements the logrus.Hook interface. Entries are dropped once the buffer is full so a
// chatty component never blocks a test.
func (lc LogChannel) Fire(entry *logrus.Entry) error {
	select {
	case lc <- entry:
	default:
	}
	return nil
}

// Levels implements the logrus.Hook interface.
func (lc LogChannel) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Messages drains whatever is buffered and returns the messages at or above level.
func (lc LogChannel) Messages(level logrus.Level) []string {
	var out []string
	for {
		select {
		case e := <-lc:
			if e.Level <= level {
				out = append(out, e.Message)
			}
		default:
			return out
		}
	}
}
