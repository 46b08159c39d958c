// Package notify carries short user-facing notifications out of the chat engine.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Level classifies a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Sink receives notifications. Notify must not block.
type Sink interface {
	Notify(message string, level Level)
}

// Func adapts a plain function to a Sink
type Func func(message string, level Level)

func (f Func) Notify(message string, level Level) {
	f(message, level)
}

// Multi fans a notification out to every sink in order
type Multi []Sink

func (m Multi) Notify(message string, level Level) {
	for _, s := range m {
		if s != nil {
			s.Notify(message, level)
		}
	}
}

// Discard drops every notification
var Discard Sink = Func(func(string, Level) {})

// LogSink writes notifications to a logrus logger
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink that logs at a level matching the notification
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(message string, level Level) {
	entry := s.logger.WithField("notification_level", string(level))
	switch level {
	case LevelError:
		entry.Warn(message)
	case LevelSuccess:
		entry.Info(message)
	default:
		entry.Debug(message)
	}
}

// Notification is one recorded call to Notify
type Notification struct {
	Message string
	Level   Level
}

// Recorder keeps every notification it receives
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(message string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, Level: level})
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Count returns how many notifications had the given level
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Level == level {
			n++
		}
	}
	return n
}
