// Package logging provides the structured logger shared by every service
// binary in this module.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/mattw23n/emergency-dispatch-app/pkg/config"
)

type (
	Logger = *logrus.Logger
	Fields = logrus.Fields
	Level  = logrus.Level
)

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// NewLogger returns a JSON-formatted logger at the level named by LOG_LEVEL.
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService returns a logger that tags every entry with "service".
func NewLoggerWithService(serviceName string) Logger {
	logger := NewLogger()
	return withService(logger, serviceName)
}

func withService(logger *logrus.Logger, serviceName string) *logrus.Logger {
	logger.AddHook(&serviceHook{service: serviceName})
	return logger
}

// serviceHook stamps every entry with the owning service name, the way a
// single shared logrus.Logger can be reused across goroutines without each
// call site repeating WithField("service", ...).
type serviceHook struct {
	service string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}
