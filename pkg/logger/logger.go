// Package logger provides the process-wide structured JSON logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry carrying the service field.
type Logger struct {
	*logrus.Entry
}

// New creates a new logger instance for the given service name.
func New(serviceName string) *Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Entry: log.WithField("service", serviceName)}
}

// WithRoom adds the room ID to log entries.
func (l *Logger) WithRoom(roomID string) *Logger {
	return &Logger{Entry: l.WithField("room_id", roomID)}
}

// WithUser adds the user ID to log entries.
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{Entry: l.WithField("user_id", userID)}
}

// Discard returns a logger that drops everything; used in tests.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &Logger{Entry: logrus.NewEntry(log)}
}
