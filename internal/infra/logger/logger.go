package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"household_scheduler/internal/infra/config"
)

const serviceName = "household_scheduler"

// Log is the process-wide logger.
var Log = logrus.New()

var base = logrus.NewEntry(Log)

// Init applies LOG_LEVEL and picks JSON output outside development.
func Init(cfg *config.AppConfig) {
	InitWithOutput(cfg, os.Stdout)
}

// InitWithOutput is Init with an explicit sink.
func InitWithOutput(cfg *config.AppConfig, out io.Writer) {
	Log.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	env := strings.ToLower(cfg.Environment)
	if env == "production" || env == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	base = Log.WithFields(logrus.Fields{"service": serviceName, "environment": env})
	if err != nil {
		base.WithField("log_level", cfg.LogLevel).Warn("Unknown log level; using info")
	}
}

// Base returns the entry every component logger derives from.
func Base() *logrus.Entry {
	return base
}

// Component returns an entry scoped to one part of the service.
func Component(name string) *logrus.Entry {
	return base.WithField("component", name)
}
