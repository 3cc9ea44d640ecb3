// Package log configures the logrus logger shared by every sitesync component.
package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// NewFormatter returns the formatter used by sitesync, JSON or plain text
func NewFormatter(jsonOutput bool) logrus.Formatter {
	if jsonOutput {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  timestampFormat,
		DisableColors:    true,
		QuoteEmptyFields: true,
	}
}

// Setup sets level and formatter of the standard logger
func Setup(level string, jsonOutput bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(NewFormatter(jsonOutput))
	logrus.SetOutput(os.Stdout)
	logrus.SetReportCaller(false)
	return nil
}

// Component returns an entry tagged with the component name
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
