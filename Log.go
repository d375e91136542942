/*
File Name:  Log.go
Copyright:  2024 Cratenet s.r.o.

Structured logging for the backend. Messages carry the originating function as
a field. Output goes to the log file from the config, or stderr if none is set.
*/

package core

import (
	"os"

	"github.com/sirupsen/logrus"
)

// initLog creates the backend logger. It must be called before any Log function.
func (backend *Backend) initLog() (err error) {
	backend.log = logrus.New()
	backend.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if backend.Config.LogFile == "" {
		return nil
	}

	logFile, err := os.OpenFile(backend.Config.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	// The file remains open until the program closes.

	backend.log.SetOutput(logFile)
	backend.log.WithField("version", Version).Info("cratenet core started")

	return nil
}

// LogError logs an error message. The function name identifies the caller.
func (backend *Backend) LogError(function, format string, v ...interface{}) {
	backend.log.WithField("function", function).Errorf(format, v...)
}

// LogInfo logs an informational message. The function name identifies the caller.
func (backend *Backend) LogInfo(function, format string, v ...interface{}) {
	backend.log.WithField("function", function).Infof(format, v...)
}

// LogWarn logs a warning. The function name identifies the caller.
func (backend *Backend) LogWarn(function, format string, v ...interface{}) {
	backend.log.WithField("function", function).Warnf(format, v...)
}
