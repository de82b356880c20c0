package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// NewLogger returns a console logger at the given level ("debug", "info", "warn", "error")
func NewLogger(level string) arbor.ILogger {
	if level == "" {
		level = "info"
	}
	return arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}).WithLevelFromString(level)
}

// NewSilentLogger returns a logger that discards everything, used as the
// default for components constructed without one
func NewSilentLogger() arbor.ILogger {
	return arbor.NewNoOpLogger()
}

// OrSilent returns logger, or a silent logger when it is nil
func OrSilent(logger arbor.ILogger) arbor.ILogger {
	if logger == nil {
		return NewSilentLogger()
	}
	return logger
}
