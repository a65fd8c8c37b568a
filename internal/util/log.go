package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.Success.Println(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger prefixes every line with a fixed tag, e.g. a short session id.
type Logger struct {
	prefix string
}

// NewLogger returns a Logger that tags each line with "[prefix]".
func NewLogger(prefix string) *Logger {
	return &Logger{prefix: "[" + prefix + "] "}
}

func (l *Logger) Debug(format string, args ...any) { LogDebug(l.prefix+format, args...) }
func (l *Logger) Info(format string, args ...any)  { LogInfo(l.prefix+format, args...) }
func (l *Logger) Warn(format string, args ...any)  { LogWarning(l.prefix+format, args...) }
func (l *Logger) Error(format string, args ...any) { LogError(l.prefix+format, args...) }
