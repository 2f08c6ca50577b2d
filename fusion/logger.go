package fusion

import (
	"github.com/fatih/color"
	"go.uber.org/zap"
)

// Logger encapsulates a Logger and module which it belongs to.
type Logger struct {
	*zap.SugaredLogger
	module string
}

// NewLogger wraps l for module.
func NewLogger(l *zap.SugaredLogger, module string) *Logger {
	return &Logger{SugaredLogger: l, module: module}
}

// Module returns (stylised) module name.
func (l *Logger) Module() string {
	return l.module
}

// with returns a logger for a sub-module sharing the same output.
func (l *Logger) with(module string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger, module: module}
}

var (
	modDriver    = color.BlueString("driver")
	modLegality  = color.YellowString("legal ")
	modTransform = color.GreenString("fuse  ")
)
