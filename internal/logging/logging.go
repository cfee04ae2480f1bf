// Package logging builds the process logger. Components take a *log.Logger
// and log "component: message" lines; the lines are routed into zap.
package logging

import (
	"log"
	"strings"

	"go.uber.org/zap"
)

// New builds a zap logger. env "production" (or "prod") gives JSON output,
// anything else the development console encoder.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(env, "prod") || strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// Std wraps base in a *log.Logger that writes at info level.
func Std(base *zap.Logger) *log.Logger {
	return zap.NewStdLog(base)
}

// Install makes base the global zap logger and routes the standard
// library's default logger into it. The returned func restores both.
func Install(base *zap.Logger) func() {
	undoGlobals := zap.ReplaceGlobals(base)
	undoStd := zap.RedirectStdLog(base)
	return func() {
		undoStd()
		undoGlobals()
	}
}
