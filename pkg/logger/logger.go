// Package logger builds the application zap logger.
package logger

import (
	"go.uber.org/zap"
)

// New returns a logger configured for the given environment: a human-readable
// development logger for "local", JSON production logging otherwise.
func New(env string) *zap.Logger {
	var log *zap.Logger
	var err error

	switch env {
	case "local":
		log, err = zap.NewDevelopment()
	default:
		log, err = zap.NewProduction()
	}
	if err != nil {
		// No logger to report with yet.
		panic("failed to initialize zap logger: " + err.Error())
	}

	return log
}
