// Package logging provides the engine's zap logger construction and the
// sanitization helpers used before logging connection strings, errors, and
// spreadsheet cell values.
package logging

import (
	"go.uber.org/zap"
)

// New builds the root logger for the given environment. Local environments
// get the human-readable development encoder; everything else logs
// structured JSON at info level.
func New(env string) (*zap.Logger, error) {
	if env == "local" || env == "test" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
