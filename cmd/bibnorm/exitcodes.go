package main

import (
	"errors"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/reference"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (no repository, invalid config, missing credentials)
	ExitDataError   = 3 // Data error (malformed input, validation failure)
	ExitNotFound    = 4 // Requested record does not exist
)

// exitCodeFor maps an error to the exit code of its class.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, reference.ErrValidation):
		return ExitDataError
	case errors.Is(err, reference.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, config.ErrNotRepository),
		errors.Is(err, config.ErrBackupNotConfigured),
		errors.Is(err, config.ErrPostgresNotConfigured):
		return ExitConfigError
	default:
		return ExitError
	}
}
