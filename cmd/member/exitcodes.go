package main

import (
	"errors"

	"github.com/polycle/member/internal/config"
	"github.com/polycle/member/internal/store"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing spreadsheet, credentials or secret)
	ExitDataError   = 3 // Data error (validation failure)
	ExitNotFound    = 4 // Record not found
)

// exitCodeFor classifies an error returned by the service packages.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrMissingSpreadsheet),
		errors.Is(err, config.ErrMissingCredentials),
		errors.Is(err, config.ErrMissingSecret):
		return ExitConfigError
	case errors.Is(err, store.ErrInvalid):
		return ExitDataError
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}
