package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Persistence errors
	ErrPersistFailed = fmt.Errorf("failed to persist rows")
	ErrRunNotFound   = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// IsSetupFailure reports whether err is an unrecoverable setup failure (credentials, token acquisition, configuration).
//
// Collection halts on these; every other provider error is treated as a gap in the data.
func IsSetupFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrMissingConfig, ErrInvalidConfig, ErrMissingCredentials,
		ErrAuthFailed, ErrNotAuthenticated, ErrTokenExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
