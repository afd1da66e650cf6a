package apperror

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every failure crossing the token-refresh or
// ingestion boundary is classified into exactly one of these before it
// reaches a caller.
var (
	// ErrReauthRequired means the stored refresh token is missing or was
	// permanently rejected by the provider. Not retryable; the user must
	// go through the consent flow again.
	ErrReauthRequired = errors.New("reauthentication required")

	// ErrProviderUnavailable covers network failures, timeouts, rate
	// limits and malformed provider responses. Retryable; stored
	// credentials are left untouched.
	ErrProviderUnavailable = errors.New("provider unavailable")

	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError pairs a sentinel kind with a human-readable message.
type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ReauthRequired signals that no automatic retry can recover the stored
// credential for (user, provider).
func ReauthRequired(provider string) *AppError {
	return &AppError{
		Err:     ErrReauthRequired,
		Message: fmt.Sprintf("%s authorization expired, please reconnect the account", provider),
	}
}

// ProviderUnavailable wraps a transient vendor failure.
func ProviderUnavailable(provider string, cause error) *AppError {
	return &AppError{
		Err:     ErrProviderUnavailable,
		Message: fmt.Sprintf("%s is temporarily unavailable: %v", provider, cause),
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict: %s", resource, id),
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// IsRetryable reports whether the error is a transient provider failure
// that a caller may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
