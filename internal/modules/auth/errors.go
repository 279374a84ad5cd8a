package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnverifiedAccount  = errors.New("please verify your email before logging in")
	ErrValidationFailed   = errors.New("validation failed")
	ErrDuplicateAccount   = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")

	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// ErrStorageUnavailable marks a failure the caller may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError names the registration rule that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// IsTokenRejection reports whether err must be answered with the uniform
// unauthorized response.
func IsTokenRejection(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked)
}
