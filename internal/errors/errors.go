package errors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrMalformedMessage  = errors.New("malformed clear-signed message")
	ErrVerification      = errors.New("signature verification failed")
	ErrInvalidLicense    = errors.New("invalid license payload")
	ErrSecretUnavailable = errors.New("license secret unavailable")
	ErrAccessDenied      = errors.New("license secret access denied")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeMalformed    ErrorType = "malformed"
	ErrorTypeVerification ErrorType = "verification"
	ErrorTypeDecode       ErrorType = "decode"
	ErrorTypeTransient    ErrorType = "transient"
	ErrorTypeAccess       ErrorType = "access"
)

// LicenseError is a structured error for license processing.
type LicenseError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "decode_armor", "verify_signature")
	Err       error  // Underlying error
	Retryable bool
}

func (e *LicenseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *LicenseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *LicenseError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrMalformedMessage:
		return e.Type == ErrorTypeMalformed
	case ErrVerification:
		return e.Type == ErrorTypeVerification
	case ErrInvalidLicense:
		return e.Type == ErrorTypeDecode
	case ErrSecretUnavailable:
		return e.Type == ErrorTypeTransient || e.Type == ErrorTypeAccess
	case ErrAccessDenied:
		return e.Type == ErrorTypeAccess
	}

	return errors.Is(e.Err, target)
}

// NewLicenseError creates a new LicenseError
func NewLicenseError(errorType ErrorType, op string, err error) *LicenseError {
	return &LicenseError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Retryable: errorType == ErrorTypeTransient,
	}
}

// Helper functions

// Malformed reports a structural problem with an armored clear-signed message.
func Malformed(op string, format string, args ...any) error {
	return NewLicenseError(ErrorTypeMalformed, op, fmt.Errorf(format, args...))
}

// Verification wraps a signature or trust anchor failure.
func Verification(op string, err error) error {
	return NewLicenseError(ErrorTypeVerification, op, err)
}

// Decode wraps a failure to turn a verified payload into a license.
func Decode(op string, err error) error {
	return NewLicenseError(ErrorTypeDecode, op, err)
}

// Transient wraps a secret store failure that is worth another attempt.
func Transient(op string, err error) error {
	return NewLicenseError(ErrorTypeTransient, op, err)
}

// AccessDenied wraps a secret store refusal. Another attempt will not help
// until permissions change.
func AccessDenied(op string, err error) error {
	return NewLicenseError(ErrorTypeAccess, op, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var licErr *LicenseError
	if errors.As(err, &licErr) {
		return licErr.Retryable
	}
	return errors.Is(err, ErrSecretUnavailable)
}
