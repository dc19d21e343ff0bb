package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Sensor
	ErrCodeSensorInvalidReading  ErrorCode = "sensor_invalid_reading"
	ErrCodeSensorHardwareFailure ErrorCode = "sensor_hardware_failure"

	// Indicators
	ErrCodeIndicatorWriteFailed ErrorCode = "indicator_write_failed"

	// Network
	ErrCodeNetworkNotConnected      ErrorCode = "network_not_connected"
	ErrCodeNetworkAssociationFailed ErrorCode = "network_association_failed"

	// Upstream (SMS gateway)
	ErrCodeUpstreamSMSRejected ErrorCode = "upstream_sms_rejected"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal
	ErrCodeConfigInvalid      ErrorCode = "config_invalid"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// Transient reports whether the code describes a condition that may clear on
// its own (connectivity, upstream outages). Nothing in the monitor retries on
// this basis; it only shapes log severity.
func (c ErrorCode) Transient() bool {
	s := string(c)
	switch {
	case s == string(ErrCodeUpstreamSMSRejected):
		return false
	case strings.HasPrefix(s, "upstream_"), strings.HasPrefix(s, "network_"):
		return true
	default:
		return false
	}
}

// AppError is the standard error type used throughout binwatch.
// Domain errors are expressed as AppError so the diagnostic log can report a
// stable code next to the human-readable message.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from anywhere in err's chain.
// Returns ErrCodeInternalUnexpected for non-nil errors that carry no AppError,
// and the empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
