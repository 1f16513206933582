// Package errors provides the standardized error type used by the
// notification pipeline and its transports.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeStoreQueryFailed      ErrorCode = "STORE_QUERY_FAILED"
	ErrCodeClaimFailed           ErrorCode = "CLAIM_FAILED"
	ErrCodeMarkSentFailed        ErrorCode = "MARK_SENT_FAILED"
	ErrCodeUserLookupFailed      ErrorCode = "USER_LOOKUP_FAILED"
	ErrCodeRealtimePublishFailed ErrorCode = "REALTIME_PUBLISH_FAILED"
	ErrCodeBusNotInitialized     ErrorCode = "BUS_NOT_INITIALIZED"
	ErrCodeRelayRejected         ErrorCode = "RELAY_REJECTED"
	ErrCodeEmailSendFailed       ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeSMSSendFailed         ErrorCode = "SMS_SEND_FAILED"
	ErrCodePayloadInvalid        ErrorCode = "PAYLOAD_INVALID"
	ErrCodeConfigInvalid         ErrorCode = "CONFIG_INVALID"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, retryable bool, cause error) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// ==========================
// 2. Error Constructors
// ==========================

// NewStoreQueryFailedError wraps a failed read against the notification store.
func NewStoreQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeStoreQueryFailed, "Notification store query failed", true, err).
		WithMetadata("operation", operation)
}

// NewClaimFailedError wraps a failed atomic claim update.
func NewClaimFailedError(err error) *StandardError {
	return newError(ErrCodeClaimFailed, "Atomic claim update failed", true, err)
}

// NewMarkSentFailedError is logged when the finalize step fails; the record stays claimed.
func NewMarkSentFailedError(notificationID string, err error) *StandardError {
	return newError(ErrCodeMarkSentFailed, "Failed to mark notification as sent", true, err).
		WithMetadata("notificationId", notificationID)
}

func NewUserLookupFailedError(userID string, err error) *StandardError {
	return newError(ErrCodeUserLookupFailed, "Failed to load notification owner", true, err).
		WithMetadata("userId", userID)
}

func NewRealtimePublishFailedError(userID string, err error) *StandardError {
	return newError(ErrCodeRealtimePublishFailed, "Real-time publish failed", true, err).
		WithMetadata("userId", userID)
}

// NewBusNotInitializedError is returned when a publisher is used without a hub.
func NewBusNotInitializedError() *StandardError {
	return newError(ErrCodeBusNotInitialized, "Real-time bus not initialized", false, nil)
}

// NewRelayRejectedError marks an untrusted relay request. reason names the
// failed check; cause lets callers match a sentinel.
func NewRelayRejectedError(reason string, cause error) *StandardError {
	se := newError(ErrCodeRelayRejected, "Relay request rejected", false, cause)
	se.Details = reason
	return se.WithMetadata("reason", reason)
}

func NewEmailSendFailedError(to string, err error) *StandardError {
	return newError(ErrCodeEmailSendFailed, "Failed to send notification email", true, err).
		WithMetadata("to", to)
}

func NewSMSSendFailedError(err error) *StandardError {
	return newError(ErrCodeSMSSendFailed, "Failed to send notification SMS", true, err)
}

// NewPayloadInvalidError carries the validation messages in Details.
func NewPayloadInvalidError(problems []string) *StandardError {
	se := newError(ErrCodePayloadInvalid, "Payload failed validation", false, nil)
	se.Details = strings.Join(problems, "; ")
	return se
}

func NewConfigInvalidError(err error) *StandardError {
	return newError(ErrCodeConfigInvalid, "Invalid configuration", false, err)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	return newError(ErrCodeInternal, "Unexpected error", false, err)
}

// IsRetryable reports whether the next cycle may succeed where this one failed.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// HasCode reports whether err is a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	return stderrors.As(err, &se) && se.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "STORE") || codeStr == string(ErrCodeClaimFailed) || codeStr == string(ErrCodeMarkSentFailed):
		return "STORE"
	case strings.HasPrefix(codeStr, "USER"):
		return "DIRECTORY"
	case strings.Contains(codeStr, "REALTIME") || strings.Contains(codeStr, "BUS") || strings.Contains(codeStr, "RELAY"):
		return "REALTIME"
	case strings.HasPrefix(codeStr, "EMAIL") || strings.HasPrefix(codeStr, "SMS"):
		return "DELIVERY"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
