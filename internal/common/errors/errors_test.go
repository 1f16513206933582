package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type recordedEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	entries []recordedEntry
}

func (r *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	r.entries = append(r.entries, recordedEntry{"warn", msg, fields})
}

func (r *recordingLogger) Error(msg string, fields map[string]interface{}) {
	r.entries = append(r.entries, recordedEntry{"error", msg, fields})
}

// ==========================
// Tests
// ==========================

func TestStandardError_WrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewEmailSendFailedError("ada@example.com", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Equal(t, "ada@example.com", err.Metadata["to"])
	assert.Contains(t, err.Error(), "EMAIL_SEND_FAILED")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAsStandardError(t *testing.T) {
	assert.Nil(t, AsStandardError(nil))

	plain := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.False(t, plain.Retryable)

	wrapped := fmt.Errorf("cycle: %w", NewClaimFailedError(stderrors.New("deadlock")))
	se := AsStandardError(wrapped)
	assert.Equal(t, ErrCodeClaimFailed, se.Code)
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeClaimFailed))
	assert.False(t, HasCode(wrapped, ErrCodeMarkSentFailed))
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeStoreQueryFailed, "STORE"},
		{ErrCodeClaimFailed, "STORE"},
		{ErrCodeMarkSentFailed, "STORE"},
		{ErrCodeUserLookupFailed, "DIRECTORY"},
		{ErrCodeRealtimePublishFailed, "REALTIME"},
		{ErrCodeBusNotInitialized, "REALTIME"},
		{ErrCodeRelayRejected, "REALTIME"},
		{ErrCodeEmailSendFailed, "DELIVERY"},
		{ErrCodeSMSSendFailed, "DELIVERY"},
		{ErrCodePayloadInvalid, "VALIDATION"},
		{ErrCodeConfigInvalid, "VALIDATION"},
		{ErrCodeInternal, "OTHER"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.code))
		})
	}
}

func TestErrorHandler_HandleStepError(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	assert.Nil(t, h.HandleStepError("publish", nil, nil))

	se := h.HandleStepError("publish", NewRealtimePublishFailedError("user-1", stderrors.New("closed")),
		map[string]interface{}{"notificationId": "n-1"})
	require.NotNil(t, se)

	h.HandleStepError("relay", NewRelayRejectedError("bad_secret", nil), nil)

	require.Len(t, log.entries, 2)
	assert.Equal(t, "warn", log.entries[0].level)
	assert.Equal(t, "publish", log.entries[0].fields["step"])
	assert.Equal(t, "user-1", log.entries[0].fields["userId"])
	assert.Equal(t, "n-1", log.entries[0].fields["notificationId"])
	assert.Equal(t, "REALTIME", log.entries[0].fields["errorCategory"])

	assert.Equal(t, "error", log.entries[1].level)
	assert.Equal(t, "bad secret", log.entries[1].fields["details"])
}

func TestNewPayloadInvalidError(t *testing.T) {
	err := NewPayloadInvalidError([]string{"userId: is required", "event: is required"})
	assert.Equal(t, "userId: is required; event: is required", err.Details)
	assert.False(t, err.Retryable)
}
