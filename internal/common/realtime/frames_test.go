package realtime

import (
	"encoding/json"
	"testing"

	apperrors "riseready-notifications/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    FrameType
		wantErr bool
	}{
		{name: "join", raw: `{"type":"join","userId":"u-1"}`, want: FrameJoin},
		{name: "relay", raw: `{"type":"relay","userId":"u-1","event":"notification","secret":"s","payload":{"id":"n"}}`, want: FrameRelay},
		{name: "relay without secret", raw: `{"type":"relay","userId":"u-1","event":"notification","payload":{}}`, wantErr: true},
		{name: "relay without payload", raw: `{"type":"relay","userId":"u-1","event":"notification","secret":"s"}`, wantErr: true},
		{name: "join without user", raw: `{"type":"join"}`, wantErr: true},
		{name: "empty user", raw: `{"type":"join","userId":""}`, wantErr: true},
		{name: "server frame type", raw: `{"type":"event","userId":"u-1"}`, wantErr: true},
		{name: "bad event name", raw: `{"type":"relay","userId":"u-1","event":"<script>","secret":"s","payload":1}`, wantErr: true},
		{name: "unknown field", raw: `{"type":"join","userId":"u-1","room":"x"}`, wantErr: true},
		{name: "not json", raw: `join u-1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseClientFrame([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePayloadInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Type)
			assert.Equal(t, "u-1", f.UserID)
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"secret":"s","userId":"u-1","event":"notification","payload":{"id":"n-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u-1", env.UserID)
	assert.JSONEq(t, `{"id":"n-1"}`, string(env.Payload))

	_, err = ParseEnvelope([]byte(`{"userId":"u-1","event":"notification","payload":{}}`))
	assert.Error(t, err)
}

func TestMarshalPayload(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	got, err := marshalPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = marshalPayload(struct {
		Title string `json:"title"`
	}{Title: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x"}`, string(got))
}
