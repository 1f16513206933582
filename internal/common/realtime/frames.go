package realtime

import (
	"encoding/json"
	"fmt"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/validation"
)

type FrameType string

const (
	// client -> host
	FrameJoin  FrameType = "join"
	FrameRelay FrameType = "relay"
	// host -> client
	FrameEvent FrameType = "event"
	FrameAck   FrameType = "ack"
	FrameError FrameType = "error"
)

// EventNotification is the event name notifications are emitted under.
const EventNotification = "notification"

// Frame is the single message shape on the websocket.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Event     string          `json:"event,omitempty"`
	Secret    string          `json:"secret,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Delivered *int            `json:"delivered,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// RelayEnvelope asks the bus host to emit on behalf of another process.
type RelayEnvelope struct {
	Secret  string          `json:"secret"`
	UserID  string          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (f Frame) envelope() RelayEnvelope {
	return RelayEnvelope{Secret: f.Secret, UserID: f.UserID, Event: f.Event, Payload: f.Payload}
}

var (
	userIDProperty = validation.Property{Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(128)}
	eventProperty  = validation.Property{Type: "string", Pattern: validation.String(`^[A-Za-z][A-Za-z0-9:._-]{0,63}$`)}
	secretProperty = validation.Property{Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(512)}
	idProperty     = validation.Property{Type: "string", MaxLength: validation.Int(64)}

	clientFrameSchema = validation.MustCompile("client-frame", validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"type":    {Type: "string", Enum: []string{string(FrameJoin), string(FrameRelay)}},
			"id":      idProperty,
			"userId":  userIDProperty,
			"event":   eventProperty,
			"secret":  secretProperty,
			"payload": {},
		},
		Required:             []string{"type", "userId"},
		AdditionalProperties: validation.Bool(false),
	})

	envelopeSchema = validation.MustCompile("relay-envelope", validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"type":    {Type: "string", Enum: []string{string(FrameRelay)}},
			"id":      idProperty,
			"userId":  userIDProperty,
			"event":   eventProperty,
			"secret":  secretProperty,
			"payload": {},
		},
		Required:             []string{"userId", "event", "secret", "payload"},
		AdditionalProperties: validation.Bool(false),
	})
)

// ParseClientFrame validates and decodes a frame sent by a websocket client.
func ParseClientFrame(data []byte) (Frame, error) {
	if res := clientFrameSchema.ValidateBytes(data); !res.Valid {
		return Frame{}, apperrors.NewPayloadInvalidError(res.GetErrorMessages())
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, apperrors.NewPayloadInvalidError([]string{err.Error()})
	}

	if f.Type == FrameRelay {
		if res := envelopeSchema.ValidateBytes(data); !res.Valid {
			return Frame{}, apperrors.NewPayloadInvalidError(res.GetErrorMessages())
		}
	}
	return f, nil
}

// ParseEnvelope validates and decodes a relay envelope from a non-websocket
// transport.
func ParseEnvelope(data []byte) (RelayEnvelope, error) {
	if res := envelopeSchema.ValidateBytes(data); !res.Valid {
		return RelayEnvelope{}, apperrors.NewPayloadInvalidError(res.GetErrorMessages())
	}

	var env RelayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RelayEnvelope{}, apperrors.NewPayloadInvalidError([]string{err.Error()})
	}
	return env, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// frameID recovers the correlation id of a frame that failed validation so
// the sender can still match the error to its request.
func frameID(data []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	if len(head.ID) > 64 {
		return ""
	}
	return head.ID
}
