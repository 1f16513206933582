// Package realtime is the per-user event bus. The Hub lives in the API
// process and is passed explicitly to whoever needs it; other processes
// reach it through a relay transport authenticated by a shared secret.
package realtime

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"sync"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/metrics"
)

var (
	ErrBusNotInitialized = errors.New("realtime bus not initialized")
	ErrRelayRejected     = errors.New("relay rejected")
	ErrFrameTooLarge     = errors.New("relay frame exceeds host read limit")
	ErrNoBusHost         = errors.New("no bus host subscribed")
)

// Publisher delivers a named event to one user's room. The hub itself, the
// websocket RelayClient and the RedisRelay all implement it.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any) error
}

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = (*RelayClient)(nil)
	_ Publisher = (*RedisRelay)(nil)
)

// Subscriber is one connected client. Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(f Frame) bool
	Close()
}

type Hub struct {
	secret []byte
	logger logger.Logger

	mu     sync.RWMutex
	rooms  map[string]map[string]Subscriber
	member map[string]map[string]struct{}
	closed bool
}

// NewHub creates the bus. An empty secret disables relaying.
func NewHub(secret string, log logger.Logger) *Hub {
	return &Hub{
		secret: []byte(secret),
		logger: logger.ForComponent(log, "realtime-hub"),
		rooms:  make(map[string]map[string]Subscriber),
		member: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Join(userID string, sub Subscriber) error {
	if h == nil {
		return ErrBusNotInitialized
	}
	if userID == "" {
		return apperrors.NewPayloadInvalidError([]string{"userId: required"})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrBusNotInitialized
	}

	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[userID] = room
	}
	room[sub.ID()] = sub

	rooms, ok := h.member[sub.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		h.member[sub.ID()] = rooms
	}
	rooms[userID] = struct{}{}
	metrics.HubSubscribers.Set(float64(len(h.member)))

	h.logger.Debug("subscriber joined room", map[string]interface{}{
		"subscriberId": sub.ID(),
		"userId":       userID,
	})
	return nil
}

// Leave removes sub from every room it joined.
func (h *Hub) Leave(sub Subscriber) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID := range h.member[sub.ID()] {
		room := h.rooms[userID]
		delete(room, sub.ID())
		if len(room) == 0 {
			delete(h.rooms, userID)
		}
	}
	delete(h.member, sub.ID())
	metrics.HubSubscribers.Set(float64(len(h.member)))
}

// Emit sends an event frame to every subscriber in the user's room and
// returns how many accepted it. An empty room is not an error.
func (h *Hub) Emit(userID, event string, payload json.RawMessage) (int, error) {
	if h == nil {
		return 0, ErrBusNotInitialized
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrBusNotInitialized
	}

	frame := Frame{Type: FrameEvent, UserID: userID, Event: event, Payload: payload}
	delivered := 0
	for _, sub := range h.rooms[userID] {
		if sub.Deliver(frame) {
			delivered++
		} else {
			h.logger.Warn("subscriber buffer full, event dropped", map[string]interface{}{
				"subscriberId": sub.ID(),
				"userId":       userID,
				"event":        event,
			})
		}
	}
	return delivered, nil
}

// Publish is the in-process transport used by a dispatcher running in the
// same process as the hub.
func (h *Hub) Publish(ctx context.Context, userID, event string, payload any) error {
	if h == nil {
		return ErrBusNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	_, err = h.Emit(userID, event, data)
	return err
}

// Relay emits on behalf of another process after checking its secret.
// Rejections are logged here and never forwarded.
func (h *Hub) Relay(ctx context.Context, env RelayEnvelope, transport string) (int, error) {
	if h == nil {
		return 0, ErrBusNotInitialized
	}

	if reason := h.checkSecret(env.Secret); reason != "" {
		metrics.RelayRejected.WithLabelValues(transport, reason).Inc()
		h.logger.Warn("relay request rejected", map[string]interface{}{
			"transport": transport,
			"reason":    reason,
			"userId":    env.UserID,
			"event":     env.Event,
		})
		return 0, apperrors.NewRelayRejectedError(reason, ErrRelayRejected)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	delivered, err := h.Emit(env.UserID, env.Event, env.Payload)
	if err != nil {
		return 0, err
	}
	metrics.RelayForwarded.WithLabelValues(transport).Inc()
	return delivered, nil
}

func (h *Hub) checkSecret(got string) string {
	switch {
	case len(h.secret) == 0:
		return "relay_disabled"
	case got == "":
		return "missing_secret"
	case subtle.ConstantTimeCompare([]byte(got), h.secret) != 1:
		return "bad_secret"
	}
	return ""
}

// Rooms returns subscriber counts per user.
func (h *Hub) Rooms() map[string]int {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.rooms))
	for userID, room := range h.rooms {
		out[userID] = len(room)
	}
	return out
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.member)
}

// Close disconnects every subscriber. Later calls fail with
// ErrBusNotInitialized.
func (h *Hub) Close() {
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	subs := make(map[string]Subscriber)
	for _, room := range h.rooms {
		for id, sub := range room {
			subs[id] = sub
		}
	}
	h.rooms = make(map[string]map[string]Subscriber)
	h.member = make(map[string]map[string]struct{})
	metrics.HubSubscribers.Set(0)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	h.logger.Info("realtime hub closed", map[string]interface{}{"subscribers": len(subs)})
}
