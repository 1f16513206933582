package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"riseready-notifications/internal/common/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultAckTimeout bounds how long Publish waits for the host to answer.
const DefaultAckTimeout = 5 * time.Second

var (
	ErrConnectionLost = errors.New("bus host connection lost")
	ErrNotAcked       = errors.New("relay not acknowledged")
)

// RelayClient is the websocket transport of a process that does not host
// the bus. It publishes by asking the host to relay, waits for the host's
// answer, and redials lazily after a failure.
type RelayClient struct {
	url        string
	secret     string
	logger     logger.Logger
	dialer     *websocket.Dialer
	ackTimeout time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool

	pendingMu sync.Mutex
	pending   map[string]pendingRelay
}

type pendingRelay struct {
	ws    *websocket.Conn
	reply chan Frame
}

func NewRelayClient(url, secret string, log logger.Logger) *RelayClient {
	return &RelayClient{
		url:        url,
		secret:     secret,
		logger:     logger.ForComponent(log, "relay-client"),
		ackTimeout: DefaultAckTimeout,
		pending:    make(map[string]pendingRelay),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// SetAckTimeout changes how long Publish waits for the host's answer.
func (c *RelayClient) SetAckTimeout(d time.Duration) {
	if d > 0 {
		c.ackTimeout = d
	}
}

// Connect dials eagerly so startup can fail fast.
func (c *RelayClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

func (c *RelayClient) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.closed {
		return nil, ErrBusNotInitialized
	}
	if c.ws != nil {
		return c.ws, nil
	}

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus host %s: %w", c.url, err)
	}
	ws.SetReadLimit(maxMessageSize)
	c.ws = ws
	go c.readLoop(ws)

	c.logger.Info("connected to bus host", map[string]interface{}{"url": c.url})
	return ws, nil
}

// Publish sends a relay frame and waits for the host's ack. A rejection,
// a dropped connection or a missing ack is returned as an error.
func (c *RelayClient) Publish(ctx context.Context, userID, event string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	frame := Frame{
		Type:    FrameRelay,
		ID:      uuid.NewString(),
		UserID:  userID,
		Event:   event,
		Secret:  c.secret,
		Payload: data,
	}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal relay frame: %w", err)
	}
	if len(encoded) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(encoded), maxMessageSize)
	}

	reply := make(chan Frame, 1)
	ws, err := c.send(ctx, frame.ID, reply, encoded)
	if err != nil {
		return err
	}
	defer c.forget(frame.ID)

	wait := c.ackTimeout
	if d, ok := ctx.Deadline(); ok && time.Until(d) < wait {
		wait = time.Until(d)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f := <-reply:
		switch f.Type {
		case FrameAck:
			return nil
		case FrameError:
			if f.Error == ErrRelayRejected.Error() {
				return ErrRelayRejected
			}
			return fmt.Errorf("bus host refused relay: %s", f.Error)
		default:
			return ErrConnectionLost
		}
	case <-timer.C:
		// a host that stops answering is treated as gone
		c.mu.Lock()
		c.dropLocked(ws)
		c.mu.Unlock()
		return fmt.Errorf("%w within %s", ErrNotAcked, wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send registers the reply channel before writing so an ack can never
// arrive unclaimed.
func (c *RelayClient) send(ctx context.Context, id string, reply chan Frame, encoded []byte) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ws, err := c.connLocked(ctx)
	if err != nil {
		return nil, err
	}

	c.pendingMu.Lock()
	c.pending[id] = pendingRelay{ws: ws, reply: reply}
	c.pendingMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetWriteDeadline(deadline)

	if err := ws.WriteMessage(websocket.TextMessage, encoded); err != nil {
		c.forget(id)
		c.dropLocked(ws)
		return nil, fmt.Errorf("relay write: %w", err)
	}
	return ws, nil
}

func (c *RelayClient) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *RelayClient) readLoop(ws *websocket.Conn) {
	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			c.dropLocked(ws)
			closed := c.closed
			c.mu.Unlock()
			c.failPending(ws)
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("bus host connection lost", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if c.answer(f) {
			continue
		}
		if f.Type == FrameError {
			c.logger.Error("bus host sent an unmatched error", map[string]interface{}{
				"userId": f.UserID,
				"event":  f.Event,
				"error":  f.Error,
			})
		}
	}
}

func (c *RelayClient) answer(f Frame) bool {
	if f.ID == "" {
		return false
	}
	c.pendingMu.Lock()
	p, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.pendingMu.Unlock()
	if ok {
		p.reply <- f
	}
	return ok
}

// failPending wakes every Publish still waiting on ws.
func (c *RelayClient) failPending(ws *websocket.Conn) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, p := range c.pending {
		if p.ws != ws {
			continue
		}
		delete(c.pending, id)
		p.reply <- Frame{}
	}
}

func (c *RelayClient) dropLocked(ws *websocket.Conn) {
	if c.ws == ws {
		c.ws = nil
	}
	ws.Close()
}

func (c *RelayClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.ws == nil {
		return nil
	}

	ws := c.ws
	c.ws = nil
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return ws.Close()
}
