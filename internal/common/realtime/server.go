package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"riseready-notifications/internal/common/auth"
	"riseready-notifications/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Server accepts websocket clients for the hub at GET /realtime.
type Server struct {
	hub        *Hub
	verifier   *auth.Verifier
	logger     logger.Logger
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewServer(hub *Hub, verifier *auth.Verifier, sendBuffer int, log logger.Logger) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{
		hub:        hub,
		verifier:   verifier,
		logger:     logger.ForComponent(log, "realtime-server"),
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browsers connect from the web app's origin; tokens, not
			// origins, gate the rooms
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle is the gin handler for the websocket endpoint.
func (s *Server) Handle(c *gin.Context) {
	s.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var authedUser string
	if token := auth.BearerToken(r); token != "" && s.verifier != nil {
		claims, err := s.verifier.Verify(token)
		if err != nil {
			// still accepted; the client can join explicitly
			s.logger.Debug("bearer token rejected", map[string]interface{}{"error": err.Error()})
		} else {
			authedUser = claims.UserIdentity()
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	conn := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan Frame, s.sendBuffer),
		closed: make(chan struct{}),
		user:   authedUser,
	}

	if authedUser != "" {
		if err := s.hub.Join(authedUser, conn); err != nil {
			s.logger.Error("auto-join failed", map[string]interface{}{"userId": authedUser, "error": err.Error()})
			ws.Close()
			return
		}
	}

	s.logger.Debug("client connected", map[string]interface{}{
		"subscriberId":  conn.id,
		"authenticated": authedUser != "",
	})

	go conn.writePump()
	s.readPump(r.Context(), conn)
}

func (s *Server) readPump(ctx context.Context, c *conn) {
	defer func() {
		s.hub.Leave(c)
		c.Close()
		s.logger.Debug("client disconnected", map[string]interface{}{"subscriberId": c.id})
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("client read failed", map[string]interface{}{"subscriberId": c.id, "error": err.Error()})
			}
			return
		}

		frame, err := ParseClientFrame(data)
		if err != nil {
			c.Deliver(Frame{Type: FrameError, ID: frameID(data), Error: err.Error()})
			continue
		}

		switch frame.Type {
		case FrameJoin:
			s.handleJoin(c, frame)
		case FrameRelay:
			s.handleRelay(ctx, c, frame)
		}
	}
}

// handleJoin lets an unauthenticated client subscribe to a room, and an
// authenticated one only to its own.
func (s *Server) handleJoin(c *conn, f Frame) {
	if c.user != "" && c.user != f.UserID {
		c.Deliver(Frame{Type: FrameError, UserID: f.UserID, Error: "cannot join another user's room"})
		return
	}
	if err := s.hub.Join(f.UserID, c); err != nil {
		c.Deliver(Frame{Type: FrameError, ID: f.ID, UserID: f.UserID, Error: err.Error()})
		return
	}
	c.Deliver(Frame{Type: FrameAck, ID: f.ID, UserID: f.UserID})
}

func (s *Server) handleRelay(ctx context.Context, c *conn, f Frame) {
	delivered, err := s.hub.Relay(ctx, f.envelope(), "websocket")
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrRelayRejected) {
			// the reason stays in the host's log
			msg = ErrRelayRejected.Error()
		}
		c.Deliver(Frame{Type: FrameError, ID: f.ID, UserID: f.UserID, Event: f.Event, Error: msg})
		return
	}
	c.Deliver(Frame{Type: FrameAck, ID: f.ID, UserID: f.UserID, Event: f.Event, Delivered: &delivered})
}

// conn is a websocket subscriber. All writes happen on writePump.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan Frame
	user string

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Deliver(f Frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
