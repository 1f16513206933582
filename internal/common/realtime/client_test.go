package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"riseready-notifications/internal/common/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentHost accepts websocket connections and hands each one to serve.
func silentHost(t *testing.T, serve func(ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRelayClient_PublishReachesRoom(t *testing.T) {
	bus := newTestBus(t)
	recipient := bus.dial(t, bus.token(t, "u-1"))
	waitForRoom(t, bus.hub, "u-1", 1)

	client := NewRelayClient(bus.wsURL, testSecret, logger.NewNoOpLogger())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Publish(context.Background(), "u-1", EventNotification, map[string]any{
		"id":    "n-1",
		"title": "Mock interview tomorrow",
	}))

	f := readFrame(t, recipient)
	assert.Equal(t, FrameEvent, f.Type)
	assert.JSONEq(t, `{"id":"n-1","title":"Mock interview tomorrow"}`, string(f.Payload))
}

func TestRelayClient_DialsLazily(t *testing.T) {
	bus := newTestBus(t)
	recipient := bus.dial(t, bus.token(t, "u-2"))
	waitForRoom(t, bus.hub, "u-2", 1)

	client := NewRelayClient(bus.wsURL, testSecret, logger.NewNoOpLogger())
	defer client.Close()

	require.NoError(t, client.Publish(context.Background(), "u-2", EventNotification, map[string]string{"id": "n-2"}))
	assert.Equal(t, FrameEvent, readFrame(t, recipient).Type)
}

func TestRelayClient_WrongSecretIsNotDelivered(t *testing.T) {
	bus := newTestBus(t)
	recipient := bus.dial(t, bus.token(t, "u-1"))
	waitForRoom(t, bus.hub, "u-1", 1)

	client := NewRelayClient(bus.wsURL, "not-the-secret", logger.NewNoOpLogger())
	defer client.Close()

	err := client.Publish(context.Background(), "u-1", EventNotification, map[string]string{"id": "n-3"})
	assert.ErrorIs(t, err, ErrRelayRejected)

	require.NoError(t, recipient.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = recipient.ReadMessage()
	assert.Error(t, err)
}

func TestRelayClient_UnreachableHost(t *testing.T) {
	client := NewRelayClient("ws://127.0.0.1:1/realtime", testSecret, logger.NewNoOpLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, client.Connect(ctx))
	assert.Error(t, client.Publish(ctx, "u-1", EventNotification, nil))
}

func TestRelayClient_Closed(t *testing.T) {
	client := NewRelayClient("ws://127.0.0.1:1/realtime", testSecret, logger.NewNoOpLogger())
	require.NoError(t, client.Close())

	err := client.Publish(context.Background(), "u-1", EventNotification, nil)
	assert.ErrorIs(t, err, ErrBusNotInitialized)
}

func TestRelayClient_OversizedFrameFailsAlone(t *testing.T) {
	bus := newTestBus(t)
	recipient := bus.dial(t, bus.token(t, "u-1"))
	waitForRoom(t, bus.hub, "u-1", 1)

	client := NewRelayClient(bus.wsURL, testSecret, logger.NewNoOpLogger())
	defer client.Close()

	big := map[string]string{"id": "n-big", "message": strings.Repeat("x", 70*1024)}
	err := client.Publish(context.Background(), "u-1", EventNotification, big)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// the next record still goes through on the same transport
	require.NoError(t, client.Publish(context.Background(), "u-1", EventNotification, map[string]string{"id": "n-small"}))
	f := readFrame(t, recipient)
	assert.JSONEq(t, `{"id":"n-small"}`, string(f.Payload))
}

func TestRelayClient_HostDropsConnection(t *testing.T) {
	url := silentHost(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
	})

	client := NewRelayClient(url, testSecret, logger.NewNoOpLogger())
	defer client.Close()

	err := client.Publish(context.Background(), "u-1", EventNotification, map[string]string{"id": "n-1"})
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestRelayClient_HostNeverAcks(t *testing.T) {
	url := silentHost(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewRelayClient(url, testSecret, logger.NewNoOpLogger())
	client.SetAckTimeout(100 * time.Millisecond)
	defer client.Close()

	err := client.Publish(context.Background(), "u-1", EventNotification, map[string]string{"id": "n-1"})
	assert.ErrorIs(t, err, ErrNotAcked)
}

func TestRelayClient_AcksCarryTheFrameID(t *testing.T) {
	bus := newTestBus(t)
	worker := bus.dial(t, "")

	send(t, worker, `{"type":"relay","id":"req-7","userId":"u-1","event":"notification","secret":"`+testSecret+`","payload":{}}`)
	f := readFrame(t, worker)
	assert.Equal(t, FrameAck, f.Type)
	assert.Equal(t, "req-7", f.ID)

	send(t, worker, `{"type":"relay","id":"req-8","userId":"u-1","secret":"x"}`)
	f = readFrame(t, worker)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, "req-8", f.ID)
}
