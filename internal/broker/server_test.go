package broker_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/broker"
	"murmur/internal/domain"
)

func startRelay(t *testing.T) (*httptest.Server, *broker.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	hub := broker.NewHub(log, 200*time.Millisecond)
	cfg := broker.DefaultConfig()
	cfg.RateLimit = 0
	srv := httptest.NewServer(broker.NewServer(hub, cfg, log).Router())
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, c *websocket.Conn, f domain.Frame) {
	t.Helper()
	require.NoError(t, c.WriteJSON(f))
}

func sendRaw(t *testing.T, c *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(s)))
}

func recv(t *testing.T, c *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f domain.Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestRelay_PairAndForward(t *testing.T) {
	srv, _ := startRelay(t)
	x, y := dial(t, srv), dial(t, srv)

	send(t, x, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	assert.Equal(t, domain.Frame{Type: domain.FrameJoined, Room: "r1", Peers: 1}, recv(t, x))

	send(t, y, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	assert.Equal(t, domain.FramePeerJoined, recv(t, x).Type)
	assert.Equal(t, domain.Frame{Type: domain.FrameJoined, Room: "r1", Peers: 2}, recv(t, y))
	assert.Equal(t, domain.FramePeerJoined, recv(t, y).Type)

	payload := json.RawMessage(`{"type":"ask_text","encrypted":"b3BhcXVl"}`)
	send(t, x, domain.Frame{Type: domain.FrameMessage, Payload: payload})
	got := recv(t, y)
	assert.Equal(t, domain.FrameMessage, got.Type)
	assert.JSONEq(t, string(payload), string(got.Payload))

	require.NoError(t, y.Close())
	assert.Equal(t, domain.FramePeerLeft, recv(t, x).Type)
}

func TestRelay_EvictsPeerThatStopsAnswering(t *testing.T) {
	srv, _ := startRelay(t)
	x, y, z := dial(t, srv), dial(t, srv), dial(t, srv)

	send(t, x, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	recv(t, x)
	send(t, y, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	recv(t, x)
	recv(t, y)
	recv(t, y)

	// y keeps reading so its client answers pings; x never reads again.
	frames := make(chan domain.Frame, 8)
	go func() {
		defer close(frames)
		for {
			var f domain.Frame
			if err := y.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
		}
	}()

	send(t, z, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	assert.Equal(t, domain.Frame{Type: domain.FrameJoined, Room: "r1", Peers: 2}, recv(t, z))
	assert.Equal(t, domain.FramePeerJoined, recv(t, z).Type)

	var seen []domain.FrameType
	timeout := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case f := <-frames:
			seen = append(seen, f.Type)
		case <-timeout:
			t.Fatalf("y saw %v", seen)
		}
	}
	assert.Equal(t, []domain.FrameType{domain.FramePeerLeft, domain.FramePeerJoined}, seen)
}

func TestRelay_ProtocolErrors(t *testing.T) {
	srv, _ := startRelay(t)
	c := dial(t, srv)

	sendRaw(t, c, "{not json")
	assert.Equal(t, domain.Frame{Type: domain.FrameError, Message: "invalid frame"}, recv(t, c))

	send(t, c, domain.Frame{Type: "dance"})
	assert.Equal(t, "unknown message type", recv(t, c).Message)

	send(t, c, domain.Frame{Type: domain.FrameJoin})
	assert.Equal(t, "missing room", recv(t, c).Message)

	send(t, c, domain.Frame{Type: domain.FrameMessage, Payload: json.RawMessage(`{}`)})
	assert.Equal(t, "not in a room", recv(t, c).Message)

	// The connection survives every violation.
	send(t, c, domain.Frame{Type: domain.FrameJoin, Room: "ok"})
	assert.Equal(t, domain.FrameJoined, recv(t, c).Type)
}

func TestRelay_FullRoomWithLivePeers(t *testing.T) {
	srv, _ := startRelay(t)
	x, y, z := dial(t, srv), dial(t, srv), dial(t, srv)
	for _, c := range []*websocket.Conn{x, y} {
		send(t, c, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	}
	recv(t, x)
	recv(t, x)
	recv(t, y)
	recv(t, y)
	for _, c := range []*websocket.Conn{x, y} {
		go func(c *websocket.Conn) {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}(c)
	}

	send(t, z, domain.Frame{Type: domain.FrameJoin, Room: "r1"})
	assert.Equal(t, domain.Frame{Type: domain.FrameError, Message: "room is full"}, recv(t, z))
}

func TestRelay_Healthz(t *testing.T) {
	srv, _ := startRelay(t)
	c := dial(t, srv)
	send(t, c, domain.Frame{Type: domain.FrameJoin, Room: "h"})
	recv(t, c)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
		Peers  int    `json:"peers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Rooms)
	assert.Equal(t, 1, body.Peers)
}
