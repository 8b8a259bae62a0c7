package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"murmur/internal/domain"
)

const defaultWriteTimeout = 10 * time.Second

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("relay: connection closed")

// Dialer opens websocket connections to a relay.
type Dialer struct {
	WS           *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration
}

// NewDialer returns a Dialer with the given handshake timeout.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshakeTimeout
	return &Dialer{WS: &d, WriteTimeout: defaultWriteTimeout}
}

var _ domain.RelayDialer = (*Dialer)(nil)

// Dial connects to url, a ws:// or wss:// address of the relay's /ws endpoint.
func (d *Dialer) Dial(ctx context.Context, url string) (domain.RelayConn, error) {
	conn, resp, err := d.WS.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newConn(conn, d.WriteTimeout), nil
}

// Conn is a live relay connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	wmu    sync.Mutex
	pongs  chan struct{}
	closed chan struct{}
	once   sync.Once
}

var _ domain.RelayConn = (*Conn)(nil)

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	c := &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		pongs:        make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	ws.SetPongHandler(func(string) error {
		select {
		case c.pongs <- struct{}{}:
		default:
		}
		return nil
	})
	return c
}

// ReadFrame blocks until the next frame arrives.
func (c *Conn) ReadFrame(ctx context.Context) (domain.Frame, error) {
	var f domain.Frame
	stop := context.AfterFunc(ctx, func() { _ = c.ws.SetReadDeadline(time.Now()) })
	defer stop()
	if err := c.ws.ReadJSON(&f); err != nil {
		if ctx.Err() != nil {
			return f, ctx.Err()
		}
		return f, err
	}
	return f, nil
}

// WriteFrame sends f, honouring the context deadline when it is sooner than
// the write timeout.
func (c *Conn) WriteFrame(ctx context.Context, f domain.Frame) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(c.deadline(ctx))
	return c.ws.WriteJSON(f)
}

// Ping sends a websocket ping and waits for the pong.
func (c *Conn) Ping(ctx context.Context) error {
	select {
	case <-c.pongs:
	default:
	}
	if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline(ctx)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	select {
	case <-c.pongs:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a close frame when possible and releases the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}
