package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"murmur/internal/domain"
)

var errClosed = errors.New("connection closed")

// wsPeer adapts a gorilla websocket connection to Peer.
type wsPeer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	wmu    sync.Mutex
	open   atomic.Bool
	alive  atomic.Bool // pong seen since the last keepalive ping
	pongs  chan struct{}
	closed chan struct{}
	once   sync.Once
}

// Compile-time assertion that wsPeer implements Peer.
var _ Peer = (*wsPeer)(nil)

func newWSPeer(conn *websocket.Conn, writeTimeout time.Duration) *wsPeer {
	p := &wsPeer{
		conn:         conn,
		writeTimeout: writeTimeout,
		pongs:        make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	p.open.Store(true)
	p.alive.Store(true)
	conn.SetPongHandler(func(string) error {
		p.alive.Store(true)
		select {
		case p.pongs <- struct{}{}:
		default:
		}
		return nil
	})
	return p
}

func (p *wsPeer) Send(f domain.Frame) error {
	if !p.open.Load() {
		return errClosed
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteJSON(f)
}

func (p *wsPeer) Alive() bool { return p.open.Load() }

func (p *wsPeer) Probe(ctx context.Context) error {
	select {
	case <-p.pongs:
	default:
	}
	if err := p.ping(); err != nil {
		return err
	}
	select {
	case <-p.pongs:
		return nil
	case <-p.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *wsPeer) Close() error {
	var err error
	p.once.Do(func() {
		p.open.Store(false)
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}

func (p *wsPeer) ping() error {
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.writeTimeout))
}

// keepalive pings every interval and terminates the connection when the
// previous ping went unanswered.
func (p *wsPeer) keepalive(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.closed:
			return
		case <-t.C:
			if !p.alive.Swap(false) {
				_ = p.Close()
				return
			}
			if err := p.ping(); err != nil {
				_ = p.Close()
				return
			}
		}
	}
}
