package broker

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"murmur/internal/domain"
)

// MaxPeers is the room capacity.
const MaxPeers = 2

var (
	ErrRoomFull    = errors.New("room is full")
	ErrMissingRoom = errors.New("missing room")
	ErrNotInRoom   = errors.New("not in a room")
)

// Peer is one live connection as seen by the hub.
type Peer interface {
	// Send delivers a frame. It must be safe for concurrent use.
	Send(f domain.Frame) error
	// Alive reports whether the transport is still open.
	Alive() bool
	// Probe performs a round trip liveness check.
	Probe(ctx context.Context) error
	Close() error
}

type room struct {
	id     domain.RoomID
	mu     sync.Mutex
	peers  []Peer
	closed bool
}

// Hub maps room identifiers to their members.
type Hub struct {
	log          logrus.FieldLogger
	probeTimeout time.Duration

	mu    sync.Mutex
	rooms map[domain.RoomID]*room
	where map[Peer]*room
}

// NewHub returns an empty hub. probeTimeout bounds each liveness probe made
// while deciding whether a full room has a dead member.
func NewHub(log logrus.FieldLogger, probeTimeout time.Duration) *Hub {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Hub{
		log:          log,
		probeTimeout: probeTimeout,
		rooms:        make(map[domain.RoomID]*room),
		where:        make(map[Peer]*room),
	}
}

// Join admits p into room id. A peer already in a room leaves it first.
func (h *Hub) Join(ctx context.Context, p Peer, id domain.RoomID) error {
	if id == "" {
		return ErrMissingRoom
	}
	h.Leave(p)

	evicted := false
	for {
		r := h.room(id)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		if len(r.peers) < MaxPeers {
			h.admitLocked(r, p)
			r.mu.Unlock()
			return nil
		}
		members := append([]Peer(nil), r.peers...)
		r.mu.Unlock()

		if evicted {
			return ErrRoomFull
		}
		evicted = true
		stale := h.stale(ctx, members)
		if len(stale) == 0 {
			return ErrRoomFull
		}
		for _, s := range stale {
			h.log.WithField("room", id).Info("evicting unresponsive peer")
			_ = s.Close()
			h.remove(r, s)
		}
	}
}

// admitLocked adds p to r and sends the join notifications. r.mu is held.
func (h *Hub) admitLocked(r *room, p Peer) {
	others := append([]Peer(nil), r.peers...)
	r.peers = append(r.peers, p)

	h.mu.Lock()
	h.where[p] = r
	h.mu.Unlock()

	for _, o := range others {
		h.send(o, domain.Frame{Type: domain.FramePeerJoined})
	}
	h.send(p, domain.Frame{Type: domain.FrameJoined, Room: r.id, Peers: len(r.peers)})
	if len(others) > 0 {
		h.send(p, domain.Frame{Type: domain.FramePeerJoined})
	}
	h.log.WithFields(logrus.Fields{"room": r.id, "peers": len(r.peers)}).Debug("peer joined")
}

// Forward relays payload to every other member of p's room. It is dropped
// silently when p is alone.
func (h *Hub) Forward(p Peer, payload json.RawMessage) error {
	h.mu.Lock()
	r := h.where[p]
	h.mu.Unlock()
	if r == nil {
		return ErrNotInRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.peers, p) {
		return ErrNotInRoom
	}
	for _, o := range r.peers {
		if o != p {
			h.send(o, domain.Frame{Type: domain.FrameMessage, Payload: payload})
		}
	}
	return nil
}

// Leave removes p from its room, if any, and tells the remaining member.
func (h *Hub) Leave(p Peer) {
	h.mu.Lock()
	r := h.where[p]
	h.mu.Unlock()
	if r != nil {
		h.remove(r, p)
	}
}

// Stats reports the number of rooms and connected members.
func (h *Hub) Stats() (rooms, peers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms), len(h.where)
}

// Shutdown closes every member connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	all := make([]Peer, 0, len(h.where))
	for p := range h.where {
		all = append(all, p)
	}
	h.mu.Unlock()
	for _, p := range all {
		_ = p.Close()
		h.Leave(p)
	}
}

func (h *Hub) room(id domain.RoomID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = &room{id: id}
		h.rooms[id] = r
	}
	return r
}

func (h *Hub) remove(r *room, p Peer) {
	h.mu.Lock()
	if h.where[p] == r {
		delete(h.where, p)
	}
	h.mu.Unlock()

	r.mu.Lock()
	idx := slices.Index(r.peers, p)
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.peers = slices.Delete(r.peers, idx, idx+1)
	for _, o := range r.peers {
		h.send(o, domain.Frame{Type: domain.FramePeerLeft})
	}
	empty := len(r.peers) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	if empty {
		h.mu.Lock()
		if h.rooms[r.id] == r {
			delete(h.rooms, r.id)
		}
		h.mu.Unlock()
	}
	h.log.WithField("room", r.id).Debug("peer left")
}

// stale returns the members whose transport is closed or who fail a probe.
func (h *Hub) stale(ctx context.Context, members []Peer) []Peer {
	var (
		mu  sync.Mutex
		out []Peer
		wg  sync.WaitGroup
	)
	for _, m := range members {
		if !m.Alive() {
			mu.Lock()
			out = append(out, m)
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(m Peer) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
			defer cancel()
			if err := m.Probe(pctx); err != nil {
				mu.Lock()
				out = append(out, m)
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()
	return out
}

func (h *Hub) send(p Peer, f domain.Frame) {
	if err := p.Send(f); err != nil {
		h.log.WithError(err).WithField("type", f.Type).Debug("send failed")
	}
}
