// Package broker implements the relay: a rendezvous service that pairs at
// most two websocket connections per room and forwards opaque frames between
// them.
//
// # Frames
//
// Clients speak JSON text frames (domain.Frame):
//
//	→ join{room}            ← joined{room, peers}
//	                        ← peer_joined{} / peer_left{}
//	↔ message{payload}      ← error{message}
//
// The payload of a message frame is relayed verbatim. The broker never
// decodes it and holds no key material.
//
// # Rooms
//
// A room is created on first join and discarded when its last member leaves.
// A third join against a full room first evicts members whose transport is
// closed or who fail a liveness probe; if both members are live the joiner
// receives "room is full".
//
// # Liveness
//
// Every connection is pinged each probe interval. A connection that has not
// answered the previous ping by the next tick is terminated and its room
// vacated.
//
// # Concurrency
//
// The Hub map has its own mutex; each room serialises its own sends. Rooms
// never block each other. Each connection has one read goroutine and one
// keepalive goroutine; writes are guarded by a per-connection mutex.
package broker
