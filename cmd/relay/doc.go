// Package main runs the murmur relay broker.
//
// The relay pairs exactly two websocket connections per room and forwards
// their payloads verbatim. It never sees plaintext or key material; payloads
// are sealed end to end by the peers.
//
// HTTP API
//
//	GET /ws
//	    Upgrade to a websocket carrying JSON frames:
//	    join{room}, joined{room,peers}, peer_joined, peer_left,
//	    message{payload}, error{message}.
//
//	GET /healthz
//	    {"status":"ok","rooms":N,"peers":M}
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - A third joiner is admitted only when an existing member fails its
//     liveness probe; otherwise it receives error{"room is full"}.
//   - Upgrades are rate limited per client IP.
//   - With --mdns the relay advertises itself as _murmur-relay._tcp so
//     `murmur discover` can find it on the LAN.
package main
