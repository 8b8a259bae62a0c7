// Package session implements the per-peer connection and pairing lifecycle.
//
// # States
//
//	disconnected → connecting → connected → paired
//	paired → connecting      on transport loss, failed probe, or (initiator) peer_left
//	*      → disconnected    on Close, handshake timeout, or server_shutdown
//
// # Structure
//
// Machine is a pure transition function: Step takes one Event (start, dial
// result, relay frame, transport loss, probe failure, timer tick, send,
// close) and returns the Actions to perform. Timers are polled: the driver
// delivers EventTick periodically and the machine compares deadlines against
// the tick's timestamp, so a lost wake-up only delays a timeout by one tick.
//
// Peer is the driver. It runs the machine on one goroutine and performs the
// requested dials, writes and probes, feeding their outcomes back as events.
//
// # Generations
//
// Every dial increments a generation counter. Asynchronous results carry the
// generation they were issued under and are ignored once it is stale, so a
// restart or reconnect can never be disturbed by a late event from a previous
// attempt.
//
// # Keys
//
// The session key is owned by the machine. It is replaced on every pairing
// and wiped whenever the partner goes away; it is never reused across
// pairings.
package session
