// Package relay provides the websocket implementation of domain.RelayDialer
// and domain.RelayConn used by both peers to reach the broker.
//
// A connection carries JSON text frames (domain.Frame). Reads are expected to
// happen on one goroutine; writes and pings may come from any goroutine.
// Ping relies on that reader being active, since pong frames are consumed on
// the read path.
//
// Cancelling the context passed to ReadFrame poisons the connection: gorilla
// read errors are permanent, so callers close the connection afterwards.
package relay
