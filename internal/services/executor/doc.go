// Package executor answers the initiator's questions on the executing side.
//
// Incoming ask_text messages are run through a Backend one at a time, across
// all conversations, via a single FIFO job queue. Partial sentences go back as
// text_stream messages indexed from zero; the final answer goes back as
// text_done with the trimmed text and the backend's usage.
//
// Per conversation the service remembers whether a backend session exists
// (initialized), whether the conversation was ended (active), and a pending
// compaction summary. A summary is prepended to the next prompt for that
// conversation once and then discarded.
//
// Failure handling: a backend error on a resumed session is retried once
// without the session; if that fails too, the error is reported as an
// ordinary text_done answer so the initiator can speak it.
package executor
