// Package dialogue arbitrates spoken turns on the initiating side.
//
// Utterances are queued in arrival order and processed one at a time by the
// Arbiter's worker. Each turn sends ask_text with a fresh turn id, then
// collects text_stream chunks (reordered by index) and a terminal text_done.
// The legacy text_answer message is accepted as a done without a stream.
//
// Speech is delivered by a separate goroutine under a cancellable context.
// Submitting while an answer is being spoken cancels that delivery
// (barge-in): the interrupted turn is abandoned, its late messages are
// dropped by turn id, and the next queued utterance starts at once. Barge-in
// never cancels the remote invocation.
//
// A turn that sees no terminal message within the turn timeout is abandoned
// with a spoken error. When the executor reports compact_needed, the next
// turn is preceded by a session_compact carrying a summary of the transcript.
package dialogue
