package types

import "time"

// Utterance is one unit of spoken or typed input. Seq is its arrival order.
type Utterance struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Turn is one request/response pair of a conversation.
type Turn struct {
	ID        TurnID    `json:"id"`
	Utterance Utterance `json:"utterance"`
	Chunks    []string  `json:"chunks,omitempty"`
	Answer    string    `json:"answer"`
	Usage     *Usage    `json:"usage,omitempty"`
	Err       string    `json:"err,omitempty"`
}
