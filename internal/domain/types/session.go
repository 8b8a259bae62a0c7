package types

// Pairing is what the initiator learns from a pairing token: where the relay
// lives, which room to join and the executor's static public key.
type Pairing struct {
	RelayURL    string       `json:"relay_url"`
	Room        RoomID       `json:"room"`
	ExecutorKey X25519Public `json:"executor_key"`
	CreatedUTC  int64        `json:"created_utc"`
}
