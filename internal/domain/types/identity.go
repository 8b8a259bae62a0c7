package types

// Identity holds the executor's long-lived X25519 key pair. The public half
// travels out of band inside the pairing token.
type Identity struct {
	XPub  X25519Public  `json:"xpub"`
	XPriv X25519Private `json:"xpriv"`
}
