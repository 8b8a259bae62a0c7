package pairing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"murmur/internal/crypto"
	"murmur/internal/domain"
)

const (
	Scheme = "murmur"
	host   = "pair"
)

// ErrInvalidToken is returned for tokens that cannot be used to pair.
var ErrInvalidToken = errors.New("invalid pairing token")

type fields struct {
	Relay string `validate:"required,url"`
	Room  string `validate:"required,max=128,printascii"`
	Key   string `validate:"required"`
}

var validate = validator.New()

// NewRoomID returns a fresh random room identifier.
func NewRoomID() domain.RoomID {
	return domain.RoomID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Format renders p as a pairing token.
func Format(p domain.Pairing) string {
	q := url.Values{}
	q.Set("relay", p.RelayURL)
	q.Set("room", p.Room.String())
	q.Set("key", crypto.EncodePublic(p.ExecutorKey))
	u := url.URL{Scheme: Scheme, Host: host, RawQuery: q.Encode()}
	return u.String()
}

// Parse decodes a token produced by Format. CreatedUTC is left zero.
func Parse(token string) (domain.Pairing, error) {
	u, err := url.Parse(strings.TrimSpace(token))
	if err != nil {
		return domain.Pairing{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if u.Scheme != Scheme || u.Host != host {
		return domain.Pairing{}, fmt.Errorf("%w: expected %s://%s", ErrInvalidToken, Scheme, host)
	}
	q := u.Query()
	f := fields{Relay: q.Get("relay"), Room: q.Get("room"), Key: q.Get("key")}
	if err := validate.Struct(f); err != nil {
		return domain.Pairing{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	relay, err := url.Parse(f.Relay)
	if err != nil || (relay.Scheme != "ws" && relay.Scheme != "wss") {
		return domain.Pairing{}, fmt.Errorf("%w: relay must be a ws:// or wss:// url", ErrInvalidToken)
	}
	key, err := crypto.DecodePublic(f.Key)
	if err != nil {
		return domain.Pairing{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if key.IsZero() {
		return domain.Pairing{}, fmt.Errorf("%w: empty key", ErrInvalidToken)
	}
	return domain.Pairing{RelayURL: f.Relay, Room: domain.RoomID(f.Room), ExecutorKey: key}, nil
}
