package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"murmur/internal/domain"
)

const pairingFile = "pairing.json"

// PairingFileStore keeps the initiator's current pairing.
type PairingFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPairingFileStore returns a PairingFileStore rooted at dir.
func NewPairingFileStore(dir string) *PairingFileStore {
	return &PairingFileStore{dir: dir}
}

func (s *PairingFileStore) SavePairing(p domain.Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, pairingFile), p, 0o600)
}

// LoadPairing returns ok=false when the initiator has not been paired.
func (s *PairingFileStore) LoadPairing() (domain.Pairing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p domain.Pairing
	ok, err := readJSON(filepath.Join(s.dir, pairingFile), &p)
	if err != nil || !ok {
		return domain.Pairing{}, false, err
	}
	return p, true, nil
}

func (s *PairingFileStore) ClearPairing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, pairingFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var _ domain.PairingStore = (*PairingFileStore)(nil)
