package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"murmur/internal/domain"
)

const identityFile = "identity.json.enc"

// ErrNoIdentity is returned when no identity has been created yet.
var ErrNoIdentity = errors.New("no identity found; run `murmur init` first")

// IdentityFileStore persists the executor identity encrypted on disk.
type IdentityFileStore struct {
	dir string
	kdf kdf
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, kdf: defaultKDF()}
}

// SaveIdentity encrypts id under passphrase and replaces any previous file.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	blob, err := seal(passphrase, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("encrypt identity: %w", err)
	}
	return writeFile(filepath.Join(s.dir, identityFile), blob, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := readFile(filepath.Join(s.dir, identityFile))
	if err != nil {
		return domain.Identity{}, err
	}
	if blob == nil {
		return domain.Identity{}, ErrNoIdentity
	}
	raw, err := unseal(passphrase, blob)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

var _ domain.IdentityStore = (*IdentityFileStore)(nil)
