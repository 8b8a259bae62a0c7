package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"murmur/internal/backend"
	"murmur/internal/domain"
	"murmur/internal/relay"
	"murmur/internal/services/dialogue"
	"murmur/internal/services/identity"
	"murmur/internal/session"
	"murmur/internal/store"
)

// ErrNotPaired is returned when a command needs a pairing that does not exist.
var ErrNotPaired = errors.New("not paired; run `murmur pair <token>` first")

// Wire bundles the stores, services and clients for the CLI.
type Wire struct {
	Cfg      Config
	Log      logrus.FieldLogger
	Identity *identity.Service
	Pairings domain.PairingStore
	Dialer   domain.RelayDialer
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, log logrus.FieldLogger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	return &Wire{
		Cfg:      cfg,
		Log:      log,
		Identity: identity.New(store.NewIdentityFileStore(cfg.Home)),
		Pairings: store.NewPairingFileStore(filepath.Join(cfg.Home, "initiator")),
		Dialer:   relay.NewDialer(cfg.HandshakeTimeout),
	}, nil
}

// ExecutorPairings stores the room the executor advertises in its token. It
// is kept apart from the initiator's pairing so one home can hold both.
func (w *Wire) ExecutorPairings() domain.PairingStore {
	return store.NewPairingFileStore(filepath.Join(w.Cfg.Home, "executor"))
}

// Pairing loads the initiator's pairing.
func (w *Wire) Pairing() (domain.Pairing, error) {
	p, ok, err := w.Pairings.LoadPairing()
	if err != nil {
		return domain.Pairing{}, err
	}
	if !ok {
		return domain.Pairing{}, ErrNotPaired
	}
	return p, nil
}

// Backend builds the backend named in the config.
func (w *Wire) Backend() (backend.Backend, error) {
	switch w.Cfg.Backend {
	case "", "echo":
		return backend.Echo{}, nil
	case "command":
		if w.Cfg.BackendCommand == "" {
			return nil, errors.New("MURMUR_BACKEND_COMMAND is required for the command backend")
		}
		return backend.NewCommand(backend.CommandConfig{
			Command:    w.Cfg.BackendCommand,
			Args:       w.Cfg.BackendArgs,
			ResumeFlag: w.Cfg.ResumeFlag,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", w.Cfg.Backend)
	}
}

// Speaker builds the answer output named in the config.
func (w *Wire) Speaker(out io.Writer) (dialogue.Speaker, error) {
	switch w.Cfg.Speaker {
	case "", "print":
		return &dialogue.WriterSpeaker{W: out}, nil
	case "command":
		return dialogue.NewCommandSpeaker(w.Cfg.SpeakerCommand, w.Cfg.Voice, w.Cfg.SpeechRate)
	default:
		return nil, fmt.Errorf("unknown speaker %q", w.Cfg.Speaker)
	}
}

func (w *Wire) sessionConfig(role session.Role, p domain.Pairing, static domain.X25519Private) session.Config {
	cfg := session.Config{
		Role:              role,
		RelayURL:          p.RelayURL,
		Room:              p.Room,
		HandshakeTimeout:  w.Cfg.HandshakeTimeout,
		HeartbeatInterval: w.Cfg.HeartbeatInterval,
	}
	if role == session.RoleInitiator {
		cfg.PeerKey = p.ExecutorKey
	} else {
		cfg.Static = static
	}
	return cfg
}
