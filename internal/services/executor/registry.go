package executor

import (
	"time"

	"github.com/patrickmn/go-cache"

	"murmur/internal/domain"
)

// conversation is what the executor remembers about one session id.
type conversation struct {
	// Initialized is set once a backend session exists to resume.
	Initialized bool
	// Active is cleared by session_end.
	Active bool
	// Backend is the backend's own session id.
	Backend domain.SessionID
	// Summary is injected into the next prompt, then cleared.
	Summary string
}

// registry tracks conversations, forgetting idle ones after ttl.
type registry struct {
	c *cache.Cache
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{c: cache.New(ttl, ttl*2)}
}

func (r *registry) get(id domain.SessionID) (conversation, bool) {
	v, ok := r.c.Get(string(id))
	if !ok {
		return conversation{}, false
	}
	return v.(conversation), true
}

func (r *registry) put(id domain.SessionID, c conversation) {
	r.c.SetDefault(string(id), c)
}
