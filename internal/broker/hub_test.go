package broker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/broker"
	"murmur/internal/domain"
)

type fakePeer struct {
	mu           sync.Mutex
	frames       []domain.Frame
	dead         bool
	unresponsive bool
	closed       bool
}

func (f *fakePeer) Send(fr domain.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakePeer) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead && !f.closed
}

func (f *fakePeer) Probe(ctx context.Context) error {
	f.mu.Lock()
	stuck := f.unresponsive
	f.mu.Unlock()
	if stuck {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePeer) received() []domain.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Frame(nil), f.frames...)
}

func (f *fakePeer) types() []domain.FrameType {
	var out []domain.FrameType
	for _, fr := range f.received() {
		out = append(out, fr.Type)
	}
	return out
}

func newHub(t *testing.T) *broker.Hub {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return broker.NewHub(log, 50*time.Millisecond)
}

func TestHub_JoinSequence(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y := &fakePeer{}, &fakePeer{}

	require.NoError(t, h.Join(ctx, x, "r1"))
	assert.Equal(t, []domain.Frame{{Type: domain.FrameJoined, Room: "r1", Peers: 1}}, x.received())

	require.NoError(t, h.Join(ctx, y, "r1"))
	assert.Equal(t, []domain.FrameType{domain.FrameJoined, domain.FramePeerJoined}, x.types())
	assert.Equal(t, []domain.Frame{
		{Type: domain.FrameJoined, Room: "r1", Peers: 2},
		{Type: domain.FramePeerJoined},
	}, y.received())

	rooms, peers := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 2, peers)
}

func TestHub_RoomFull(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y, z := &fakePeer{}, &fakePeer{}, &fakePeer{}
	require.NoError(t, h.Join(ctx, x, "r1"))
	require.NoError(t, h.Join(ctx, y, "r1"))

	assert.ErrorIs(t, h.Join(ctx, z, "r1"), broker.ErrRoomFull)
	assert.Empty(t, z.received())
	assert.False(t, x.closed)
	assert.False(t, y.closed)
}

func TestHub_EvictsDeadMember(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y, z := &fakePeer{}, &fakePeer{}, &fakePeer{}
	require.NoError(t, h.Join(ctx, x, "r1"))
	require.NoError(t, h.Join(ctx, y, "r1"))

	y.mu.Lock()
	y.dead = true
	y.mu.Unlock()

	require.NoError(t, h.Join(ctx, z, "r1"))
	assert.True(t, y.closed)
	assert.Equal(t, []domain.FrameType{
		domain.FrameJoined, domain.FramePeerJoined, domain.FramePeerLeft, domain.FramePeerJoined,
	}, x.types())
	assert.Equal(t, domain.Frame{Type: domain.FrameJoined, Room: "r1", Peers: 2}, z.received()[0])
}

func TestHub_EvictsUnresponsiveMember(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y, z := &fakePeer{}, &fakePeer{unresponsive: true}, &fakePeer{}
	require.NoError(t, h.Join(ctx, x, "r1"))
	require.NoError(t, h.Join(ctx, y, "r1"))

	require.NoError(t, h.Join(ctx, z, "r1"))
	assert.True(t, y.closed)
	assert.False(t, x.closed)
}

func TestHub_Forward(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y := &fakePeer{}, &fakePeer{}
	payload := json.RawMessage(`{"type":"ask_text","encrypted":"AAAA"}`)

	assert.ErrorIs(t, h.Forward(x, payload), broker.ErrNotInRoom)

	require.NoError(t, h.Join(ctx, x, "r1"))
	require.NoError(t, h.Forward(x, payload), "alone: dropped silently")

	require.NoError(t, h.Join(ctx, y, "r1"))
	require.NoError(t, h.Forward(x, payload))
	got := y.received()
	last := got[len(got)-1]
	assert.Equal(t, domain.FrameMessage, last.Type)
	assert.JSONEq(t, string(payload), string(last.Payload))
	for _, fr := range x.received() {
		assert.NotEqual(t, domain.FrameMessage, fr.Type, "no echo to sender")
	}
}

func TestHub_LeaveNotifiesAndDiscardsRoom(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y := &fakePeer{}, &fakePeer{}
	require.NoError(t, h.Join(ctx, x, "r1"))
	require.NoError(t, h.Join(ctx, y, "r1"))

	h.Leave(y)
	assert.Equal(t, domain.FramePeerLeft, x.types()[len(x.types())-1])

	h.Leave(x)
	rooms, peers := h.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, peers)

	h.Leave(x) // idempotent
}

func TestHub_RejoinLeavesOldRoom(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	x, y := &fakePeer{}, &fakePeer{}
	require.NoError(t, h.Join(ctx, x, "a"))
	require.NoError(t, h.Join(ctx, y, "a"))

	require.NoError(t, h.Join(ctx, y, "b"))
	assert.Equal(t, domain.FramePeerLeft, x.types()[len(x.types())-1])
	rooms, peers := h.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 2, peers)
}

func TestHub_MissingRoom(t *testing.T) {
	h := newHub(t)
	assert.ErrorIs(t, h.Join(context.Background(), &fakePeer{}, ""), broker.ErrMissingRoom)
}

func TestHub_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Join(ctx, &fakePeer{}, "busy") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, broker.MaxPeers, admitted)
}
