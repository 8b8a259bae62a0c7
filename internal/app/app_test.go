package app_test

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/app"
	"murmur/internal/backend"
	"murmur/internal/broker"
	"murmur/internal/crypto"
	"murmur/internal/domain"
	"murmur/internal/pairing"
	"murmur/internal/services/dialogue"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MURMUR_HOME", home)
	t.Chdir(t.TempDir())

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.RelayURL)
	assert.Equal(t, "echo", cfg.Backend)
	assert.Equal(t, 150_000, cfg.CompactThreshold)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 120*time.Second, cfg.TurnTimeout)
	assert.NotEmpty(t, cfg.Name)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "murmur.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"MURMUR_HOME="+dir+"\n"+
			"MURMUR_BACKEND=command\n"+
			"MURMUR_BACKEND_COMMAND=claude\n"+
			"MURMUR_BACKEND_ARGS=-p --output-format json\n"+
			"MURMUR_TURN_TIMEOUT=45s\n"), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"MURMUR_HOME", "MURMUR_BACKEND", "MURMUR_BACKEND_COMMAND", "MURMUR_BACKEND_ARGS", "MURMUR_TURN_TIMEOUT"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "command", cfg.Backend)
	assert.Equal(t, []string{"-p", "--output-format", "json"}, cfg.BackendArgs)
	assert.Equal(t, 45*time.Second, cfg.TurnTimeout)

	_, err = app.LoadConfig(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadRelayConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MURMUR_RELAY_ADDR", ":9999")
	cfg, err := app.LoadRelayConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 10, cfg.Burst)
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	log, err := app.NewLogger("debug", true, &out)
	require.NoError(t, err)
	log.WithField("room", "r1").Debug("hello")
	assert.Contains(t, out.String(), `"room":"r1"`)

	_, err = app.NewLogger("loud", false, &out)
	assert.Error(t, err)
}

func TestWire_Components(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	w, err := app.NewWire(app.Config{Home: t.TempDir()}, log)
	require.NoError(t, err)

	b, err := w.Backend()
	require.NoError(t, err)
	assert.Equal(t, "echo", b.Name())

	w.Cfg.Backend = "command"
	_, err = w.Backend()
	assert.Error(t, err)
	w.Cfg.BackendCommand = "cat"
	b, err = w.Backend()
	require.NoError(t, err)
	assert.Equal(t, "cat", b.Name())

	sp, err := w.Speaker(io.Discard)
	require.NoError(t, err)
	assert.IsType(t, &dialogue.WriterSpeaker{}, sp)

	_, err = w.Pairing()
	assert.ErrorIs(t, err, app.ErrNotPaired)
}

func TestLineCapture(t *testing.T) {
	lines, err := app.LineCapture{R: strings.NewReader("one\ntwo\n")}.Start(context.Background())
	require.NoError(t, err)
	var got []string
	for l := range lines {
		got = append(got, l)
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestConversationThroughRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	srv := httptest.NewServer(broker.NewServer(broker.NewHub(log, time.Second), broker.DefaultConfig(), log).Router())
	t.Cleanup(srv.Close)

	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	p := domain.Pairing{
		RelayURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Room:        pairing.NewRoomID(),
		ExecutorKey: pub,
	}
	cfg := app.Config{
		Home:              t.TempDir(),
		Name:              "desk",
		HandshakeTimeout:  2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		BackendTimeout:    5 * time.Second,
		TurnTimeout:       5 * time.Second,
	}
	w, err := app.NewWire(cfg, log)
	require.NoError(t, err)

	execCtx, stopExec := context.WithCancel(context.Background())
	execDone := make(chan error, 1)
	go func() {
		execDone <- w.RunExecutor(execCtx, domain.Identity{XPub: pub, XPriv: priv}, p, backend.Echo{})
	}()
	t.Cleanup(stopExec)

	pr, pw := io.Pipe()
	var out, spoken syncBuffer
	initDone := make(chan error, 1)
	go func() {
		initDone <- w.RunInitiator(context.Background(), p, app.LineCapture{R: pr}, &dialogue.WriterSpeaker{W: &spoken}, &out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[connected to desk, echo backend]")
	}, 5*time.Second, 20*time.Millisecond)

	_, err = io.WriteString(pw, "hello there\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(spoken.String(), "You said: hello there")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, pw.Close())
	select {
	case err := <-initDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("initiator did not stop after input ended")
	}

	stopExec()
	select {
	case err := <-execDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop")
	}
}
