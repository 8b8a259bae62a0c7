package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"murmur/internal/domain"
)

// Config tunes a relay server.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int64
	// RateLimit is websocket upgrades per second per remote address; zero
	// disables limiting.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  2 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxFrameBytes: 1 << 20,
		RateLimit:     5,
		RateBurst:     10,
	}
}

type joinRequest struct {
	Room string `validate:"required,max=128,printascii"`
}

// Server serves the relay websocket endpoint on top of a Hub.
type Server struct {
	hub      *Hub
	cfg      Config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	validate *validator.Validate
}

// NewServer wires a hub to websocket handling.
func NewServer(hub *Hub, cfg Config, log logrus.FieldLogger) *Server {
	def := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}
	return &Server{
		hub: hub,
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Rooms are the only access control; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		validate: validator.New(),
	}
}

// Router returns the gin engine serving /ws and /healthz.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	ws := []gin.HandlerFunc{}
	if s.cfg.RateLimit > 0 {
		ws = append(ws, NewIPRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst, time.Minute))
	}
	ws = append(ws, s.serveWS)
	r.GET("/ws", ws...)
	r.GET("/healthz", s.healthz)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	rooms, peers := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": rooms, "peers": peers})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Debug("upgrade failed")
		return
	}
	conn.SetReadLimit(s.cfg.MaxFrameBytes)

	p := newWSPeer(conn, s.cfg.WriteTimeout)
	go p.keepalive(s.cfg.ProbeInterval)
	defer func() {
		_ = p.Close()
		s.hub.Leave(p)
	}()

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(ctx, p, data)
	}
}

// dispatch handles one client frame. Every protocol violation is answered
// with an error frame and otherwise ignored.
func (s *Server) dispatch(ctx context.Context, p Peer, data []byte) {
	var f domain.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.reject(p, "invalid frame")
		return
	}
	switch f.Type {
	case domain.FrameJoin:
		if f.Room == "" {
			s.reject(p, ErrMissingRoom.Error())
			return
		}
		if err := s.validate.Struct(joinRequest{Room: string(f.Room)}); err != nil {
			s.reject(p, "invalid room")
			return
		}
		if err := s.hub.Join(ctx, p, f.Room); err != nil {
			s.reject(p, err.Error())
		}
	case domain.FrameMessage:
		if len(f.Payload) == 0 {
			s.reject(p, "invalid frame")
			return
		}
		if err := s.hub.Forward(p, f.Payload); errors.Is(err, ErrNotInRoom) {
			s.reject(p, err.Error())
		}
	default:
		s.reject(p, "unknown message type")
	}
}

func (s *Server) reject(p Peer, msg string) {
	s.log.WithField("reason", msg).Warn("rejecting frame")
	_ = p.Send(domain.Frame{Type: domain.FrameError, Message: msg})
}
