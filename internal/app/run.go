package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"murmur/internal/backend"
	"murmur/internal/domain"
	"murmur/internal/services/dialogue"
	"murmur/internal/services/executor"
	"murmur/internal/session"
)

const goodbyeTimeout = 2 * time.Second

// RunExecutor connects as the executor of p and serves questions from b
// until ctx is done. A paired initiator is told about the shutdown.
func (w *Wire) RunExecutor(ctx context.Context, id domain.Identity, p domain.Pairing, b backend.Backend) error {
	log := w.Log.WithFields(logrus.Fields{"role": session.RoleExecutor, "room": p.Room})
	peer := session.NewPeer(w.sessionConfig(session.RoleExecutor, p, id.XPriv), w.Dialer, log)
	svc := executor.New(b, peer, executor.Config{
		Name:             w.Cfg.Name,
		Version:          Version,
		CompactThreshold: w.Cfg.CompactThreshold,
		BackendTimeout:   w.Cfg.BackendTimeout,
	}, log)

	var wg sync.WaitGroup
	defer wg.Wait()
	// The peer outlives ctx long enough to deliver server_shutdown.
	peerCtx, stopPeer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPeer()

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = peer.Run(peerCtx)
	}()
	go func() {
		defer wg.Done()
		svc.Run(ctx)
	}()
	peer.Start()

	for {
		select {
		case <-ctx.Done():
			svc.Close()
			if peer.State() == session.StatePaired {
				bye, cancel := context.WithTimeout(peerCtx, goodbyeTimeout)
				if err := svc.Shutdown(bye); err != nil {
					log.WithError(err).Debug("shutdown notice not sent")
				}
				cancel()
			}
			peer.Close()
			return nil

		case msg, ok := <-peer.Messages():
			if !ok {
				svc.Close()
				return session.ErrClosed
			}
			if err := svc.Handle(ctx, msg); err != nil && !errors.Is(err, executor.ErrUnknownMessage) {
				log.WithError(err).Warn("message not queued")
			}

		case st := <-peer.Status():
			switch st.Kind {
			case session.StatusPaired:
				log.Info("paired with initiator")
				if err := svc.Paired(ctx); err != nil {
					log.WithError(err).Warn("server_info not sent")
				}
			case session.StatusUnpaired:
				log.Info("initiator went away")
			case session.StatusState:
				log.WithField("state", st.State).Debug("session state")
			}
		}
	}
}

// RunInitiator connects as the initiator of p and runs a conversation over
// the lines produced by capture. Answers go to speaker; status lines go to
// out. It returns when ctx is done, the user types /quit, or capture ends
// and the last turn has been answered.
func (w *Wire) RunInitiator(ctx context.Context, p domain.Pairing, capture domain.Capture, speaker dialogue.Speaker, out io.Writer) error {
	log := w.Log.WithFields(logrus.Fields{"role": session.RoleInitiator, "room": p.Room})
	peer := session.NewPeer(w.sessionConfig(session.RoleInitiator, p, domain.X25519Private{}), w.Dialer, log)
	arb := dialogue.NewArbiter(peer, speaker, nil, dialogue.Config{TurnTimeout: w.Cfg.TurnTimeout}, log)

	lines, err := capture.Start(ctx)
	if err != nil {
		return fmt.Errorf("start %s capture: %w", capture.Name(), err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	peerCtx, stopPeer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPeer()
	arbCtx, stopArb := context.WithCancel(ctx)
	defer stopArb()

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = peer.Run(peerCtx)
	}()
	go func() {
		defer wg.Done()
		_ = arb.Run(arbCtx)
	}()
	peer.Start()

	leave := func() error {
		stopArb()
		bye, cancel := context.WithTimeout(peerCtx, goodbyeTimeout)
		defer cancel()
		if err := arb.End(bye); err != nil {
			log.WithError(err).Debug("session_end not sent")
		}
		peer.Close()
		return nil
	}

	var (
		idle = true
		eof  bool
	)
	for {
		select {
		case <-ctx.Done():
			return leave()

		case line, ok := <-lines:
			if !ok {
				lines = nil
				eof = true
				if idle {
					return leave()
				}
				continue
			}
			switch cmd := strings.TrimSpace(line); cmd {
			case "":
			case "/quit":
				return leave()
			case "/clear":
				if err := arb.Clear(ctx); err != nil {
					fmt.Fprintln(out, dialogue.UserMessage(err))
				}
			case "/end":
				if err := arb.End(ctx); err != nil {
					fmt.Fprintln(out, dialogue.UserMessage(err))
				}
			default:
				idle = false
				arb.Submit(cmd)
			}

		case msg, ok := <-peer.Messages():
			if !ok {
				return session.ErrClosed
			}
			if msg.Type == domain.ServerInfo {
				fmt.Fprintf(out, "[connected to %s, %s backend]\n", msg.Name, msg.Backend)
			}
			arb.Handle(msg)

		case st := <-peer.Status():
			switch st.Kind {
			case session.StatusPaired:
				fmt.Fprintln(out, "[paired]")
			case session.StatusUnpaired:
				arb.Reset()
				fmt.Fprintln(out, "[executor went away, waiting for it to return]")
			case session.StatusFailed:
				arb.Reset()
				fmt.Fprintln(out, "["+dialogue.UserMessage(st.Err)+"]")
			case session.StatusShutdown:
				arb.Reset()
				fmt.Fprintln(out, "[executor shut down]")
			}

		case ev := <-arb.Events():
			log.WithField("turn_id", ev.TurnID).Debug(ev.String())
			if ev.State == dialogue.Listening {
				idle = true
				if eof {
					return leave()
				}
			}
		}
	}
}
