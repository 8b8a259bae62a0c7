package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"murmur/internal/app"
	"murmur/internal/broker"
	"murmur/internal/discovery"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		envFile string
		cfg     app.RelayConfig
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Run the murmur relay broker",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.LoadRelayConfig(envFile)
			if err != nil {
				return err
			}
			// Flags win over the environment.
			flags := cmd.Flags()
			if !flags.Changed("addr") {
				cfg.Addr = loaded.Addr
			}
			if !flags.Changed("probe-interval") {
				cfg.ProbeInterval = loaded.ProbeInterval
			}
			if !flags.Changed("rate") {
				cfg.Rate = loaded.Rate
			}
			if !flags.Changed("mdns") {
				cfg.MDNS = loaded.MDNS
			}
			if !flags.Changed("mdns-name") {
				cfg.MDNSName = loaded.MDNSName
			}
			if !flags.Changed("log-level") {
				cfg.LogLevel = loaded.LogLevel
			}
			cfg.ProbeTimeout = loaded.ProbeTimeout
			cfg.MaxFrameBytes = loaded.MaxFrameBytes
			cfg.Burst = loaded.Burst
			cfg.LogJSON = loaded.LogJSON

			log, err := app.NewLogger(cfg.LogLevel, cfg.LogJSON, os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", "", "dotenv file to load (default ./.env when present)")
	f.StringVar(&cfg.Addr, "addr", ":8080", "listen address")
	f.DurationVar(&cfg.ProbeInterval, "probe-interval", 30*time.Second, "websocket ping interval")
	f.Float64Var(&cfg.Rate, "rate", 5, "websocket upgrades per second per IP (0 disables)")
	f.BoolVar(&cfg.MDNS, "mdns", false, "advertise the relay on the local network")
	f.StringVar(&cfg.MDNSName, "mdns-name", "murmur-relay", "mDNS instance name")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	return cmd
}

func serve(ctx context.Context, cfg app.RelayConfig, log *logrus.Logger) error {
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	bcfg := broker.DefaultConfig()
	bcfg.ProbeInterval = cfg.ProbeInterval
	bcfg.ProbeTimeout = cfg.ProbeTimeout
	bcfg.MaxFrameBytes = cfg.MaxFrameBytes
	bcfg.RateLimit = cfg.Rate
	bcfg.RateBurst = cfg.Burst

	hub := broker.NewHub(log, bcfg.ProbeTimeout)
	srv := &http.Server{
		Handler:           broker.NewServer(hub, bcfg, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	log.Infof("relay listening on %s", ln.Addr())

	if cfg.MDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		withdraw, err := discovery.Advertise(cfg.MDNSName, port, "/ws", app.Version, log)
		if err != nil {
			log.WithError(err).Warn("mdns advertisement disabled")
		} else {
			defer withdraw()
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)
	// Hijacked websocket connections are not tracked by http.Server.
	hub.Shutdown()
	return err
}
