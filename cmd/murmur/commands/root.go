package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"murmur/internal/app"
)

var (
	envFile    string
	home       string
	passphrase string
	relayURL   string
	logLevel   string

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:           "murmur",
		Short:         "Talk to an assistant on your computer through an end-to-end encrypted relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(envFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("passphrase") {
				cfg.Passphrase = passphrase
			}
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			log, err := app.NewLogger(cfg.LogLevel, cfg.LogJSON, os.Stderr)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, log)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "dotenv file to load (default ./.env when present)")
	pf.StringVar(&home, "home", "", "config dir (default ~/.murmur)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the executor identity")
	pf.StringVar(&relayURL, "relay", "", "relay websocket URL (e.g. ws://127.0.0.1:8080/ws)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		pairCodeCmd(),
		pairCmd(),
		serveCmd(),
		chatCmd(),
		discoverCmd(),
	)
	return root.Execute()
}

func requirePassphrase() (string, error) {
	if wire.Cfg.Passphrase == "" {
		return "", errors.New("passphrase required (-p or MURMUR_PASSPHRASE)")
	}
	return wire.Cfg.Passphrase, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
