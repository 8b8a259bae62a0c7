package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the executor: answer questions from the paired initiator",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := requirePassphrase()
			if err != nil {
				return err
			}
			id, err := wire.Identity.LoadIdentity(pass)
			if err != nil {
				return err
			}
			p, ok, err := wire.ExecutorPairings().LoadPairing()
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no room yet; run `murmur pair-code` first")
			}
			b, err := wire.Backend()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			wire.Log.WithField("backend", b.Name()).Info("serving")
			return wire.RunExecutor(ctx, id, p, b)
		},
	}
}
