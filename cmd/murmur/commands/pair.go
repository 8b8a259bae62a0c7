package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/crypto"
	"murmur/internal/domain"
	"murmur/internal/pairing"
)

// pair-code [--new-room]: print the token an initiator needs.
func pairCodeCmd() *cobra.Command {
	var newRoom bool
	cmd := &cobra.Command{
		Use:   "pair-code",
		Short: "Print the pairing token for this executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := requirePassphrase()
			if err != nil {
				return err
			}
			id, err := wire.Identity.LoadIdentity(pass)
			if err != nil {
				return err
			}
			ps := wire.ExecutorPairings()
			p, ok, err := ps.LoadPairing()
			if err != nil {
				return err
			}
			if !ok || newRoom || p.ExecutorKey != id.XPub || p.RelayURL != wire.Cfg.RelayURL {
				p = domain.Pairing{
					RelayURL:    wire.Cfg.RelayURL,
					Room:        pairing.NewRoomID(),
					ExecutorKey: id.XPub,
					CreatedUTC:  time.Now().UTC().Unix(),
				}
				if err := ps.SavePairing(p); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, pairing.Format(p))
			fmt.Fprintf(out, "Fingerprint: %s\n", crypto.FingerprintX25519(id.XPub))
			return nil
		},
	}
	cmd.Flags().BoolVar(&newRoom, "new-room", false, "rotate the room, invalidating earlier tokens")
	return cmd
}

// pair <token>: remember an executor on the initiator side.
func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <token>",
		Short: "Store a pairing token printed by `murmur pair-code`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pairing.Parse(args[0])
			if err != nil {
				return err
			}
			p.CreatedUTC = time.Now().UTC().Unix()
			if err := wire.Pairings.SavePairing(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s via %s\nExecutor fingerprint: %s\n",
				p.Room, p.RelayURL, crypto.FingerprintX25519(p.ExecutorKey))
			return nil
		},
	}
}
