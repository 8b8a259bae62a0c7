package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"murmur/internal/app"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the paired executor, one utterance per line",
		Long: "Reads utterances from stdin. Typing while an answer is being spoken interrupts it.\n" +
			"Commands: /clear forgets the conversation, /end closes it, /quit exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := wire.Pairing()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			speaker, err := wire.Speaker(out)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			fmt.Fprintf(out, "[connecting to %s]\n", p.RelayURL)
			return wire.RunInitiator(ctx, p, app.LineCapture{R: os.Stdin}, speaker, out)
		},
	}
}
