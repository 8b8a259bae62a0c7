package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/discovery"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find murmur relays on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			relays, err := discovery.Browse(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(relays) == 0 {
				fmt.Fprintln(out, "no relays found")
				return nil
			}
			for _, r := range relays {
				fmt.Fprintf(out, "%s\t%s\t%s\n", r.Instance, r.URL, r.Version)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for answers")
	return cmd
}
