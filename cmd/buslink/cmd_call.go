package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newCallCmd creates the "buslink call" subcommand.
func newCallCmd(dial dialFunc) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <service> <request>",
		Short: "Call a service and print the response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()
			response, err := client.Call(ctx, args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", response)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "abandon the call after this long")
	return cmd
}
