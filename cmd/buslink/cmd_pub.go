package main

import (
	"time"

	"github.com/spf13/cobra"
)

// newPubCmd creates the "buslink pub" subcommand.
func newPubCmd(dial dialFunc) *cobra.Command {
	var linger time.Duration

	cmd := &cobra.Command{
		Use:   "pub <topic> <payload>",
		Short: "Publish one payload on a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			if err := client.Publish(args[0], []byte(args[1])); err != nil {
				return err
			}
			// give the connection goroutine a chance to flush
			time.Sleep(linger)
			return nil
		},
	}

	cmd.Flags().DurationVar(&linger, "linger", 200*time.Millisecond, "wait before closing so the frame is flushed")
	return cmd
}
