package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newSubCmd creates the "buslink sub" subcommand.
func newSubCmd(dial dialFunc) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "sub <topic>",
		Short: "Subscribe to a topic and print each payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			messages := make(chan []byte, 64)
			if err := client.Subscribe(args[0], func(payload []byte) {
				messages <- payload
			}); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			seen := 0
			for {
				select {
				case payload := <-messages:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", payload)
					seen++
					if count > 0 && seen >= count {
						return nil
					}
				case <-stop:
					return nil
				}
			}
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many messages (0 = forever)")
	return cmd
}
