package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newTopicsCmd creates the "buslink topics" subcommand.
func newTopicsCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the topic names the remote endpoint announces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			ctx, cancel := commandContext(cmd, 10*time.Second)
			defer cancel()
			names, err := client.RequestTopics(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// newServicesCmd creates the "buslink services" subcommand.
func newServicesCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the service names the remote endpoint announces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			ctx, cancel := commandContext(cmd, 10*time.Second)
			defer cancel()
			names, err := client.RequestServices(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
