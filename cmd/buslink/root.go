package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/perchlabs/buslink/pkg/buslink"
)

// newRootCmd creates the root buslink command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var endpoint string
	var connectTimeout time.Duration

	cmd := &cobra.Command{
		Use:           "buslink",
		Short:         "Talk to a buslink endpoint from the command line",
		Long:          "buslink publishes, subscribes, calls services, and drives goals\nagainst a message-oriented TCP endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "localhost:10000", "host:port of the remote endpoint")
	cmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "how long to wait for the link to come up")

	dial := func() (*buslink.Client, error) {
		return dialClient(endpoint, connectTimeout)
	}

	cmd.AddCommand(
		newPubCmd(dial),
		newSubCmd(dial),
		newCallCmd(dial),
		newGoalCmd(dial),
		newTopicsCmd(dial),
		newServicesCmd(dial),
	)

	return cmd
}

type dialFunc func() (*buslink.Client, error)

// dialClient builds a client and blocks until the link is up or the
// timeout elapses.
func dialClient(endpoint string, timeout time.Duration) (*buslink.Client, error) {
	connected := make(chan struct{}, 1)
	client, err := buslink.New(buslink.DefaultConfig(endpoint), buslink.WithConnectionHooks(
		func() {
			select {
			case connected <- struct{}{}:
			default:
			}
		}, nil))
	if err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		return nil, err
	}
	select {
	case <-connected:
		return client, nil
	case <-time.After(timeout):
		client.Stop()
		return nil, fmt.Errorf("no connection to %s within %s", endpoint, timeout)
	}
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(cmd.Context(), timeout)
	}
	return context.WithCancel(cmd.Context())
}
