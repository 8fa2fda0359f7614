package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// newGoalCmd creates the "buslink goal" subcommand. It sends one goal,
// streams feedback, and exits when the result arrives.
func newGoalCmd(dial dialFunc) *cobra.Command {
	var goalID string
	var timeout time.Duration
	var cancelAfter time.Duration

	cmd := &cobra.Command{
		Use:   "goal <action> <payload>",
		Short: "Send a goal and stream feedback until the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Stop()

			actionName := args[0]
			feedback := make(chan []byte, 64)
			result := make(chan []byte, 1)
			if err := client.OnFeedback(actionName, func(_ string, payload []byte) {
				feedback <- payload
			}); err != nil {
				return err
			}
			if err := client.OnResult(actionName, func(_ string, payload []byte) {
				result <- payload
			}); err != nil {
				return err
			}

			handle, err := client.SendGoal(actionName, goalID, []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "goal %s sent\n", handle.ID())

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			var cancelTimer <-chan time.Time
			if cancelAfter > 0 {
				cancelTimer = time.After(cancelAfter)
			}
			deadline := time.After(timeout)
			for {
				select {
				case payload := <-feedback:
					fmt.Fprintf(cmd.OutOrStdout(), "feedback: %s\n", payload)
				case payload := <-result:
					fmt.Fprintf(cmd.OutOrStdout(), "result (%s): %s\n", handle.Status(), payload)
					return nil
				case <-cancelTimer:
					fmt.Fprintln(cmd.OutOrStdout(), "requesting cancel")
					if err := client.CancelGoal(actionName, handle.ID()); err != nil {
						return err
					}
					cancelTimer = nil
				case <-stop:
					return client.CancelGoal(actionName, handle.ID())
				case <-deadline:
					return fmt.Errorf("no result for goal %s within %s", handle.ID(), timeout)
				}
			}
		},
	}

	cmd.Flags().StringVar(&goalID, "goal-id", "", "explicit goal id (generated when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting for the result after this long")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "request cancellation after this long (0 = never)")
	return cmd
}
