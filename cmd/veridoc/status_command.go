package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"veridoc/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if client == nil {
					fmt.Fprintln(out, "Daemon: not running")
					counts, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					printQueueCounts(out, counts.Total, counts.Queued, counts.Processing, counts.Done, counts.Failed)
					return nil
				}

				status, err := client.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Daemon: running")
				fmt.Fprintf(out, "Database: %s\n", status.DBPath)
				printQueueCounts(out, status.Queue.Total, status.Queue.Queued, status.Queue.Processing, status.Queue.Done, status.Queue.Failed)

				if len(status.Backends) > 0 {
					fmt.Fprintln(out, "Backends:")
					for _, backend := range status.Backends {
						state := "ready"
						if !backend.Ready {
							state = "unavailable"
							if backend.Detail != "" {
								state += ": " + backend.Detail
							}
							if colorize {
								state = ansiRed + state + ansiReset
							}
						} else if colorize {
							state = ansiGreen + state + ansiReset
						}
						fmt.Fprintf(out, "  %-10s %s\n", backend.Name, state)
					}
				}
				return nil
			})
		},
	}
}

func printQueueCounts(out io.Writer, total, queued, processing, done, failed int) {
	fmt.Fprintf(out, "Jobs: %d total, %d queued, %d processing, %d done, %d failed\n",
		total, queued, processing, done, failed)
}
