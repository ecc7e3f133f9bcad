package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"veridoc/internal/jobs"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var counts jobs.StatusCounts
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					counts = jobs.StatusCounts{
						Total:      status.Queue.Total,
						Queued:     status.Queue.Queued,
						Processing: status.Queue.Processing,
						Done:       status.Queue.Done,
						Failed:     status.Queue.Failed,
					}
				} else {
					var err error
					counts, err = store.Stats(cmd.Context())
					if err != nil {
						return err
					}
				}

				if counts.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := [][]string{
					{"queued", fmt.Sprintf("%d", counts.Queued)},
					{"processing", fmt.Sprintf("%d", counts.Processing)},
					{"done", fmt.Sprintf("%d", counts.Done)},
					{"failed", fmt.Sprintf("%d", counts.Failed)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var rows [][]string
				if client != nil {
					list, err := client.Jobs(limit, offset)
					if err != nil {
						return err
					}
					for _, job := range list {
						rows = append(rows, jobRow(job.ID, job.FileRef, job.Domain, job.Status, job.AvgTrustScore, job.CreatedAt))
					}
				} else {
					list, err := store.ListJobs(cmd.Context(), limit, offset)
					if err != nil {
						return err
					}
					for _, job := range list {
						rows = append(rows, jobRow(job.ID, job.FileRef, job.Domain, string(job.Status), job.AvgTrustScore, job.CreatedAt))
					}
				}

				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Domain", "Status", "Trust", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	return cmd
}

func jobRow(id, fileRef, domain, status string, trust float64, created time.Time) []string {
	if domain == "" {
		domain = "general"
	}
	return []string{
		id,
		fileRef,
		domain,
		status,
		formatScore(trust),
		created.Local().Format("2006-01-02 15:04"),
	}
}
