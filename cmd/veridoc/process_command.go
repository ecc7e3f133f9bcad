package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/stage"
	"veridoc/internal/workflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var domain string
	var wait bool

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Submit a document for processing",
		Long: "Submit a document for processing. With a running daemon the job is " +
			"queued and picked up by the worker pool; otherwise it is processed " +
			"synchronously in this process.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileRef := args[0]
			out := cmd.OutOrStdout()

			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if client != nil {
					job, err := client.Submit(fileRef, domain)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued job %s\n", job.ID)
					if !wait {
						return nil
					}
					return waitForJob(cmd, client, job.ID)
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				runner, err := workflow.NewRunner(cfg, store, stage.LocalAdapters(), logging.NewNop())
				if err != nil {
					return err
				}
				job, err := runner.Submit(cmd.Context(), fileRef, domain)
				if err != nil {
					return err
				}
				done, err := runner.Process(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				printJobOutcome(cmd, done.ID, string(done.Status), done.AvgTrustScore, done.ErrorMessage)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Document domain (general, medical, logistics)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the queued job to finish")
	return cmd
}

func waitForJob(cmd *cobra.Command, client *apiClient, jobID string) error {
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(500 * time.Millisecond):
		}
		job, err := client.Job(jobID)
		if err != nil {
			return err
		}
		if job.Status == string(jobs.StatusDone) || job.Status == string(jobs.StatusFailed) {
			printJobOutcome(cmd, job.ID, job.Status, job.AvgTrustScore, job.ErrorMessage)
			return nil
		}
	}
}

func printJobOutcome(cmd *cobra.Command, id, status string, trust float64, errMsg string) {
	out := cmd.OutOrStdout()
	status = colorizeStatus(status, shouldColorize(out))
	fmt.Fprintf(out, "Job %s finished: %s (avg trust %s)\n", id, status, formatScore(trust))
	if errMsg != "" {
		fmt.Fprintf(out, "  error: %s\n", errMsg)
	}
}
