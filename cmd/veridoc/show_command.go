package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veridoc/internal/audit"
	"veridoc/internal/export"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
	"veridoc/internal/redact"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its extracted regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if client != nil {
					job, err := client.Job(jobID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Job %s\n", job.ID)
					fmt.Fprintf(out, "  File:   %s\n", job.FileRef)
					fmt.Fprintf(out, "  Status: %s\n", colorizeStatus(job.Status, colorize))
					fmt.Fprintf(out, "  Trust:  %s\n", formatScore(job.AvgTrustScore))
					if job.ErrorMessage != "" {
						fmt.Fprintf(out, "  Error:  %s\n", job.ErrorMessage)
					}
					return nil
				}

				job, err := store.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", jobID)
				}
				fmt.Fprintf(out, "Job %s\n", job.ID)
				fmt.Fprintf(out, "  File:   %s\n", job.FileRef)
				fmt.Fprintf(out, "  Status: %s\n", colorizeStatus(string(job.Status), colorize))
				fmt.Fprintf(out, "  Trust:  %s\n", formatScore(job.AvgTrustScore))
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:  %s\n", job.ErrorMessage)
				}

				regions, err := store.RegionsForJob(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if len(regions) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(regions))
				for _, region := range regions {
					verified := "pending"
					if region.HumanVerified {
						verified = "verified"
					} else if !region.ReviewAction.NeedsReview() {
						verified = "auto"
					}
					rows = append(rows, []string{
						region.ID,
						fmt.Sprintf("%d", region.PageNumber),
						region.Label,
						truncate(region.FinalValue(), 40),
						formatScore(region.TrustScore),
						string(region.ReviewAction),
						verified,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Region", "Page", "Label", "Value", "Trust", "Tier", "Review"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var output string
	var save bool

	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print the structured result document for a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if save {
					var ref string
					var err error
					if client != nil {
						ref, err = client.Export(jobID)
					} else {
						var svc *export.Service
						svc, err = newExportService(ctx, store)
						if err == nil {
							ref, err = svc.Export(cmd.Context(), jobID)
						}
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote result to %s\n", ref)
					return nil
				}

				var payload []byte
				if client != nil {
					raw, err := client.Result(jobID)
					if err != nil {
						return err
					}
					payload = append(payload, raw...)
				} else {
					svc, err := newExportService(ctx, store)
					if err != nil {
						return err
					}
					result, err := svc.Result(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					payload, err = json.MarshalIndent(result, "", "  ")
					if err != nil {
						return err
					}
				}

				if output != "" {
					if err := os.WriteFile(output, payload, 0o644); err != nil {
						return fmt.Errorf("write result: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote result to %s\n", output)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(payload))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result JSON to a file")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the result under the data directory instead of printing it")
	return cmd
}

func newRedactCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redact <job-id>",
		Short: "Generate the redacted artifact for a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var ref string
				if client != nil {
					var err error
					ref, err = client.Redact(jobID)
					if err != nil {
						return err
					}
				} else {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					ledger := audit.NewLedger(store, logging.NewNop())
					generator := redact.NewGenerator(cfg, store, ledger, logging.NewNop())
					ref, err = generator.Redact(cmd.Context(), jobID)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Redacted artifact: %s\n", ref)
				return nil
			})
		},
	}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
