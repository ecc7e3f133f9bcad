package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veridoc/internal/audit"
	"veridoc/internal/jobs"
	"veridoc/internal/logging"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and export the audit trail",
	}

	auditCmd.AddCommand(newAuditListCommand(ctx))
	auditCmd.AddCommand(newAuditExportCommand(ctx))

	return auditCmd
}

func newAuditListCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var regionID string
	var actor string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries in chronological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var rows [][]string
				if client != nil {
					entries, err := client.Audit(jobID, regionID, actor, limit)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						rows = append(rows, []string{
							entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
							entry.JobID,
							entry.RegionID,
							entry.Actor,
							entry.Action,
							truncate(entry.NewValue, 30),
						})
					}
				} else {
					filter := jobs.AuditFilter{JobID: jobID, RegionID: regionID, Actor: actor, Limit: limit}
					entries, err := store.QueryAudit(cmd.Context(), filter)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						rows = append(rows, []string{
							entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
							entry.JobID,
							entry.RegionID,
							entry.Actor,
							entry.Action,
							truncate(entry.NewValue, 30),
						})
					}
				}

				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Job", "Region", "Actor", "Action", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Filter by job ID")
	cmd.Flags().StringVar(&regionID, "region", "", "Filter by region ID")
	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to list")
	return cmd
}

func newAuditExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit trail as an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = "audit-report.xlsx"
			}
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var payload []byte
				var err error
				if client != nil {
					payload, err = client.AuditReport()
				} else {
					ledger := audit.NewLedger(store, logging.NewNop())
					payload, err = ledger.ReportXLSX(cmd.Context(), jobs.AuditFilter{})
				}
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, payload, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote audit report to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Report destination (default audit-report.xlsx)")
	return cmd
}
