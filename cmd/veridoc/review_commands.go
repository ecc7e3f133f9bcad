package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"veridoc/internal/jobs"
	"veridoc/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Work the human review queue",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewStatsCommand(ctx))
	reviewCmd.AddCommand(newReviewDecisionCommand(ctx, review.TransitionApprove, "approve <region-id>", "Accept the extracted value as-is"))
	reviewCmd.AddCommand(newReviewCorrectCommand(ctx))
	reviewCmd.AddCommand(newReviewDecisionCommand(ctx, review.TransitionSkip, "skip <region-id>", "Leave the region for another reviewer"))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List regions awaiting review, lowest trust first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var rows [][]string
				if client != nil {
					items, err := client.ReviewQueue(limit, offset)
					if err != nil {
						return err
					}
					for _, item := range items {
						rows = append(rows, reviewRow(item.RegionID, item.JobFileRef, item.PageNumber,
							item.Label, item.NormalizedText, item.TrustScore, item.ReviewAction, item.StageFailed))
					}
				} else {
					items, err := newReviewService(store).Queue(cmd.Context(), limit, offset)
					if err != nil {
						return err
					}
					for _, item := range items {
						rows = append(rows, reviewRow(item.RegionID, item.JobFileRef, item.PageNumber,
							item.Label, item.NormalizedText, item.TrustScore, string(item.ReviewAction), item.StageFailed))
					}
				}

				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Region", "File", "Page", "Label", "Value", "Trust", "Tier", "Degraded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum regions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of regions to skip")
	return cmd
}

func reviewRow(regionID, fileRef string, page int, label, value string, trust float64, tier string, degraded bool) []string {
	flag := ""
	if degraded {
		flag = "yes"
	}
	return []string{
		regionID,
		fileRef,
		fmt.Sprintf("%d", page),
		label,
		truncate(value, 40),
		formatScore(trust),
		tier,
		flag,
	}
}

func newReviewStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show verification progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				var total, verified, pending int
				var rate float64
				actions := map[string]int{}

				if client != nil {
					stats, err := client.ReviewStats()
					if err != nil {
						return err
					}
					total, verified, pending, rate = stats.TotalRegions, stats.VerifiedRegions, stats.PendingReview, stats.VerificationRate
					actions = stats.Actions
				} else {
					stats, err := newReviewService(store).Stats(cmd.Context())
					if err != nil {
						return err
					}
					total, verified, pending, rate = stats.TotalRegions, stats.VerifiedRegions, stats.PendingReview, stats.VerificationRate
					for action, count := range stats.Actions {
						actions[string(action)] = count
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Regions: %d total, %d verified, %d pending (%.1f%% verified)\n",
					total, verified, pending, rate*100)

				if len(actions) == 0 {
					return nil
				}
				names := make([]string, 0, len(actions))
				for name := range actions {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, fmt.Sprintf("%d", actions[name])})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Tier", "Regions"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newReviewDecisionCommand(ctx *commandContext, action, use, short string) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regionID := args[0]
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if client != nil {
					_, err := client.Decide(regionID, action, reviewActor(actor), "")
					if err != nil {
						return err
					}
				} else {
					svc := newReviewService(store)
					var err error
					switch action {
					case review.TransitionApprove:
						_, err = svc.Approve(cmd.Context(), regionID, reviewActor(actor))
					case review.TransitionSkip:
						err = svc.Skip(cmd.Context(), regionID, reviewActor(actor))
					}
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Region %s: %s\n", regionID, action)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Reviewer identity recorded in the audit log (defaults to $USER)")
	return cmd
}

func newReviewCorrectCommand(ctx *commandContext) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "correct <region-id> <value>",
		Short: "Replace the extracted value with a corrected one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			regionID, value := args[0], args[1]
			return ctx.withAccess(func(client *apiClient, store *jobs.Store) error {
				if client != nil {
					if _, err := client.Decide(regionID, review.TransitionCorrect, reviewActor(actor), value); err != nil {
						return err
					}
				} else {
					if _, err := newReviewService(store).Correct(cmd.Context(), regionID, reviewActor(actor), value); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Region %s corrected\n", regionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Reviewer identity recorded in the audit log (defaults to $USER)")
	return cmd
}

func reviewActor(flag string) string {
	if flag != "" {
		return flag
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}
