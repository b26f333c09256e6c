package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/report"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger and outbox status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				cmdCtx := cmd.Context()
				stats, err := store.Stats(cmdCtx)
				if err != nil {
					return fmt.Errorf("ledger stats: %w", err)
				}
				pending, err := store.PendingNotifications(cmdCtx, 0)
				if err != nil {
					return fmt.Errorf("pending notifications: %w", err)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Ledger", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, report.RenderStatus(report.Snapshot{
					Ledger:  stats,
					Pending: len(pending),
				}))
				return nil
			})
		},
	}
}

func newProblemsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "problems",
		Short: "List permanently failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				problems, err := store.Problems(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list problems: %w", err)
				}
				rows := make([]ledger.ProblemJob, 0, len(problems))
				for _, p := range problems {
					rows = append(rows, *p)
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderProblems(rows, time.Now().UTC()))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of problems to show")
	return cmd
}

func newTransactionsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List ledger transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				var statuses []ledger.Status
				if statusFilter != "" {
					status, ok := ledger.ParseStatus(statusFilter)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFilter)
					}
					statuses = append(statuses, status)
				}
				transactions, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return fmt.Errorf("list transactions: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderTransactions(transactions, time.Now().UTC()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by transaction status")
	return cmd
}
