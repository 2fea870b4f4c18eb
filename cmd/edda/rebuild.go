package main

import (
	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/views"
)

var (
	rebuildBranch string
	rebuildReason string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate derived branch views from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		head, err := led.HeadBranch(ctx)
		if err != nil {
			return err
		}

		scope := "all"
		if rebuildBranch != "" {
			scope = "branch"
		}
		if _, err := appendChained(cmd, led, head, func(parent *string) (*types.Event, error) {
			return types.NewRebuildEvent(head, parent, scope, rebuildBranch, rebuildReason)
		}); err != nil {
			return err
		}

		if rebuildBranch != "" {
			snap, err := views.RebuildBranch(ctx, led, rebuildBranch)
			if err != nil {
				return err
			}
			printf("Rebuilt %s: %d commits, %d signals\n", snap.Branch, len(snap.Commits), len(snap.Signals))
			return nil
		}

		snaps, err := views.RebuildAll(ctx, led)
		if err != nil {
			return err
		}
		printf("Rebuilt %d branches\n", len(snaps))
		return nil
	},
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildBranch, "branch", "", "rebuild a single branch")
	rebuildCmd.Flags().StringVar(&rebuildReason, "reason", "manual rebuild", "reason recorded in the ledger")
	rootCmd.AddCommand(rebuildCmd)
}
