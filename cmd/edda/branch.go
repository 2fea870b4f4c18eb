package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/views"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage ledger branches",
}

var branchCreatePurpose string

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		from, err := led.HeadBranch(ctx)
		if err != nil {
			return err
		}
		if from == name {
			return fmt.Errorf("already on branch %s", name)
		}
		fromTip, err := led.TipHash(ctx, from)
		if err != nil {
			return err
		}
		fromEventID := ""
		if fromTip != "" {
			events, err := led.IterEvents(ctx)
			if err != nil {
				return err
			}
			for i := len(events) - 1; i >= 0; i-- {
				if events[i].Branch == from {
					fromEventID = events[i].EventID
					break
				}
			}
		}

		// The branch_create event is recorded on the new branch as its root.
		if _, err := appendChained(cmd, led, name, func(parent *string) (*types.Event, error) {
			return types.NewBranchCreateEvent(name, parent, name, branchCreatePurpose, from, fromEventID)
		}); err != nil {
			return err
		}
		if err := led.SetHeadBranch(ctx, name); err != nil {
			return err
		}
		printf("Created branch %s (from %s)\n", name, from)
		return nil
	},
}

var branchSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Switch the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := args[0]
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		from, err := led.HeadBranch(ctx)
		if err != nil {
			return err
		}
		if from == to {
			printf("Already on %s\n", to)
			return nil
		}
		if _, err := appendChained(cmd, led, to, func(parent *string) (*types.Event, error) {
			return types.NewBranchSwitchEvent(to, parent, from, to)
		}); err != nil {
			return err
		}
		if err := led.SetHeadBranch(ctx, to); err != nil {
			return err
		}
		printf("Switched to %s\n", to)
		return nil
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known branches",
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
		branches, err := views.ListBranches(ctx, led)
		if err != nil {
			return err
		}
		for _, b := range branches {
			marker := " "
			if b == head {
				marker = "*"
			}
			printf("%s %s\n", marker, b)
		}
		return nil
	},
}

var (
	mergeReason  string
	mergeAdopted []string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <src>",
	Short: "Record a merge of src into the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		dst, err := led.HeadBranch(cmd.Context())
		if err != nil {
			return err
		}
		e, err := appendChained(cmd, led, dst, func(parent *string) (*types.Event, error) {
			return types.NewMergeEvent(dst, parent, src, dst, mergeReason, mergeAdopted)
		})
		if err != nil {
			return err
		}
		printf("Merged %s -> %s (%s)\n", src, dst, e.EventID)
		return nil
	},
}

func init() {
	branchCreateCmd.Flags().StringVar(&branchCreatePurpose, "purpose", "", "why the branch exists")
	mergeCmd.Flags().StringVar(&mergeReason, "reason", "", "why the merge happened")
	mergeCmd.Flags().StringSliceVar(&mergeAdopted, "adopt", nil, "adopted commit event ids (repeatable)")
	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchSwitchCmd)
	branchCmd.AddCommand(branchListCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(mergeCmd)
}
