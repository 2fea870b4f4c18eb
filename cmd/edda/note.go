package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/types"
)

var (
	noteRole string
	noteTags []string
)

var noteCmd = &cobra.Command{
	Use:   "note <text>",
	Short: "Record a note on the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		branch, err := led.HeadBranch(cmd.Context())
		if err != nil {
			return err
		}
		e, err := appendChained(cmd, led, branch, func(parent *string) (*types.Event, error) {
			return types.NewNoteEvent(branch, parent, noteRole, args[0], noteTags)
		})
		if err != nil {
			return err
		}
		printf("Recorded %s on %s\n", e.EventID, branch)
		return nil
	},
}

var decideReason string

var decideCmd = &cobra.Command{
	Use:   "decide <key=value>",
	Short: "Record a decision, superseding any prior decision for the key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value, ok := splitKeyValue(args[0])
		if !ok {
			return fmt.Errorf("expected key=value, got %q", args[0])
		}
		_, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		branch, err := led.HeadBranch(ctx)
		if err != nil {
			return err
		}
		supersedes, err := activeDecisionID(ctx, led, branch, key)
		if err != nil {
			return err
		}
		e, err := appendChained(cmd, led, branch, func(parent *string) (*types.Event, error) {
			return types.NewDecisionEvent(branch, parent, key, value, decideReason, supersedes)
		})
		if err != nil {
			return err
		}
		if supersedes != "" {
			printf("Decided %s=%s (%s), superseding %s\n", key, value, e.EventID, supersedes)
		} else {
			printf("Decided %s=%s (%s)\n", key, value, e.EventID)
		}
		return nil
	},
}

// activeDecisionID returns the event id of the branch's active decision for
// a key, or "".
func activeDecisionID(ctx context.Context, led storage.Ledger, branch, key string) (string, error) {
	timeline, err := led.DecisionTimeline(ctx, key)
	if err != nil {
		return "", err
	}
	for _, row := range timeline {
		if row.Branch == branch && row.IsActive {
			return row.EventID, nil
		}
	}
	return "", nil
}

func splitKeyValue(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			if i == 0 || i == len(s)-1 {
				return "", "", false
			}
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func init() {
	noteCmd.Flags().StringVar(&noteRole, "role", "user", "author role for the note")
	noteCmd.Flags().StringSliceVar(&noteTags, "tag", nil, "tags for the note (repeatable)")
	decideCmd.Flags().StringVar(&decideReason, "reason", "", "why the decision was made")
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(decideCmd)
}
