package main

import (
	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/views"
)

var (
	commitPurpose      string
	commitPrevSummary  string
	commitContribution string
	commitLabels       []string
	commitEvidence     []string
	commitAutoEvidence bool
)

var commitCmd = &cobra.Command{
	Use:   "commit <title>",
	Short: "Record a progress commit on the current branch",
	Long: `Records a commit event summarizing progress. Evidence items point at
prior events; a commit with no evidence is auto-labeled "claim".
With --auto-evidence, recent decisions, failing commands, and open todos
on the branch are attached as evidence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		evidence := make([]types.EvidenceItem, 0, len(commitEvidence))
		var manualIDs []string
		for _, id := range commitEvidence {
			evidence = append(evidence, types.EvidenceItem{EventID: id})
			manualIDs = append(manualIDs, id)
		}
		if commitAutoEvidence {
			auto, err := views.BuildAutoEvidence(ctx, led, branch, manualIDs)
			if err != nil {
				return err
			}
			evidence = append(evidence, auto...)
		}

		e, err := appendChained(cmd, led, branch, func(parent *string) (*types.Event, error) {
			return types.NewCommitEvent(types.CommitEventParams{
				Branch:       branch,
				ParentHash:   parent,
				Title:        args[0],
				Purpose:      commitPurpose,
				PrevSummary:  commitPrevSummary,
				Contribution: commitContribution,
				Evidence:     evidence,
				Labels:       commitLabels,
			})
		})
		if err != nil {
			return err
		}
		printf("Committed %s on %s (%d evidence items)\n", e.EventID, branch, len(evidence))
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitPurpose, "purpose", "", "why this work was done")
	commitCmd.Flags().StringVar(&commitPrevSummary, "prev", "", "summary of prior progress")
	commitCmd.Flags().StringVar(&commitContribution, "contribution", "", "what this commit contributes")
	commitCmd.Flags().StringSliceVar(&commitLabels, "label", nil, "labels (repeatable)")
	commitCmd.Flags().StringSliceVar(&commitEvidence, "evidence", nil, "evidence event ids (repeatable)")
	commitCmd.Flags().BoolVar(&commitAutoEvidence, "auto-evidence", false, "attach recent decisions/failures/todos as evidence")
	rootCmd.AddCommand(commitCmd)
}
