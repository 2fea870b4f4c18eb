package main

import (
	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/types"
)

var (
	approveNote  string
	approveStage string
	approveRole  string
	approveActor string
)

var approveCmd = &cobra.Command{
	Use:   "approve <draft-id> <draft-sha256> <decision>",
	Short: "Record an approval decision for a draft",
	Args:  cobra.ExactArgs(3),
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
			return types.NewApprovalEvent(types.ApprovalEventParams{
				Branch:      branch,
				ParentHash:  parent,
				DraftID:     args[0],
				DraftSHA256: args[1],
				Decision:    args[2],
				Actor:       approveActor,
				Note:        approveNote,
				StageID:     approveStage,
				Role:        approveRole,
			})
		})
		if err != nil {
			return err
		}
		printf("Recorded approval %s (%s)\n", args[2], e.EventID)
		return nil
	},
}

var (
	requestApprovalRule      string
	requestApprovalStage     string
	requestApprovalRole      string
	requestApprovalAssignees []string
	requestApprovalReason    string
)

var requestApprovalCmd = &cobra.Command{
	Use:   "request-approval <draft-id> <draft-sha256>",
	Short: "Record an approval request for a draft",
	Args:  cobra.ExactArgs(2),
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
			return types.NewApprovalRequestEvent(types.ApprovalRequestParams{
				Branch:      branch,
				ParentHash:  parent,
				DraftID:     args[0],
				DraftSHA256: args[1],
				RouteRuleID: requestApprovalRule,
				StageID:     requestApprovalStage,
				Role:        requestApprovalRole,
				Assignees:   requestApprovalAssignees,
				Reason:      requestApprovalReason,
			})
		})
		if err != nil {
			return err
		}
		printf("Recorded approval request %s\n", e.EventID)
		return nil
	},
}

var (
	bundleSummary string
	bundleEvents  []string
	bundleBlobs   []string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle <title>",
	Short: "Record a review bundle over prior events",
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
			return types.NewReviewBundleEvent(branch, parent, args[0], bundleSummary, bundleEvents, bundleBlobs)
		})
		if err != nil {
			return err
		}
		printf("Recorded review bundle %s (%d events)\n", e.EventID, len(bundleEvents))
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveNote, "note", "", "reviewer note")
	approveCmd.Flags().StringVar(&approveStage, "stage", "", "approval stage id")
	approveCmd.Flags().StringVar(&approveRole, "role", "", "approver role")
	approveCmd.Flags().StringVar(&approveActor, "actor", "", "approver identity")
	requestApprovalCmd.Flags().StringVar(&requestApprovalRule, "rule", "", "route rule id")
	requestApprovalCmd.Flags().StringVar(&requestApprovalStage, "stage", "", "approval stage id")
	requestApprovalCmd.Flags().StringVar(&requestApprovalRole, "role", "", "required role")
	requestApprovalCmd.Flags().StringSliceVar(&requestApprovalAssignees, "assignee", nil, "assignees (repeatable)")
	requestApprovalCmd.Flags().StringVar(&requestApprovalReason, "reason", "", "why approval is required")
	bundleCmd.Flags().StringVar(&bundleSummary, "summary", "", "bundle summary")
	bundleCmd.Flags().StringSliceVar(&bundleEvents, "event", nil, "reviewed event ids (repeatable)")
	bundleCmd.Flags().StringSliceVar(&bundleBlobs, "blob", nil, "attached blob refs (repeatable)")
	rootCmd.AddCommand(approveCmd, requestApprovalCmd, bundleCmd)
}
