package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/board"
	"github.com/fagemx/edda/internal/phase"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/types"
)

var heartbeatLabel string

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Write this session's heartbeat",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		projectID := projectIDFor(paths)
		if _, err := store.EnsureDirs(projectID); err != nil {
			return err
		}
		sessionID, label := board.ResolveSessionID(flagSession, projectID, "cli")
		if heartbeatLabel != "" {
			label = heartbeatLabel
		}
		branch, err := led.HeadBranch(cmd.Context())
		if err != nil {
			return err
		}
		if err := board.WriteHeartbeat(projectID, sessionID, board.SessionState{
			Label:  label,
			Branch: branch,
		}); err != nil {
			return err
		}
		printf("Heartbeat written for %s (%s)\n", sessionID, label)
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <label> --paths <glob,...>",
	Short: "Claim advisory ownership of repo paths",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		projectID := projectIDFor(paths)
		if _, err := store.EnsureDirs(projectID); err != nil {
			return err
		}
		sessionID, _ := board.ResolveSessionID(flagSession, projectID, args[0])
		if err := board.AppendClaim(projectID, sessionID, args[0], claimPaths); err != nil {
			return err
		}
		printf("Claimed %s for %s\n", strings.Join(claimPaths, ", "), args[0])
		return nil
	},
}

var claimPaths []string

var requestCmd = &cobra.Command{
	Use:   "request <to-label> <message>",
	Short: "Send a peer-to-peer request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		projectID := projectIDFor(paths)
		if _, err := store.EnsureDirs(projectID); err != nil {
			return err
		}
		sessionID, fromLabel := board.ResolveSessionID(flagSession, projectID, "cli")
		if err := board.AppendRequest(projectID, sessionID, fromLabel, args[0], args[1]); err != nil {
			return err
		}
		printf("Request sent to %s\n", args[0])
		return nil
	},
}

var bindReason string

var bindCmd = &cobra.Command{
	Use:   "bind <key=value>",
	Short: "Record a binding decision (ledger + broadcast)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value, ok := splitKeyValue(args[0])
		if !ok {
			return cmd.Usage()
		}
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		projectID := projectIDFor(paths)
		if _, err := store.EnsureDirs(projectID); err != nil {
			return err
		}
		sessionID, label := board.ResolveSessionID(flagSession, projectID, "cli")
		e, err := board.Bind(cmd.Context(), led, projectID, sessionID, label, key, value, bindReason)
		if err != nil {
			return err
		}
		printf("Bound %s=%s (%s)\n", key, value, e.EventID)
		return nil
	},
}

var boardWatch bool

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the multi-agent coordination board",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		projectID := projectIDFor(paths)

		if boardWatch {
			ch, err := board.Watch(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			for snap := range ch {
				renderBoard(snap, projectID)
			}
			return nil
		}

		snap, err := board.BuildSnapshot(projectID)
		if err != nil {
			return err
		}
		renderBoard(snap, projectID)
		return nil
	},
}

func renderBoard(snap *board.Snapshot, projectID string) {
	printf("== Coordination board ==\n")
	if len(snap.Active) == 0 {
		printf("No active sessions.\n")
	}
	for _, s := range snap.Active {
		label := s.State.Label
		if label == "" {
			label = s.SessionID
		}
		printf("- %s (session %s, branch %s)\n", label, s.SessionID, s.State.Branch)
	}
	if len(snap.Claims) > 0 {
		printf("Claims:\n")
		for label, claim := range snap.Claims {
			printf("  %s: %s\n", label, strings.Join(claim.Paths, ", "))
		}
	}
	if len(snap.Bindings) > 0 {
		printf("Bindings:\n")
		for domain, bindings := range snap.Bindings {
			printf("  [%s]\n", domain)
			for _, b := range bindings {
				printf("    %s=%s (by %s)\n", b.Key, b.Value, b.Label)
			}
		}
	}
	if len(snap.Requests) > 0 {
		printf("Recent requests:\n")
		for _, r := range snap.Requests {
			printf("  %s -> %s: %s\n", r.FromLabel, r.ToLabel, r.Message)
		}
	}

	phaseMap := phase.BuildMap(projectID)
	printf("Phases: %s\n", phaseMap.Summary)
}

var phaseTasks []string

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Detect this session's phase and report transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		projectID := projectIDFor(paths)
		if _, err := store.EnsureDirs(projectID); err != nil {
			return err
		}
		sessionID, label := board.ResolveSessionID(flagSession, projectID, "cli")
		branch, err := led.HeadBranch(cmd.Context())
		if err != nil {
			return err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		current := phase.Detect(phase.DetectInput{
			SessionID:   sessionID,
			Label:       label,
			Branch:      branch,
			ActiveTasks: phaseTasks,
			Cwd:         cwd,
		})
		previous := phase.ReadState(projectID, sessionID)
		if err := phase.WriteState(projectID, current); err != nil {
			return err
		}

		printf("%s\n", types.FormatPhaseNudge(current))
		if transition := phase.DetectTransition(current, previous, phase.DefaultDetectorConfig()); transition != nil {
			printf("Transition: %s -> %s (confidence %.2f)\n",
				transition.From, transition.To, transition.State.Confidence)
		}
		for _, signal := range current.Signals {
			debugSignal(signal)
		}
		return nil
	},
}

func debugSignal(signal string) {
	if isTTY() {
		printf("  · %s\n", signal)
	} else {
		printf("signal: %s\n", signal)
	}
}

func init() {
	heartbeatCmd.Flags().StringVar(&heartbeatLabel, "label", "", "human-readable session label")
	claimCmd.Flags().StringSliceVar(&claimPaths, "paths", nil, "path globs to claim (repeatable)")
	bindCmd.Flags().StringVar(&bindReason, "reason", "", "why the binding was made")
	boardCmd.Flags().BoolVar(&boardWatch, "watch", false, "stream board updates as peers act")
	phaseCmd.Flags().StringSliceVar(&phaseTasks, "task", nil, "active task subjects (repeatable)")
	rootCmd.AddCommand(heartbeatCmd, claimCmd, requestCmd, bindCmd, boardCmd, phaseCmd)
}
