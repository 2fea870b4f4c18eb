package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/board"
	"github.com/fagemx/edda/internal/pack"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/transcript"
)

var ingestTranscriptPath string

var ingestCmd = &cobra.Command{
	Use:   "ingest --transcript <path>",
	Short: "Delta-ingest an external JSONL transcript for this session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestTranscriptPath == "" {
			return fmt.Errorf("--transcript is required")
		}
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		projectID := projectIDFor(paths)
		projectDir, err := store.EnsureDirs(projectID)
		if err != nil {
			return err
		}
		sessionID, _ := board.ResolveSessionID(flagSession, projectID, "cli")

		indexPath := transcript.IndexPath(projectDir, sessionID)
		writer := func(raw []byte, offset, length uint64, parsed map[string]any) error {
			return transcript.AppendIndex(indexPath, transcript.BuildIndexRecord(sessionID, offset, length, parsed))
		}
		stats, err := transcript.IngestDelta(cmd.Context(), projectDir, sessionID, ingestTranscriptPath, writer)
		if err != nil {
			return err
		}
		printf("Ingested %d records (kept %d, dropped %d), offset %d -> %d\n",
			stats.RecordsRead, stats.RecordsKept, stats.RecordsDropped,
			stats.FromOffset, stats.ToOffset)
		return nil
	},
}

var (
	packTurns  int
	packBudget int
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Render the deterministic memory pack for this session",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		projectID := projectIDFor(paths)
		projectDir := store.ProjectDir(projectID)
		sessionID, _ := board.ResolveSessionID(flagSession, projectID, "cli")

		branch, err := led.HeadBranch(cmd.Context())
		if err != nil {
			return err
		}
		turns, err := pack.BuildTurns(projectDir, sessionID, packTurns)
		if err != nil {
			return err
		}
		fmt.Print(pack.Render(turns, pack.Metadata{
			ProjectID: projectID,
			SessionID: sessionID,
			GitBranch: branch,
		}, packBudget))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTranscriptPath, "transcript", "", "path to the external transcript JSONL")
	packCmd.Flags().IntVar(&packTurns, "turns", 0, "max turns (default from EDDA_PACK_TURNS)")
	packCmd.Flags().IntVar(&packBudget, "budget", 0, "char budget (default from EDDA_PACK_BUDGET_CHARS)")
	rootCmd.AddCommand(ingestCmd, packCmd)
}
