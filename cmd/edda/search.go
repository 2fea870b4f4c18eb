package main

import (
	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/board"
	"github.com/fagemx/edda/internal/search"
	"github.com/fagemx/edda/internal/store"
)

var (
	searchDocType string
	searchBranch  string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over events and transcript turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		projectDir := store.ProjectDir(projectIDFor(paths))
		ix, err := search.Open(search.DefaultPath(projectDir))
		if err != nil {
			return err
		}
		defer func() { _ = ix.Close() }()

		hits, err := ix.Search(cmd.Context(), search.Query{
			Text:    args[0],
			DocType: searchDocType,
			Branch:  searchBranch,
			Limit:   searchLimit,
		})
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			printf("No results.\n")
			return nil
		}
		for _, h := range hits {
			if h.Title != "" {
				printf("[%s] %s — %s\n    %s\n", h.DocType, h.DocID, h.Title, h.Snippet)
			} else {
				printf("[%s] %s\n    %s\n", h.DocType, h.DocID, h.Snippet)
			}
		}
		return nil
	},
}

var reindexSessions []string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text index from the ledger and sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		projectID := projectIDFor(paths)
		projectDir, err := store.EnsureDirs(projectID)
		if err != nil {
			return err
		}
		ix, err := search.Open(search.DefaultPath(projectDir))
		if err != nil {
			return err
		}
		defer func() { _ = ix.Close() }()

		events, err := led.IterEvents(ctx)
		if err != nil {
			return err
		}
		eventCount, err := ix.IndexEvents(ctx, projectID, events)
		if err != nil {
			return err
		}
		printf("Indexed %d events\n", eventCount)

		sessions := reindexSessions
		if len(sessions) == 0 {
			sessionID, _ := board.ResolveSessionID(flagSession, projectID, "cli")
			sessions = []string{sessionID}
		}
		for _, sessionID := range sessions {
			turnCount, err := ix.IndexSession(ctx, projectID, projectDir, sessionID)
			if err != nil {
				return err
			}
			printf("Indexed %d new turns for %s\n", turnCount, sessionID)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchDocType, "type", "", "restrict to doc type (event, turn)")
	searchCmd.Flags().StringVar(&searchBranch, "branch", "", "restrict to a branch")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "max results")
	reindexCmd.Flags().StringSliceVar(&reindexSessions, "session-id", nil, "sessions to index (repeatable)")
	rootCmd.AddCommand(searchCmd, reindexCmd)
}
