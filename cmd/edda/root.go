package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fagemx/edda/internal/debug"
	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/storage/factory"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

var (
	flagSession string
	flagQuiet   bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "edda",
	Short: "Local-first working memory for development teams and coding agents",
	Long: `edda records an append-only, hash-chained ledger of events (notes,
decisions, commits, commands, merges) under .edda/ at the repository root,
and derives searchable views and a multi-agent coordination board from it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetQuiet(flagQuiet)
		debug.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "", "explicit session id for event attribution")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose diagnostic output")
}

// findWorkspace resolves the .edda/ workspace from the current directory.
func findWorkspace() (workspace.Paths, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return workspace.Paths{}, err
	}
	root := workspace.FindRoot(cwd)
	if root == "" {
		return workspace.Paths{}, fmt.Errorf("no .edda workspace found (run 'edda init' at the repo root)")
	}
	return workspace.Discover(root), nil
}

// openLedger opens the detected backend for the current workspace.
func openLedger() (workspace.Paths, storage.Ledger, error) {
	paths, err := findWorkspace()
	if err != nil {
		return workspace.Paths{}, nil, err
	}
	led, err := factory.Open(paths)
	if err != nil {
		return workspace.Paths{}, nil, err
	}
	return paths, led, nil
}

// projectIDFor returns the state-store project id for the workspace.
func projectIDFor(paths workspace.Paths) string {
	return store.ProjectID(paths.Root)
}

// appendChained builds an event against the current branch tip and appends
// it. build receives the parent hash (nil for a branch root).
func appendChained(cmd *cobra.Command, led storage.Ledger, branch string, build func(parent *string) (*types.Event, error)) (*types.Event, error) {
	ctx := cmd.Context()
	tip, err := led.TipHash(ctx, branch)
	if err != nil {
		return nil, err
	}
	var parent *string
	if tip != "" {
		parent = &tip
	}
	e, err := build(parent)
	if err != nil {
		return nil, err
	}
	if err := led.AppendEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// isTTY reports whether stdout is a terminal (plain output otherwise).
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printf(format string, args ...any) {
	debug.PrintNormal(format, args...)
}
