package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/config"
	"github.com/fagemx/edda/internal/storage/sqlite"
	"github.com/fagemx/edda/internal/workspace"
)

var initSQLite bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an .edda workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths := workspace.Discover(cwd)
		if paths.IsInitialized() {
			return fmt.Errorf(".edda already exists at %s", paths.EddaDir)
		}
		if err := paths.EnsureLayout(); err != nil {
			return err
		}

		cfg := &config.Config{}
		if err := cfg.Save(paths.ConfigJSON); err != nil {
			return err
		}
		if err := os.WriteFile(paths.HeadFile, []byte("main\n"), 0o644); err != nil { // #nosec G306 - shared via git
			return err
		}

		if initSQLite {
			st, err := sqlite.OpenOrCreate(paths)
			if err != nil {
				return err
			}
			if err := st.SetHeadBranch(cmd.Context(), "main"); err != nil {
				_ = st.Close()
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
		}

		backend := "jsonl"
		if initSQLite {
			backend = "sqlite"
		}
		printf("Initialized .edda workspace at %s (backend: %s)\n", paths.EddaDir, backend)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initSQLite, "sqlite", false, "use the SQLite ledger backend")
	rootCmd.AddCommand(initCmd)
}
