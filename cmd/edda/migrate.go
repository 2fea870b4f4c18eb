package main

import (
	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/storage/factory"
)

var (
	migrateDryRun   bool
	migrateNoVerify bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Storage migrations",
}

var migrateSQLiteCmd = &cobra.Command{
	Use:   "sqlite",
	Short: "Migrate the JSONL ledger to SQLite",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		report, err := factory.MigrateJSONLToSQLite(cmd.Context(), paths, factory.MigrateOptions{
			Verify: !migrateNoVerify,
			DryRun: migrateDryRun,
		})
		if err != nil {
			return err
		}
		if migrateDryRun {
			printf("Would migrate %d events (%d decisions, %d branches, HEAD=%s)\n",
				report.EventsMigrated, report.DecisionsFound, report.BranchesCount, report.HeadBranch)
			return nil
		}
		printf("Migrated %d events (%d decisions, %d branches, HEAD=%s)\n",
			report.EventsMigrated, report.DecisionsFound, report.BranchesCount, report.HeadBranch)
		return nil
	},
}

func init() {
	migrateSQLiteCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report without migrating")
	migrateSQLiteCmd.Flags().BoolVar(&migrateNoVerify, "no-verify", false, "skip post-migration verification")
	migrateCmd.AddCommand(migrateSQLiteCmd)
	rootCmd.AddCommand(migrateCmd)
}
