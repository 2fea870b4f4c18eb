package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the workspace pattern library (.edda/patterns/*.toml)",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		list, err := patterns.List(paths)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			printf("No patterns.\n")
			return nil
		}
		for _, p := range list {
			line := p.Name
			if p.Description != "" {
				line += " — " + p.Description
			}
			if len(p.Tags) > 0 {
				line += " [" + strings.Join(p.Tags, ", ") + "]"
			}
			printf("%s\n", line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(patternsCmd)
}
