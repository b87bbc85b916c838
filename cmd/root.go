// Package cmd implements the embeddb CLI: thin cobra commands that
// construct a collection, wire it into the vtab module, and drive
// execute_select. No business logic lives here (SPEC_FULL.md §9) — every
// command delegates to internal/collection, internal/loader, internal/fsck,
// or internal/queryengine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

var (
	dbDir      string
	schemaPath string
	configPath string
	indexFlags []string
)

var rootCmd = &cobra.Command{
	Use:     "embeddb",
	Short:   "embeddb: an embedded, append-mostly document database",
	Version: fmt.Sprintf("%s (commit %s)", Version, Commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbDir, "dir", "d", ".", "Collection data directory")
	rootCmd.PersistentFlags().StringVarP(&schemaPath, "schema", "s", "", "Path to a JSON schema file")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an HCL dbconfig file (optional)")
	rootCmd.PersistentFlags().StringArrayVarP(&indexFlags, "index", "i", nil, "Index declaration name:kind:column[:asc], repeatable")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(fsckCmd)
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
