// Command pagedtree is the CLI over the core's public operations
// (SPEC_FULL.md §1.1): init, put, get, delete, scan, check, print, load, and
// serve. None of this belongs to internal/btree; it's an external
// collaborator per spec.md §1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbPath      string
		carbonAware bool
		carbonRegion string
		logPath     string
	)

	root := &cobra.Command{
		Use:   "pagedtree",
		Short: "Operate a paged, on-disk B+Tree store",
	}
	root.PersistentFlags().StringVar(&dbPath, "file", "pagedtree.db", "path to the backing file")
	root.PersistentFlags().BoolVar(&carbonAware, "carbon-aware", false, "defer fsync under high carbon intensity")
	root.PersistentFlags().StringVar(&carbonRegion, "carbon-region", "local", "carbon intensity region")
	root.PersistentFlags().StringVar(&logPath, "log-file", "", "rotate structured logs to this path instead of stderr")

	env := &cliEnv{
		dbPath:       &dbPath,
		carbonAware:  &carbonAware,
		carbonRegion: &carbonRegion,
		logPath:      &logPath,
	}

	root.AddCommand(
		newInitCmd(env),
		newPutCmd(env),
		newGetCmd(env),
		newDeleteCmd(env),
		newScanCmd(env),
		newCheckCmd(env),
		newPrintCmd(env),
		newLoadCmd(env),
		newServeCmd(env),
	)
	return root
}

// cliEnv carries the persistent flags every subcommand needs to open a
// pager/tree/logger with consistent configuration.
type cliEnv struct {
	dbPath       *string
	carbonAware  *bool
	carbonRegion *string
	logPath      *string
}
