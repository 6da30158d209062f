package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/proof"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return execute(newRootCmd(), args)
}

func execute(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.cause != nil {
				fmt.Fprintln(root.ErrOrStderr(), exitErr.cause)
			}
			return exitErr.code
		}
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	proof.ToolVersion = version
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "drill",
		Short: "Offline recovery for failing disks: scan, deduplicate and export with proof",
		Long: `drill indexes a mounted source tree through a bad-sector tolerant reader,
finds exact and near duplicates, and exports files to a destination with a
verifiable proof manifest. Interrupted scans and exports resume from their
last checkpoint.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.register(rootCmd)

	rootCmd.AddCommand(newScanCmd(g))
	rootCmd.AddCommand(newDedupCmd(g))
	rootCmd.AddCommand(newExportCmd(g))
	rootCmd.AddCommand(newVerifyCmd(g))
	rootCmd.AddCommand(newReportCmd(g))
	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

// exitError carries a process exit code through cobra: 1 for a partial
// result, 2 for a failed run. cause, when set, is reported on stderr.
type exitError struct {
	cause error
	code  int
}

func (e *exitError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("exit code %d: %v", e.code, e.cause)
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.cause }

var (
	errPartial   = &exitError{code: 1}
	errFailed    = &exitError{code: 2}
	errCancelled = &exitError{code: 1, cause: fault.ErrCancelled}
)
