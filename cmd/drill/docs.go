package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newDocsCmd renders man pages or markdown for every drill command. It is
// hidden because only packaging uses it.
func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Write drill man pages or markdown reference",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeDocs(cmd.Root(), dir, format)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "man or markdown")
	return cmd
}

func writeDocs(root *cobra.Command, dir, format string) error {
	var gen func() error
	switch format {
	case "man":
		gen = func() error {
			return doc.GenManTree(root, &doc.GenManHeader{
				Title:   "DRILL",
				Section: "1",
				Source:  "drill " + version,
				Manual:  "Offline Recovery",
			}, dir)
		}
	case "markdown", "md":
		gen = func() error { return doc.GenMarkdownTree(root, dir) }
	default:
		return fmt.Errorf("unknown docs format %q (want man or markdown)", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create docs dir: %w", err)
	}
	root.DisableAutoGenTag = true
	return gen()
}
