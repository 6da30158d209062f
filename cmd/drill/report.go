package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/sector"
	"github.com/KHET-1/diamond-drill/internal/ui"
)

func newReportCmd(g *globalFlags) *cobra.Command {
	var (
		scanRun string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "report <source>",
		Short: "Show the bad sectors a scan found",
		Long: `report reads the index of a completed scan and lists every file that did
not read cleanly: its health, the share of it that was readable, a heatmap
of where the damage sits and the offsets of blocks that never read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd, g)
			if err != nil {
				return err
			}
			idx, err := loadIndex(s.store, args[0], scanRun)
			s.finish()
			if err != nil {
				return err
			}

			rep := sector.NewReport(idx)
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				return nil
			}
			ui.RenderSectors(out, rep)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&scanRun, "scan-run", "", "run id of the scan to read (default: derived from the source path)")
	fl.BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}
