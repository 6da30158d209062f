package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/export"
	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/filter"
	"github.com/KHET-1/diamond-drill/internal/index"
)

type exportFlags struct {
	scanRun        string
	runID          string
	bwLimit        string
	haltOnError    bool
	resume         bool
	skipUnreadable bool
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export <source> <destination>",
		Short: "Copy indexed files to a destination and write a proof manifest",
		Long: `export copies every file in the scan index of <source> to <destination>,
verifies each copy by hash and records it in drill-proof.json. Unreadable
blocks are zero-filled and the file is marked recovered-with-errors. By
default a failed file is recorded and the export moves on; with
--halt-on-error the first failure stops the run and leaves a checkpoint
that --resume continues from.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, g, &f, args[0], args[1])
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.scanRun, "scan-run", "", "run id of the scan to export (default: derived from the source path)")
	fl.StringVar(&f.runID, "run-id", "", "export run id (default: derived from the destination path)")
	fl.StringVar(&f.bwLimit, "bwlimit", "", "write bandwidth limit (e.g. 100M, 1G)")
	fl.BoolVar(&f.haltOnError, "halt-on-error", false, "stop at the first file that cannot be exported")
	fl.BoolVar(&f.resume, "resume", false, "continue an interrupted export from its checkpoint")
	fl.BoolVar(&f.skipUnreadable, "skip-unreadable", false, "leave out files the scan could not read at all")
	return cmd
}

func (f *exportFlags) applyConfig(cmd *cobra.Command, s *session) {
	d := s.cfg.Defaults
	fromConfig(cmd.Flags(), "halt-on-error", &f.haltOnError, d.HaltOnError)
	fromConfig(cmd.Flags(), "bwlimit", &f.bwLimit, d.BWLimit)
}

//nolint:gocyclo // maps every export outcome to an exit code
func runExport(cmd *cobra.Command, g *globalFlags, f *exportFlags, source, dest string) error {
	s, err := startSession(cmd, g)
	if err != nil {
		return err
	}
	f.applyConfig(cmd, s)

	read, err := g.readOptions()
	if err != nil {
		s.finish()
		return err
	}
	var bwLimit int64
	if f.bwLimit != "" {
		if bwLimit, err = filter.ParseSize(f.bwLimit); err != nil {
			s.finish()
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	cfg := export.Config{
		Store:       s.store,
		Stats:       s.stats,
		SourceRoot:  source,
		Destination: dest,
		RunID:       f.runID,
		BWLimit:     bwLimit,
		BlockSize:   read.BlockSize,
		MaxRetries:  read.MaxRetries,
		BaseDelay:   read.BaseDelay,
	}
	if f.haltOnError {
		cfg.Policy = export.HaltOnError
	}

	var res export.Result
	if f.resume {
		res, err = export.Resume(s.handle, cfg)
		if errors.Is(err, fault.ErrNotFound) {
			s.finish()
			return fmt.Errorf("nothing to resume for %s: %w", dest, err)
		}
	} else {
		var idx *index.ScanIndex
		idx, err = loadIndex(s.store, source, f.scanRun)
		if err != nil {
			s.finish()
			return err
		}
		res, err = export.Export(s.handle, exportEntries(idx, f.skipUnreadable), cfg)
	}
	s.finish()

	out := cmd.OutOrStdout()
	if res.Manifest != nil && res.Manifest.Sealed() {
		fmt.Fprintf(out, "manifest %s\nroot %s\n", res.ManifestPath, res.Manifest.RootDigest)
	}

	var halt *fault.HaltError
	switch {
	case errors.As(err, &halt):
		fmt.Fprintln(cmd.ErrOrStderr(), halt.Error())
		return errPartial
	case err != nil:
		slog.Error("export failed", "error", err)
		return errFailed
	case res.Cancelled:
		fmt.Fprintf(out, "export interrupted; continue with --resume (checkpoint %s)\n", res.CheckpointPath)
		return errCancelled
	case res.Failed > 0 && res.Recovered == 0:
		return errFailed
	case res.Failed > 0:
		return errPartial
	}
	return nil
}

// exportEntries lists index entries in export order.
func exportEntries(idx *index.ScanIndex, skipUnreadable bool) []index.FileEntry {
	entries := idx.Entries()
	if !skipUnreadable {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Health.Readable() {
			out = append(out, e)
		}
	}
	return out
}
