package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/checkpoint"
	"github.com/KHET-1/diamond-drill/internal/dedup"
	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/ui"
)

// loadIndex opens the index a completed scan of source saved.
func loadIndex(store *checkpoint.Store, source, scanRun string) (*index.ScanIndex, error) {
	root, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	if scanRun == "" {
		scanRun = checkpoint.DefaultRunID("scan", root)
	}
	path := filepath.Join(store.RunDir(scanRun), index.DBName)
	idx, err := index.LoadDB(path)
	if errors.Is(err, fault.ErrNotFound) {
		return nil, fmt.Errorf("no index for %s (run %s): run `drill scan %s` first", root, scanRun, source)
	}
	return idx, err
}

type dedupFlags struct {
	scanRun       string
	mode          string
	threshold     float64
	nameWeight    float64
	contentWeight float64
	jsonOut       bool
}

func newDedupCmd(g *globalFlags) *cobra.Command {
	var f dedupFlags
	cmd := &cobra.Command{
		Use:   "dedup <source>",
		Short: "Group exact and near-duplicate files from a scan index",
		Long: `dedup reads the index of a completed scan and reports duplicate groups.
exact groups share a full content hash; fuzzy groups are files of the
same type whose names and sampled content are similar. Each group names
a master: the shallowest copy, then the newest, then the first by name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(cmd, g, &f, args[0])
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.scanRun, "scan-run", "", "run id of the scan to read (default: derived from the source path)")
	fl.StringVar(&f.mode, "mode", string(dedup.ModeExact), "exact, fuzzy or both")
	fl.Float64Var(&f.threshold, "threshold", dedup.DefaultThreshold, "minimum fuzzy similarity (0-1]")
	fl.Float64Var(&f.nameWeight, "name-weight", dedup.DefaultNameWeight, "weight of name similarity in the fuzzy score")
	fl.Float64Var(&f.contentWeight, "content-weight", dedup.DefaultContentWeight, "weight of content similarity in the fuzzy score")
	fl.BoolVar(&f.jsonOut, "json", false, "print the report as JSON")
	return cmd
}

// applyConfig applies [dedup] config values for flags not set on the CLI.
func (f *dedupFlags) applyConfig(cmd *cobra.Command, s *session) {
	d := s.cfg.Dedup
	flags := cmd.Flags()
	fromConfig(flags, "mode", &f.mode, d.Mode)
	fromConfig(flags, "threshold", &f.threshold, d.Threshold)
	fromConfig(flags, "name-weight", &f.nameWeight, d.NameWeight)
	fromConfig(flags, "content-weight", &f.contentWeight, d.ContentWeight)
}

func runDedup(cmd *cobra.Command, g *globalFlags, f *dedupFlags, source string) error {
	s, err := startSession(cmd, g)
	if err != nil {
		return err
	}
	f.applyConfig(cmd, s)

	mode, err := dedup.ParseMode(f.mode)
	if err != nil {
		s.finish()
		return err
	}
	read, err := g.readOptions()
	if err != nil {
		s.finish()
		return err
	}
	idx, err := loadIndex(s.store, source, f.scanRun)
	if err != nil {
		s.finish()
		return err
	}

	rep, err := dedup.Run(s.handle, idx, dedup.Config{
		Stats:         s.stats,
		Mode:          mode,
		Read:          read,
		Workers:       g.workers,
		Threshold:     f.threshold,
		NameWeight:    f.nameWeight,
		ContentWeight: f.contentWeight,
	})
	s.finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	} else {
		ui.RenderDedup(out, rep)
	}
	if rep.Cancelled {
		return errCancelled
	}
	return nil
}
