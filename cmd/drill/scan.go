package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/filter"
	"github.com/KHET-1/diamond-drill/internal/index"
)

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

type scanFlags struct {
	runID          string
	filterFile     string
	minSize        string
	maxSize        string
	largeThreshold string
	exts           []string
	skipHidden     bool
	ignoreCase     bool
	oneFileSystem  bool
}

func newScanCmd(g *globalFlags) *cobra.Command {
	var f scanFlags
	chain := filter.NewChain()

	cmd := &cobra.Command{
		Use:   "scan <source>",
		Short: "Index a source tree, hashing every file through the bad-sector reader",
		Long: `scan walks <source> and records size, times, detected type, content hash
and read health for every file. Unreadable blocks are retried and then
recorded; they never stop the scan. An interrupted scan writes a
checkpoint and the next scan of the same source resumes from it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, &f, chain, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.runID, "run-id", "", "run id (default: derived from the source path)")
	fl.Var(&filterFlag{chain: chain}, "exclude", "exclude files matching PATTERN (repeatable)")
	fl.Var(&filterFlag{chain: chain, include: true}, "include", "include files matching PATTERN (repeatable)")
	fl.StringVar(&f.filterFile, "filter", "", "read filter rules from FILE")
	fl.StringVar(&f.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fl.StringVar(&f.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	fl.StringSliceVar(&f.exts, "ext", nil, "only index these extensions (e.g. jpg,png)")
	fl.BoolVar(&f.skipHidden, "skip-hidden", false, "skip dot-files and dot-directories")
	fl.BoolVar(&f.ignoreCase, "ignore-case", false, "match --include, --exclude and filter-file patterns regardless of case")
	fl.BoolVarP(&f.oneFileSystem, "one-file-system", "x", false, "do not descend into other mounted filesystems")
	fl.StringVar(&f.largeThreshold, "large-threshold", "64M",
		"files from this size get a partial hash; dedup completes it on collision")
	return cmd
}

func (f *scanFlags) apply(chain *filter.Chain) error {
	if f.filterFile != "" {
		if err := chain.LoadFile(f.filterFile); err != nil {
			return fmt.Errorf("load filter file: %w", err)
		}
	}
	if f.minSize != "" {
		n, err := filter.ParseSize(f.minSize)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}
		chain.SetMinSize(n)
	}
	if f.maxSize != "" {
		n, err := filter.ParseSize(f.maxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		chain.SetMaxSize(n)
	}
	if f.skipHidden {
		chain.SetSkipHidden(true)
	}
	chain.AllowExtensions(f.exts...)
	if f.ignoreCase {
		return chain.SetIgnoreCase(true)
	}
	return nil
}

func runScan(cmd *cobra.Command, g *globalFlags, f *scanFlags, chain *filter.Chain, source string) error {
	if err := f.apply(chain); err != nil {
		return err
	}
	threshold, err := filter.ParseSize(f.largeThreshold)
	if err != nil {
		return fmt.Errorf("invalid --large-threshold: %w", err)
	}

	s, err := startSession(cmd, g)
	if err != nil {
		return err
	}
	read, err := g.readOptions()
	if err != nil {
		s.finish()
		return err
	}

	cfg := engine.ScanConfig{
		Store:              s.store,
		Stats:              s.stats,
		Root:               source,
		RunID:              f.runID,
		Workers:            g.workers,
		LargeFileThreshold: threshold,
		BlockSize:          read.BlockSize,
		MaxRetries:         read.MaxRetries,
		BaseDelay:          read.BaseDelay,
		OneFileSystem:      f.oneFileSystem,
	}
	if !chain.Empty() {
		cfg.Filter = chain
	}

	slog.Debug("starting scan", "source", source, "workers", g.workers, "state", s.store.Dir())
	res, err := engine.Scan(s.handle, cfg)
	s.finish()
	if err != nil {
		slog.Error("scan failed", "error", err)
		return errFailed
	}

	out := cmd.OutOrStdout()
	switch {
	case res.Cancelled:
		fmt.Fprintf(out, "scan interrupted; run %s resumes from %s\n", res.RunID, res.CheckpointPath)
		return errCancelled
	case res.IndexPath != "":
		fmt.Fprintf(out, "index %s (run %s)\n", res.IndexPath, res.RunID)
		fmt.Fprintln(out, healthSummary(res.Index.HealthCounts()))
	}
	if res.Stats.FilesFailed > 0 {
		return errPartial
	}
	return nil
}

func healthSummary(counts map[index.Health]int) string {
	return fmt.Sprintf("health: %d clean, %d recovered, %d recovered with errors, %d failed",
		counts[index.Clean], counts[index.Recovered], counts[index.RecoveredWithErrors], counts[index.Failed])
}
