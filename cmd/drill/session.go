package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KHET-1/diamond-drill/internal/checkpoint"
	"github.com/KHET-1/diamond-drill/internal/config"
	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/export"
	"github.com/KHET-1/diamond-drill/internal/filter"
	"github.com/KHET-1/diamond-drill/internal/op"
	"github.com/KHET-1/diamond-drill/internal/sector"
	"github.com/KHET-1/diamond-drill/internal/stats"
	"github.com/KHET-1/diamond-drill/internal/ui"
)

// globalFlags are the persistent flags every command shares.
type globalFlags struct {
	stateDir   string
	blockSize  string
	retryDelay string
	logFile    string
	workers    int
	retries    int
	verbose    bool
	quiet      bool
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.stateDir, "state-dir", "", "directory for checkpoints and indexes (default: $XDG_STATE_HOME/drill)")
	f.StringVar(&g.blockSize, "block-size", "4K", "bad-sector reader block size (e.g. 4K, 64K)")
	f.StringVar(&g.retryDelay, "retry-delay", sector.DefaultBaseDelay.String(), "delay before the first retry of a failed block")
	f.StringVar(&g.logFile, "log", "", "write structured JSON log to FILE")
	f.IntVarP(&g.workers, "workers", "n", 0, "number of read workers (default: min(NumCPU, 8))")
	f.IntVar(&g.retries, "retries", sector.DefaultMaxRetries, "retries per unreadable block (0 disables)")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	f.BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")
}

// applyConfigDefaults applies config file defaults for flags not
// explicitly set on the CLI.
func (g *globalFlags) applyConfigDefaults(cmd *cobra.Command, d config.DefaultsConfig) {
	flags := cmd.Flags()
	fromConfig(flags, "workers", &g.workers, d.Workers)
	fromConfig(flags, "state-dir", &g.stateDir, d.StateDir)
	fromConfig(flags, "block-size", &g.blockSize, d.BlockSize)
	fromConfig(flags, "retries", &g.retries, d.Retries)
	fromConfig(flags, "retry-delay", &g.retryDelay, d.RetryDelay)
	fromConfig(flags, "log", &g.logFile, d.Log)
}

// fromConfig copies a config value into dst unless the user set the flag.
func fromConfig[T any](flags *pflag.FlagSet, name string, dst, v *T) {
	if v != nil && !flags.Changed(name) {
		*dst = *v
	}
}

// readOptions turns the sector flags into engine read options.
func (g *globalFlags) readOptions() (engine.ReadOptions, error) {
	var opts engine.ReadOptions
	bs, err := filter.ParseSize(g.blockSize)
	if err != nil {
		return opts, fmt.Errorf("invalid --block-size: %w", err)
	}
	if bs <= 0 || bs > 1<<24 {
		return opts, fmt.Errorf("invalid --block-size %q: want 1 byte to 16M", g.blockSize)
	}
	delay, err := time.ParseDuration(g.retryDelay)
	if err != nil {
		return opts, fmt.Errorf("invalid --retry-delay: %w", err)
	}
	opts.BlockSize = int(bs)
	opts.BaseDelay = delay
	opts.MaxRetries = g.retries
	if g.retries <= 0 {
		opts.MaxRetries = -1
	}
	return opts, nil
}

// session is the shared plumbing around one engine operation: config,
// logging, the event bus feeding a presenter, and signal handling.
type session struct {
	cfg       config.Config
	store     *checkpoint.Store
	stats     *stats.Collector
	bus       *event.Bus
	handle    *op.Handle
	presenter ui.Presenter
	errW      io.Writer
	stop      context.CancelFunc
	done      chan struct{}
	logClose  func()
	wg        sync.WaitGroup
	quiet     bool
}

func startSession(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", err)
	}
	g.applyConfigDefaults(cmd, cfg.Defaults)
	ui.ApplyTheme(cfg.Theme)

	s := &session{
		cfg:      cfg,
		stats:    stats.NewCollector(),
		bus:      event.NewBus(),
		errW:     cmd.ErrOrStderr(),
		quiet:    g.quiet,
		logClose: func() {},
		done:     make(chan struct{}),
	}

	logSink, err := s.setupLogging(g)
	if err != nil {
		return nil, err
	}

	stateDir := g.stateDir
	if stateDir == "" {
		stateDir = config.StateDir()
	}
	s.store = checkpoint.Open(stateDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s.stop = stop
	go forceQuitOnSecondSignal(ctx, s.done, s.errW)

	barWidth := 0
	if f, ok := s.errW.(*os.File); ok {
		barWidth = ui.BarWidth(f)
	}
	s.presenter = ui.NewPresenter(ui.Config{
		Writer:    cmd.OutOrStdout(),
		ErrWriter: s.errW,
		Stats:     s.stats,
		BarWidth:  barWidth,
		Quiet:     g.quiet,
		Verbose:   g.verbose,
	})
	sub := s.bus.Subscribe(0)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.presenter.Run(sub.C()); err != nil {
			fmt.Fprintf(s.errW, "presenter: %v\n", err)
		}
		if n := sub.Dropped(); n > 0 {
			slog.Debug("presenter dropped progress events", "count", n)
		}
	}()

	s.handle = op.New(ctx, event.Tee(s.bus, logSink))
	return s, nil
}

// setupLogging installs the default slog logger. With --log, records and
// engine events also go to a JSON file.
//
//nolint:ireturn // returns an optional sink
func (s *session) setupLogging(g *globalFlags) (event.Sink, error) {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	} else if !g.quiet {
		level = slog.LevelInfo
	}
	var handler slog.Handler = slog.NewTextHandler(s.errW, &slog.HandlerOptions{Level: level})
	if g.logFile == "" {
		slog.SetDefault(slog.New(handler))
		return nil, nil
	}

	lf, err := os.Create(g.logFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	s.logClose = func() { _ = lf.Close() }
	jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler = ui.NewMultiHandler(handler, jsonHandler)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return event.LogSink{Logger: slog.New(jsonHandler)}, nil
}

// forceQuitOnSecondSignal lets a second interrupt abandon the unit in
// flight. Export temp files are removed before exiting.
func forceQuitOnSecondSignal(ctx context.Context, done <-chan struct{}, errW io.Writer) {
	select {
	case <-ctx.Done():
	case <-done:
		return
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case <-sig:
		fmt.Fprintln(errW, "interrupted twice, abandoning current file")
		export.CleanupTmpFiles()
		os.Exit(130)
	case <-done:
	}
}

// finish drains the presenter and prints its summary.
func (s *session) finish() {
	s.bus.Close()
	s.wg.Wait()
	close(s.done)
	s.stop()
	if !s.quiet {
		if summary := s.presenter.Summary(); summary != "" {
			fmt.Fprintln(s.errW, summary)
		}
	}
	s.logClose()
}
