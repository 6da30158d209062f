// Package engine indexes a source tree: a parallel directory walk feeds a
// pool of hashing workers that read every file through the bad-sector
// reader, and a single collector builds the ScanIndex, checkpointing as it
// goes so an interrupted scan resumes where it stopped.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/KHET-1/diamond-drill/internal/checkpoint"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/filter"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/op"
	"github.com/KHET-1/diamond-drill/internal/platform"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

const (
	DefaultCheckpointEvery    = 256
	DefaultCheckpointInterval = 5 * time.Second
	DefaultProgressInterval   = 250 * time.Millisecond
)

// ScanConfig describes a scan.
type ScanConfig struct {
	Store              *checkpoint.Store // nil disables checkpoints and the index database
	Filter             *filter.Chain
	Stats              *stats.Collector
	Open               OpenFunc // defaults to a read-only, no-atime open
	Root               string
	RunID              string // defaults to checkpoint.DefaultRunID("scan", Root)
	Workers            int
	ScanWorkers        int
	LargeFileThreshold int64
	PartialChunk       int64
	CheckpointEvery    int
	CheckpointInterval time.Duration
	ProgressInterval   time.Duration
	BlockSize          int
	MaxRetries         int
	BaseDelay          time.Duration
	OneFileSystem      bool // do not descend into directories on other devices
}

func (c *ScanConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = min(runtime.NumCPU(), 8)
	}
	if c.ScanWorkers <= 0 {
		c.ScanWorkers = min(runtime.NumCPU(), 8)
	}
	if c.LargeFileThreshold <= 0 {
		c.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if c.PartialChunk <= 0 {
		c.PartialChunk = DefaultPartialChunk
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.Open == nil {
		c.Open = openReadOnly
	}
	if c.Stats == nil {
		c.Stats = stats.NewCollector()
	}
}

// ScanResult is the outcome of a scan.
type ScanResult struct {
	Index          *index.ScanIndex
	RunID          string
	IndexPath      string // set when a complete index was persisted
	CheckpointPath string // set when a cancelled scan left a checkpoint
	Stats          stats.Snapshot
	Resumed        int
	Cancelled      bool
	SourceReadOnly bool
}

// activeScans guards against two scans of the same root in one process.
var activeScans sync.Map

// Scan indexes cfg.Root. Per-file read problems are recorded on the entry
// and never stop the scan; only a failure to persist progress does. A
// cancelled scan returns the partial index with Cancelled set and a nil
// error.
func Scan(h *op.Handle, cfg ScanConfig) (ScanResult, error) {
	cfg.applyDefaults()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return ScanResult{}, fmt.Errorf("resolve source: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return ScanResult{}, fmt.Errorf("source: %w", err)
	}
	if !info.IsDir() {
		return ScanResult{}, fmt.Errorf("source %s is not a directory", root)
	}

	if _, busy := activeScans.LoadOrStore(root, struct{}{}); busy {
		return ScanResult{}, fmt.Errorf("%s: %w", root, fault.ErrScanInProgress)
	}
	defer activeScans.Delete(root)

	fp, err := checkpoint.Fingerprint(root)
	if err != nil {
		return ScanResult{}, err
	}
	runID := cfg.RunID
	if runID == "" {
		runID = checkpoint.DefaultRunID("scan", root)
	}

	s := &scan{
		h:     h,
		cfg:   cfg,
		root:  root,
		runID: runID,
		idx:   index.New(root, fp, runID),
		ro:    platform.WarnIfWritable(root),
	}
	if cfg.Store != nil {
		s.journalPath = filepath.Join(cfg.Store.RunDir(runID), index.JournalName)
		if err := s.loadPrior(fp); err != nil {
			return ScanResult{}, err
		}
	}
	if cfg.OneFileSystem {
		s.dev, s.oneFS = platform.DeviceID(info)
	}
	return s.run()
}

// loadPrior picks up the entries an interrupted scan journaled. A stale or
// missing checkpoint discards the journal.
func (s *scan) loadPrior(fp string) error {
	cp, err := s.cfg.Store.Load(s.runID, checkpoint.PhaseScan, fp)
	if err != nil {
		if !fault.IsFreshStart(err) {
			slog.Warn("ignoring unreadable scan checkpoint", "run", s.runID, "error", err)
		}
		return index.RemoveJournal(s.journalPath)
	}
	j, err := index.OpenJournal(s.journalPath)
	if err != nil {
		return err
	}
	entries, err := j.Entries()
	if err != nil {
		j.Close()
		slog.Warn("ignoring unreadable scan journal", "run", s.runID, "error", err)
		return index.RemoveJournal(s.journalPath)
	}
	s.journal = j
	s.prior = make(map[string]index.FileEntry, len(entries))
	for _, e := range entries {
		s.prior[e.Path] = e
	}
	slog.Info("resuming scan", "run", s.runID, "entries", len(s.prior), "cursor", cp.Cursor)
	return nil
}

type scanResult struct {
	entry   index.FileEntry
	resumed bool
}

type scan struct {
	h       *op.Handle
	prior   map[string]index.FileEntry
	idx     *index.ScanIndex
	root    string
	runID   string
	cfg     ScanConfig
	dev     uint64
	oneFS   bool
	resumed int // entries reused unchanged from the checkpoint
	ro      bool
	abort   atomic.Bool

	journal     *index.Journal
	journalPath string
	pending     []index.FileEntry // settled since the last checkpoint
	cursor      string
}

func (s *scan) stopped() bool {
	return s.abort.Load() || s.h.Cancelled()
}

func (s *scan) run() (ScanResult, error) {
	h, cfg := s.h, s.cfg
	h.Emit(event.Event{Type: event.OperationStarted, Op: event.OpScan, Path: s.root})

	w := &walker{
		root:    s.root,
		workers: cfg.ScanWorkers,
		filter:  cfg.Filter,
		stats:   cfg.Stats,
		stop:    s.stopped,
		tasks:   make(chan fileTask, cfg.Workers*4),
		dev:     s.dev,
		oneFS:   s.oneFS,
		onErr: func(rel string, err error) {
			h.Fail(event.OpScan, rel, err)
		},
	}
	go w.run()

	ix := &indexer{
		sink:      h,
		stats:     cfg.Stats,
		threshold: cfg.LargeFileThreshold,
		chunk:     cfg.PartialChunk,
		opts: ReadOptions{
			Open:       cfg.Open,
			BlockSize:  cfg.BlockSize,
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
		},
	}

	results := make(chan scanResult, cfg.Workers*4)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range w.tasks {
				if s.stopped() {
					continue // drain so the walker can exit
				}
				if prev, ok := s.prior[t.rel]; ok &&
					prev.Size == t.info.Size() && prev.ModTime.Equal(t.info.ModTime()) {
					results <- scanResult{entry: prev, resumed: true}
					continue
				}
				// The file is read to the end even if a cancel arrives meanwhile.
				results <- scanResult{entry: ix.index(h.RetryContext(), t)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	persistErr := s.collect(results, w)
	defer s.closeJournal()

	s.idx.EstimatedTotal = w.found.Load()
	res := ScanResult{Index: s.idx, RunID: s.runID, Resumed: s.resumed, SourceReadOnly: s.ro}

	if persistErr != nil {
		s.complete(true)
		res.Stats = cfg.Stats.Snapshot()
		return res, persistErr
	}

	if h.Cancelled() {
		res.Cancelled = true
		if cfg.Store != nil {
			if err := s.saveCheckpoint(); err != nil {
				s.complete(false)
				res.Stats = cfg.Stats.Snapshot()
				return res, err
			}
			res.CheckpointPath = cfg.Store.Path(s.runID, checkpoint.PhaseScan)
		}
		s.idx.Freeze()
		s.complete(false)
		res.Stats = cfg.Stats.Snapshot()
		return res, nil
	}

	s.idx.Freeze()
	if cfg.Store != nil {
		dbPath := filepath.Join(cfg.Store.RunDir(s.runID), index.DBName)
		if err := index.SaveDB(dbPath, s.idx); err != nil {
			s.complete(true)
			res.Stats = cfg.Stats.Snapshot()
			return res, err
		}
		res.IndexPath = dbPath
		if err := cfg.Store.Clear(s.runID, checkpoint.PhaseScan); err != nil {
			slog.Warn("could not clear scan checkpoint", "run", s.runID, "error", err)
		}
		s.closeJournal()
		if err := index.RemoveJournal(s.journalPath); err != nil {
			slog.Warn("could not remove scan journal", "run", s.runID, "error", err)
		}
	}
	s.complete(false)
	res.Stats = cfg.Stats.Snapshot()
	return res, nil
}

// collect is the only writer of the index. It checkpoints every
// CheckpointEvery entries or CheckpointInterval, whichever comes first.
func (s *scan) collect(results <-chan scanResult, w *walker) error {
	h, cfg := s.h, s.cfg
	progress := rate.Sometimes{Interval: cfg.ProgressInterval}
	sinceSave := 0
	lastSave := time.Now()
	var persistErr error

	for r := range results {
		e := r.entry
		s.idx.Put(e)
		s.account(r)
		s.cursor = e.Path
		if !r.resumed && cfg.Store != nil {
			s.pending = append(s.pending, e)
		}

		status := string(e.Health)
		if r.resumed {
			status = event.StatusResumed
		}
		h.Emit(event.Event{Type: event.FileFound, Op: event.OpScan, Path: e.Path, Size: e.Size, Status: status})
		if e.Health == index.Failed {
			h.Fail(event.OpScan, e.Path, errors.New(e.Error))
		}
		progress.Do(func() {
			h.Emit(event.Event{
				Type:  event.ScanProgress,
				Op:    event.OpScan,
				Path:  e.Path,
				Done:  s.idx.Scanned,
				Total: w.found.Load(),
				Bytes: s.idx.Bytes,
			})
		})

		if cfg.Store == nil || persistErr != nil {
			continue
		}
		sinceSave++
		if sinceSave >= cfg.CheckpointEvery || time.Since(lastSave) >= cfg.CheckpointInterval {
			if err := s.saveCheckpoint(); err != nil {
				persistErr = err
				s.abort.Store(true)
				h.Fail(event.OpScan, s.root, err)
				continue
			}
			sinceSave = 0
			lastSave = time.Now()
		}
	}
	return persistErr
}

func (s *scan) account(r scanResult) {
	st := s.cfg.Stats
	if r.resumed {
		s.resumed++
		st.AddFilesResumed(1)
	}
	st.AddFilesScanned(1)
	switch r.entry.Health {
	case index.Failed:
		st.AddFilesFailed(1)
	case index.Recovered, index.RecoveredWithErrors:
		st.AddFilesRecovered(1)
	}
}

// saveCheckpoint appends the entries settled since the last save to the
// journal, then records the cursor. The journal commit comes first so a
// checkpoint never points past what was persisted.
func (s *scan) saveCheckpoint() error {
	if s.journal == nil {
		j, err := index.OpenJournal(s.journalPath)
		if err != nil {
			return err
		}
		s.journal = j
	}
	if err := s.journal.Append(s.pending); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return s.cfg.Store.Save(&checkpoint.Checkpoint{
		RunID:       s.runID,
		Fingerprint: s.idx.Fingerprint,
		Phase:       checkpoint.PhaseScan,
		Processed:   s.idx.Scanned,
		Cursor:      s.cursor,
	})
}

func (s *scan) closeJournal() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		slog.Warn("could not close scan journal", "path", s.journalPath, "error", err)
	}
	s.journal = nil
}

func (s *scan) complete(halted bool) {
	s.h.Complete(event.OpScan, s.idx.Scanned, max(s.idx.EstimatedTotal, s.idx.Scanned), s.idx.Bytes, halted)
}
