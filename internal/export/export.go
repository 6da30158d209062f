// Package export copies indexed files out of a source tree into a
// destination, verifying every copy and recording the results in a proof
// manifest. The source is only ever opened for reading.
package export

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"

	"github.com/KHET-1/diamond-drill/internal/checkpoint"
	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/op"
	"github.com/KHET-1/diamond-drill/internal/platform"
	"github.com/KHET-1/diamond-drill/internal/proof"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// Policy decides what a failed entry does to the rest of the run.
type Policy int

const (
	// ForwardOnError records the failure and moves on.
	ForwardOnError Policy = iota
	// HaltOnError stops at the first failure and checkpoints the rest.
	HaltOnError
)

func (p Policy) String() string {
	if p == HaltOnError {
		return "halt-on-error"
	}
	return "forward-on-error"
}

// ErrDestinationInSource rejects exports that would write under the
// source root.
var ErrDestinationInSource = errors.New("destination lies inside the source root")

// Config controls an export run.
type Config struct {
	Store       *checkpoint.Store
	Stats       *stats.Collector
	Open        engine.OpenFunc // defaults to a read-only, no-atime open
	SourceRoot  string
	Destination string
	RunID       string // defaults to one derived from the destination
	Policy      Policy
	BWLimit     int64 // bytes per second, 0 for unlimited
	BlockSize   int
	MaxRetries  int
	BaseDelay   time.Duration

	carry *proof.Manifest // unfinished manifest continued by Resume
}

// Result describes a finished, cancelled or halted export run.
type Result struct {
	Manifest       *proof.Manifest
	Jobs           []*Job
	RunID          string
	ManifestPath   string
	CheckpointPath string // set when entries remain to be exported
	Recovered      int
	Failed         int
	Cancelled      bool
	Halted         bool
	SourceReadOnly bool
}

// Queued returns the jobs that were never started.
func (r Result) Queued() []*Job {
	var out []*Job
	for _, j := range r.Jobs {
		if j.State == Queued {
			out = append(out, j)
		}
	}
	return out
}

type exporter struct {
	h       *op.Handle
	limiter *rate.Limiter
	cfg     Config
}

// Export copies entries in order. Cancellation is observed only between
// entries, so every file is either fully copied and verified or never
// started. The manifest is written to <destination>/drill-proof.json on
// every outcome. Under HaltOnError the first failure stops the run and the
// returned error is a *fault.HaltError.
func Export(h *op.Handle, entries []index.FileEntry, cfg Config) (Result, error) {
	if err := cfg.prepare(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(cfg.Destination, 0o755); err != nil {
		return Result{}, fmt.Errorf("create destination: %w", err)
	}

	x := &exporter{h: h, cfg: cfg}
	if cfg.BWLimit > 0 {
		x.limiter = NewBWLimiter(cfg.BWLimit)
	}

	manifest := cfg.carry
	if manifest == nil {
		manifest = proof.NewManifest(cfg.RunID, cfg.SourceRoot, cfg.Destination)
	}
	res := Result{
		RunID:        cfg.RunID,
		Manifest:     manifest,
		ManifestPath: filepath.Join(cfg.Destination, proof.FileName),
		Jobs:         make([]*Job, len(entries)),
	}
	for i, e := range entries {
		res.Jobs[i] = &Job{Entry: e}
	}
	if cfg.SourceRoot != "" {
		res.SourceReadOnly = platform.WarnIfWritable(cfg.SourceRoot)
	}

	h.Emit(event.Event{Type: event.OperationStarted, Op: event.OpExport, Path: cfg.Destination, Total: int64(len(entries))})
	slog.Info("export started", "run", cfg.RunID, "entries", len(entries), "dest", cfg.Destination, "policy", cfg.Policy)

	var (
		done    int
		bytes   int64
		haltErr *fault.HaltError
	)
	for i, j := range res.Jobs {
		if h.Cancelled() {
			res.Cancelled = true
			break
		}
		x.run(j, i, len(entries))
		done++
		if j.State == Recovered {
			res.Recovered++
			bytes += j.Bytes
		} else {
			res.Failed++
		}
		if j.State == Failed && cfg.Policy == HaltOnError {
			res.Halted = true
			haltErr = &fault.HaltError{Op: "export", Entry: j.Entry.Path, Cause: j.Err}
			break
		}
	}

	status := proof.StatusComplete
	switch {
	case res.Halted:
		status = proof.StatusHalted
	case res.Cancelled:
		status = proof.StatusCancelled
	}
	for _, j := range res.Jobs[:done] {
		res.Manifest.Add(manifestEntry(j))
	}
	res.Manifest.Seal(status)

	err := x.finish(&res, done)
	if err == nil && haltErr != nil {
		for _, j := range res.Jobs[:done] {
			if j.State == Recovered {
				haltErr.Completed = append(haltErr.Completed, j.Entry.Path)
			}
		}
		for _, j := range res.Jobs[done:] {
			haltErr.Remaining = append(haltErr.Remaining, j.Entry.Path)
		}
		haltErr.Checkpoint = res.CheckpointPath
		err = haltErr
	}

	h.Complete(event.OpExport, int64(done), int64(len(entries)), bytes, res.Halted)
	slog.Info("export finished", "run", cfg.RunID, "recovered", res.Recovered, "failed", res.Failed,
		"cancelled", res.Cancelled, "halted", res.Halted)
	return res, err
}

func (c *Config) prepare() error {
	if c.Store == nil {
		return errors.New("export needs a checkpoint store")
	}
	src, err := filepath.Abs(c.SourceRoot)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dst, err := filepath.Abs(c.Destination)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if rel, err := filepath.Rel(src, dst); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", dst, ErrDestinationInSource)
	}
	c.SourceRoot, c.Destination = src, dst
	if c.RunID == "" {
		c.RunID = checkpoint.DefaultRunID("export", dst)
	}
	if c.Open == nil {
		c.Open = engine.ReadOptions{}.Opener()
	}
	return nil
}

// run exports one job and reports it.
func (x *exporter) run(j *Job, i, total int) {
	x.h.Emit(event.Event{Type: event.FileCopying, Op: event.OpExport, Path: j.Entry.Path, Size: j.Entry.Size})

	if err := x.copyJob(x.h.RetryContext(), j); err != nil {
		j.fail(err)
	} else if err := j.advance(Recovered); err != nil {
		j.fail(err)
	}

	if s := x.cfg.Stats; s != nil {
		s.AddBytesRead(j.Bytes)
		s.AddBadBlocks(int64(j.Map.BadBlocks))
		if j.State == Recovered {
			s.AddFilesExported(1)
		} else {
			s.AddExportFailed(1)
		}
	}

	x.h.Emit(event.Event{
		Type:   event.FileExported,
		Op:     event.OpExport,
		Path:   j.Entry.Path,
		Status: j.State.String(),
		Size:   j.Bytes,
		Done:   int64(i + 1),
		Total:  int64(total),
	})
	if j.State == Failed {
		slog.Warn("export failed", "path", j.Entry.Path, "error", j.Err)
		x.h.Fail(event.OpExport, j.Entry.Path, j.Err)
	}
}

// finish persists the manifest and either clears the export checkpoint or
// records the entries that were not processed.
func (x *exporter) finish(res *Result, done int) error {
	var errs []error
	if err := res.Manifest.Save(res.ManifestPath); err != nil {
		errs = append(errs, err)
	}

	remaining := res.Jobs[done:]
	if len(remaining) == 0 {
		if err := x.cfg.Store.Clear(res.RunID, checkpoint.PhaseExport); err != nil {
			slog.Warn("clear export checkpoint", "error", err)
		}
		return errors.Join(errs...)
	}

	cp := &checkpoint.Checkpoint{
		RunID:       res.RunID,
		Phase:       checkpoint.PhaseExport,
		Fingerprint: exportFingerprint(x.cfg),
		Processed:   int64(done),
	}
	for _, j := range remaining {
		cp.Remaining = append(cp.Remaining, j.Entry)
	}
	cp.Cursor = remaining[0].Entry.Path
	if err := x.cfg.Store.Save(cp); err != nil {
		errs = append(errs, err)
	} else {
		res.CheckpointPath = x.cfg.Store.Path(res.RunID, checkpoint.PhaseExport)
	}
	return errors.Join(errs...)
}

// Remaining loads the entries a cancelled or halted export with the same
// source, destination and run id left behind. It wraps fault.ErrNotFound
// when there is nothing to resume.
func Remaining(cfg Config) ([]index.FileEntry, error) {
	if err := cfg.prepare(); err != nil {
		return nil, err
	}
	cp, err := cfg.Store.Load(cfg.RunID, checkpoint.PhaseExport, exportFingerprint(cfg))
	if err != nil {
		return nil, err
	}
	return cp.Remaining, nil
}

// Resume continues a cancelled or halted export from its checkpoint. The
// unfinished manifest left by the earlier run is carried forward, so the
// sealed proof covers every file of the export and not just the remainder.
func Resume(h *op.Handle, cfg Config) (Result, error) {
	rest, err := Remaining(cfg)
	if err != nil {
		return Result{}, err
	}
	if err := cfg.prepare(); err != nil {
		return Result{}, err
	}
	prev, err := proof.Load(filepath.Join(cfg.Destination, proof.FileName))
	switch {
	case err != nil:
		slog.Warn("starting a new manifest", "run", cfg.RunID, "error", err)
	case prev.RunID != cfg.RunID || prev.Status == proof.StatusComplete:
		slog.Warn("previous manifest belongs to another run, starting a new one", "run", cfg.RunID, "found", prev.RunID)
	default:
		prev.Reopen()
		cfg.carry = prev
	}
	return Export(h, rest, cfg)
}

// exportFingerprint ties an export checkpoint to its source and
// destination pair.
func exportFingerprint(cfg Config) string {
	sum := blake3.Sum256([]byte(cfg.SourceRoot + "\x00" + cfg.Destination))
	return hex.EncodeToString(sum[:])
}

func manifestEntry(j *Job) proof.Entry {
	e := proof.Entry{
		SourcePath: j.Entry.Path,
		DestPath:   j.DestPath,
		SourceHash: j.SourceHash,
		DestHash:   j.DestHash,
		Health:     j.Health(),
		Size:       j.Bytes,
		BadBlocks:  int64(j.Map.BadBlocks),
		Outcome:    proof.Failed,
	}
	if j.State == Recovered {
		e.Outcome = proof.Recovered
	}
	if j.Err != nil {
		e.Error = j.Err.Error()
	}
	return e
}
