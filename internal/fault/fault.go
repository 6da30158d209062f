// Package fault defines the error taxonomy shared by the recovery engine.
//
// Read-only operations (scan, dedup) attach file-level errors to the
// affected entry and keep going. Only PersistenceError and HaltError end an
// operation early.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means no checkpoint exists for the run. Callers start fresh.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStaleCheckpoint means a checkpoint exists but belongs to another
	// source, run, or format version. It has been discarded.
	ErrStaleCheckpoint = errors.New("stale checkpoint")

	// ErrCancelled marks work stopped at the user's request.
	ErrCancelled = errors.New("operation cancelled")

	// ErrScanInProgress is returned when a second scan targets a root that
	// is already being indexed in this process.
	ErrScanInProgress = errors.New("scan already in progress for source root")

	// ErrFormatVersion means a persisted file was written by an incompatible
	// version of the tool.
	ErrFormatVersion = errors.New("unsupported format version")
)

// IsFreshStart reports whether err only means "no usable checkpoint".
func IsFreshStart(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleCheckpoint)
}

// TransientIOError records a sector read that failed every retry.
// It is attached to blocks and entries, never returned from an operation.
type TransientIOError struct {
	Err      error
	Path     string
	Offset   int64
	Length   int64
	Attempts int
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("read %s at offset %d (%d bytes) failed after %d attempts: %v",
		e.Path, e.Offset, e.Length, e.Attempts, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// PersistenceError is an unrecoverable write of engine state (checkpoint,
// index, manifest). It is fatal to the current operation.
type PersistenceError struct {
	Err  error
	Op   string
	Path string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persist wraps err as a PersistenceError. A nil err stays nil.
func Persist(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// VerificationMismatch means the bytes at the destination do not hash to
// the bytes read from the source.
type VerificationMismatch struct {
	Path       string
	SourceHash string
	DestHash   string
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("verification mismatch for %s: source=%s dest=%s",
		e.Path, e.SourceHash, e.DestHash)
}

// HaltError explains why a destructive operation stopped under
// halt-on-error, and what is left to do.
type HaltError struct {
	Cause      error
	Op         string
	Entry      string
	Checkpoint string
	Completed  []string
	Remaining  []string
}

func (e *HaltError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s halted at %s: %v", e.Op, e.Entry, e.Cause)
	fmt.Fprintf(&b, "; completed %d, remaining %d", len(e.Completed), len(e.Remaining))
	if e.Checkpoint != "" {
		fmt.Fprintf(&b, "; resume from %s", e.Checkpoint)
	}
	return b.String()
}

func (e *HaltError) Unwrap() error { return e.Cause }
