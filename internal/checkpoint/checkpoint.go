// Package checkpoint persists resumable progress for long-running
// operations. Each run owns a directory under <state>/runs/<runID>/ and a
// checkpoint file per phase. Writes are atomic: a crash leaves either the
// previous checkpoint or the new one, never a torn file.
package checkpoint

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/platform"
)

// FormatVersion is written into every checkpoint. Files with another
// version are discarded on load.
const FormatVersion = 2

// Phase names the operation a checkpoint belongs to.
type Phase string

const (
	PhaseScan   Phase = "scan"
	PhaseExport Phase = "export"
)

// Checkpoint is the durable progress of one run phase.
type Checkpoint struct {
	UpdatedAt     time.Time         `json:"updated_at"`
	RunID         string            `json:"run_id"`
	Fingerprint   string            `json:"fingerprint"`
	Phase         Phase             `json:"phase"`
	Cursor        string            `json:"cursor,omitempty"`
	Remaining     []index.FileEntry `json:"remaining,omitempty"`
	FormatVersion int               `json:"format_version"`
	Processed     int64             `json:"processed"`
}

// Store reads and writes checkpoints beneath a state directory.
type Store struct {
	dir string
}

// Open returns a store rooted at dir. Nothing is created until Save.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// RunDir returns the directory holding everything persisted for runID.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.dir, "runs", runID)
}

// Path returns the checkpoint file path for runID and phase.
func (s *Store) Path(runID string, phase Phase) string {
	return filepath.Join(s.RunDir(runID), "checkpoint-"+string(phase)+".json.zst")
}

// Save writes cp atomically. UpdatedAt and FormatVersion are filled in.
func (s *Store) Save(cp *Checkpoint) error {
	path := s.Path(cp.RunID, cp.Phase)
	cp.FormatVersion = FormatVersion
	cp.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fault.Persist("checkpoint", path, err)
	}
	return fault.Persist("checkpoint", path, platform.WriteFileAtomic(path, 0o600, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := json.NewEncoder(enc).Encode(cp); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	}))
}

// Load returns the checkpoint for runID and phase. It returns an error
// wrapping fault.ErrNotFound when none exists, and fault.ErrStaleCheckpoint
// when the stored checkpoint is unreadable or was written for a different
// run, fingerprint or format. Stale files are removed.
func (s *Store) Load(runID string, phase Phase, fingerprint string) (*Checkpoint, error) {
	path := s.Path(runID, phase)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s checkpoint for %s: %w", phase, runID, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	cp, decodeErr := decode(f)
	f.Close()

	var reason string
	switch {
	case decodeErr != nil:
		reason = decodeErr.Error()
	case cp.FormatVersion != FormatVersion:
		reason = fmt.Sprintf("format version %d, want %d", cp.FormatVersion, FormatVersion)
	case cp.RunID != runID || cp.Phase != phase:
		reason = fmt.Sprintf("belongs to %s/%s", cp.RunID, cp.Phase)
	case cp.Fingerprint != fingerprint:
		reason = "source fingerprint changed"
	}
	if reason != "" {
		slog.Warn("discarding stale checkpoint", "path", path, "reason", reason)
		os.Remove(path)
		return nil, fmt.Errorf("%s: %s: %w", path, reason, fault.ErrStaleCheckpoint)
	}
	return cp, nil
}

// Clear removes the checkpoint for runID and phase. A missing file is not
// an error.
func (s *Store) Clear(runID string, phase Phase) error {
	err := os.Remove(s.Path(runID, phase))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fault.Persist("checkpoint", s.Path(runID, phase), err)
	}
	return nil
}

func decode(r io.Reader) (*Checkpoint, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var cp Checkpoint
	if err := json.NewDecoder(dec).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cp, nil
}

// Fingerprint identifies the state of a source root: its absolute path,
// modification time and mode. A checkpoint whose fingerprint no longer
// matches is stale.
func Fingerprint(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	h := blake3.New()
	h.Write([]byte(abs))
	h.Write([]byte{0})
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(info.ModTime().UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:], uint32(info.Mode()))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DefaultRunID derives a stable run id from the operation kind and source
// root, so invoking the same operation again resumes it.
func DefaultRunID(kind, root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := blake3.Sum256([]byte(abs))
	return kind + "-" + hex.EncodeToString(sum[:8])
}

// NewRunID returns a unique, time-ordered run id.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
