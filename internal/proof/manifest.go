// Package proof builds the chain-of-custody record of an export run. A
// manifest lists every exported file with its source and destination
// hashes and is sealed with a Merkle root over those results, so the
// document can be checked without re-reading the destination.
package proof

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/platform"
)

const (
	// FormatVersion is written into every manifest; Load rejects others.
	FormatVersion = 1
	// FileName is the manifest name inside an export destination.
	FileName = "drill-proof.json"
	Tool     = "drill"
)

// ToolVersion is recorded in new manifests. The CLI overrides it at start.
var ToolVersion = "dev"

// Outcome is the final state of one exported file.
type Outcome string

const (
	Recovered Outcome = "recovered"
	Failed    Outcome = "failed"
)

// Status tells how the run that produced a manifest ended.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusHalted    Status = "halted"
)

// Entry is the record of one file.
type Entry struct {
	ExportedAt time.Time    `json:"exported_at"`
	SourcePath string       `json:"source_path"`
	DestPath   string       `json:"dest_path"`
	SourceHash string       `json:"source_hash"`
	DestHash   string       `json:"dest_hash"`
	Outcome    Outcome      `json:"outcome"`
	Health     index.Health `json:"health"`
	Error      string       `json:"error,omitempty"`
	Size       int64        `json:"size"`
	BadBlocks  int64        `json:"bad_blocks,omitempty"`
}

// Manifest is the proof document of one export run. It is appended to
// while the run is in flight and immutable once sealed.
type Manifest struct {
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Machine       Machine   `json:"machine"`
	Tool          string    `json:"tool"`
	ToolVersion   string    `json:"tool_version"`
	RunID         string    `json:"run_id"`
	SourceRoot    string    `json:"source_root"`
	DestRoot      string    `json:"dest_root"`
	Status        Status    `json:"status"`
	RootDigest    string    `json:"root_digest"`
	Entries       []Entry   `json:"entries"`
	FormatVersion int       `json:"format_version"`
	TotalBytes    int64     `json:"total_bytes"`
}

// NewManifest starts a manifest for a run copying sourceRoot to destRoot.
func NewManifest(runID, sourceRoot, destRoot string) *Manifest {
	return &Manifest{
		FormatVersion: FormatVersion,
		Tool:          Tool,
		ToolVersion:   ToolVersion,
		RunID:         runID,
		Machine:       CurrentMachine(),
		StartedAt:     time.Now().UTC(),
		SourceRoot:    sourceRoot,
		DestRoot:      destRoot,
		Entries:       []Entry{},
	}
}

// Sealed reports whether the manifest has been sealed.
func (m *Manifest) Sealed() bool { return m.RootDigest != "" }

// Add appends the result of one file. It panics on a sealed manifest.
func (m *Manifest) Add(e Entry) {
	if m.Sealed() {
		panic("proof: Add on sealed manifest")
	}
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now().UTC()
	}
	m.Entries = append(m.Entries, e)
	if e.Outcome == Recovered {
		m.TotalBytes += e.Size
	}
}

// Seal records the end of the run and computes the root digest.
func (m *Manifest) Seal(status Status) {
	m.Status = status
	m.CompletedAt = time.Now().UTC()
	m.RootDigest = RootDigest(m.Entries)
}

// Reopen unseals a cancelled or halted manifest so a resumed run can
// append to it.
func (m *Manifest) Reopen() {
	m.Status = ""
	m.RootDigest = ""
	m.CompletedAt = time.Time{}
}

// Counts returns the number of recovered and failed entries.
func (m *Manifest) Counts() (recovered, failed int) {
	for _, e := range m.Entries {
		if e.Outcome == Recovered {
			recovered++
		} else {
			failed++
		}
	}
	return recovered, failed
}

// Save writes m as indented JSON, atomically.
func (m *Manifest) Save(path string) error {
	return fault.Persist("manifest", path, platform.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}))
}

// Load reads a manifest. A missing file wraps fault.ErrNotFound and an
// unknown format wraps fault.ErrFormatVersion.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("manifest %s: %w", path, fault.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("manifest %s has version %d: %w", path, m.FormatVersion, fault.ErrFormatVersion)
	}
	return &m, nil
}
