package proof

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/KHET-1/diamond-drill/internal/engine"
)

// Issue classifies a destination file that no longer matches its record.
type Issue string

const (
	IssueMissing      Issue = "missing"
	IssueSizeChanged  Issue = "size-changed"
	IssueHashMismatch Issue = "hash-mismatch"
	IssueUnreadable   Issue = "unreadable"
)

// Problem is one destination file that failed verification.
type Problem struct {
	Path     string `json:"path"`
	Issue    Issue  `json:"issue"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
}

// VerifyResult is the outcome of checking a manifest against the
// destination on disk.
type VerifyResult struct {
	ExpectedRoot string    `json:"expected_root"`
	ComputedRoot string    `json:"computed_root"`
	Problems     []Problem `json:"problems,omitempty"`
	Total        int       `json:"total"`
	Verified     int       `json:"verified"`
	Skipped      int       `json:"skipped"` // entries that were never recovered
	RootValid    bool      `json:"root_valid"`
	Cancelled    bool      `json:"cancelled,omitempty"`
}

// Clean reports whether every recovered file still matches and the root
// digest is intact.
func (r VerifyResult) Clean() bool {
	return r.RootValid && len(r.Problems) == 0 && !r.Cancelled
}

// Path resolves an entry's destination against the manifest root.
func (m *Manifest) Path(e Entry) string {
	if filepath.IsAbs(e.DestPath) {
		return e.DestPath
	}
	return filepath.Join(m.DestRoot, filepath.FromSlash(e.DestPath))
}

// Verify recomputes the root digest of m and rehashes every recovered
// destination file. Cancellation via ctx is checked between files.
func Verify(ctx context.Context, m *Manifest) VerifyResult {
	res := VerifyResult{
		Total:        len(m.Entries),
		ExpectedRoot: m.RootDigest,
		ComputedRoot: RootDigest(m.Entries),
	}
	res.RootValid = res.ComputedRoot == res.ExpectedRoot

	for _, e := range m.Entries {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if e.Outcome != Recovered {
			res.Skipped++
			continue
		}
		if p, ok := check(m.Path(e), e); !ok {
			res.Problems = append(res.Problems, p)
			continue
		}
		res.Verified++
	}
	return res
}

func check(path string, e Entry) (Problem, bool) {
	p := Problem{Path: e.DestPath, Expected: e.DestHash}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		p.Issue = IssueMissing
		return p, false
	}
	if err != nil {
		p.Issue, p.Actual = IssueUnreadable, err.Error()
		return p, false
	}
	if info.Size() != e.Size {
		p.Issue, p.Actual = IssueSizeChanged, "size:"+strconv.FormatInt(info.Size(), 10)
		return p, false
	}
	got, err := engine.HashFile(path)
	if err != nil {
		p.Issue, p.Actual = IssueUnreadable, err.Error()
		return p, false
	}
	if got != e.DestHash {
		p.Issue, p.Actual = IssueHashMismatch, got
		return p, false
	}
	return p, true
}
