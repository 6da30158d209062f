package export

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/platform"
	"github.com/KHET-1/diamond-drill/internal/sector"
)

const copyBufferSize = 256 << 10

// copyJob copies one entry to a temp file beside its destination, verifies
// the temp file against the bytes read and renames it into place. The temp
// file is removed on every path that does not end in the rename.
func (x *exporter) copyJob(ctx context.Context, j *Job) error {
	if err := j.advance(Copying); err != nil {
		return err
	}
	rel := filepath.FromSlash(j.Entry.Path)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("entry path %q escapes the destination", j.Entry.Path)
	}
	src := filepath.Join(x.cfg.SourceRoot, rel)
	dst := filepath.Join(x.cfg.Destination, rel)
	j.DestPath = j.Entry.Path

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmp := platform.TmpName(dst)
	registerTmp(tmp)
	defer func() {
		deregisterTmp(tmp)
		_ = os.Remove(tmp) // no-op if rename succeeded
	}()

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmp, err)
	}
	platform.Preallocate(out, j.Entry.Size)

	if err := x.read(ctx, src, j, out); err != nil {
		out.Close()
		return err
	}
	// Preallocation may have extended the file past what was read.
	if err := out.Truncate(j.Bytes); err != nil {
		out.Close()
		return fmt.Errorf("truncate tmp %s: %w", tmp, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync tmp %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmp, err)
	}

	if j.Map.TotalBlocks > 0 && j.Map.Health() == index.Failed {
		return fmt.Errorf("no readable blocks: %w", j.Map.FirstErr)
	}
	if j.Entry.Health == index.Clean && j.Entry.HasFullHash() && j.Entry.ContentHash != j.SourceHash {
		return &fault.VerificationMismatch{Path: j.Entry.Path, SourceHash: j.Entry.ContentHash, DestHash: j.SourceHash}
	}

	if err := j.advance(Verifying); err != nil {
		return err
	}
	j.DestHash, err = engine.HashFile(tmp)
	if err != nil {
		return fmt.Errorf("rehash tmp: %w", err)
	}
	if j.DestHash != j.SourceHash {
		return &fault.VerificationMismatch{Path: j.Entry.Path, SourceHash: j.SourceHash, DestHash: j.DestHash}
	}

	if !j.Entry.ModTime.IsZero() {
		atime := j.srcAtime
		if atime.IsZero() {
			atime = j.Entry.ModTime
		}
		if err := os.Chtimes(tmp, atime, j.Entry.ModTime); err != nil {
			return fmt.Errorf("set times %s: %w", tmp, err)
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, dst, err)
	}
	return platform.SyncDir(dir)
}

// read streams the source into w while hashing the bytes read. Clean
// entries use plain reads; anything else goes through the bad-sector
// reader so unreadable blocks are retried and zero-filled.
func (x *exporter) read(ctx context.Context, src string, j *Job, w io.Writer) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if atime, ok := platform.AccessTime(info); ok {
		j.srcAtime = atime
	}
	f, err := x.cfg.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	dst := io.MultiWriter(h, newRateLimitedWriter(ctx, w, x.limiter))
	size := info.Size()

	if j.Entry.Health == index.Clean {
		buf := make([]byte, copyBufferSize)
		n, err := io.CopyBuffer(dst, io.NewSectionReader(f, 0, size), buf)
		j.Bytes = n
		if err != nil {
			return fmt.Errorf("copy %s: %w", j.Entry.Path, err)
		}
	} else {
		r := &sector.Reader{
			File:       f,
			Events:     x.h,
			Path:       j.Entry.Path,
			Op:         event.OpExport,
			Size:       size,
			BlockSize:  x.cfg.BlockSize,
			MaxRetries: x.cfg.MaxRetries,
			BaseDelay:  x.cfg.BaseDelay,
		}
		m, err := r.Stream(ctx, dst)
		j.Map = m
		j.Bytes = m.GoodBytes + m.BadBytes
		if err != nil {
			return fmt.Errorf("copy %s: %w", j.Entry.Path, err)
		}
	}
	j.SourceHash = hex.EncodeToString(h.Sum(nil))
	return nil
}
