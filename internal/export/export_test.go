package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// faultyFile fails every read that overlaps [badOff, badOff+badLen).
type faultyFile struct {
	*os.File
	badOff, badLen int64
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if off < f.badOff+f.badLen && off+int64(len(p)) > f.badOff {
		return 0, errors.New("input/output error")
	}
	return f.File.ReadAt(p, off)
}

func faultyOpener(suffix string, off, length int64) engine.OpenFunc {
	return func(path string) (engine.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(filepath.ToSlash(path), suffix) {
			return &faultyFile{File: f, badOff: off, badLen: length}, nil
		}
		return f, nil
	}
}

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
}

func numbered(n int) map[string][]byte {
	files := make(map[string][]byte, n)
	for i := range n {
		files[fmt.Sprintf("f%02d.txt", i)] = []byte(strings.Repeat(fmt.Sprintf("file %d\n", i), 50+i))
	}
	return files
}

func scan(t *testing.T, root string, open engine.OpenFunc) []index.FileEntry {
	t.Helper()
	res, err := engine.Scan(op.New(context.Background(), nil), engine.ScanConfig{
		Root:      root,
		Store:     checkpoint.Open(t.TempDir()),
		Open:      open,
		Workers:   2,
		BaseDelay: time.Microsecond,
	})
	require.NoError(t, err)
	return res.Index.Entries()
}

func config(t *testing.T, src string) Config {
	t.Helper()
	return Config{
		Store:       checkpoint.Open(t.TempDir()),
		Stats:       stats.NewCollector(),
		SourceRoot:  src,
		Destination: filepath.Join(t.TempDir(), "out"),
		BaseDelay:   time.Microsecond,
	}
}

func assertNoTmpFiles(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		assert.False(t, platform.IsTmp(p), "leftover temp file %s", p)
		return nil
	}))
	assert.Zero(t, pendingTmpFiles())
}

func TestExportRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string][]byte{
		"a.txt":          []byte("alpha"),
		"docs/b.txt":     []byte("bravo bravo"),
		"docs/deep/c.md": bytes.Repeat([]byte("charlie "), 10000),
		"empty.dat":      {},
	}
	writeTree(t, src, files)
	entries := scan(t, src, nil)
	require.Len(t, entries, 4)

	var rec event.Recorder
	cfg := config(t, src)
	res, err := Export(op.New(context.Background(), &rec), entries, cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Recovered)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.CheckpointPath)
	for _, j := range res.Jobs {
		assert.Equal(t, Recovered, j.State, j.Entry.Path)
		assert.Equal(t, j.Entry.ContentHash, j.SourceHash, j.Entry.Path)
		assert.Equal(t, j.SourceHash, j.DestHash, j.Entry.Path)

		dst := filepath.Join(cfg.Destination, filepath.FromSlash(j.Entry.Path))
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, files[j.Entry.Path], got)
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(j.Entry.ModTime), "mtime kept for %s", j.Entry.Path)
	}
	assertNoTmpFiles(t, cfg.Destination)
	assert.NoFileExists(t, cfg.Store.Path(res.RunID, checkpoint.PhaseExport))

	m, err := proof.Load(filepath.Join(cfg.Destination, proof.FileName))
	require.NoError(t, err)
	assert.Equal(t, proof.StatusComplete, m.Status)
	assert.Len(t, m.Entries, 4)
	assert.Equal(t, proof.RootDigest(m.Entries), m.RootDigest)
	for _, e := range m.Entries {
		assert.Equal(t, e.SourceHash, e.DestHash)
	}
	assert.True(t, proof.Verify(context.Background(), m).Clean())

	assert.Len(t, rec.OfType(event.FileCopying), 4)
	assert.Len(t, rec.OfType(event.FileExported), 4)
	done, ok := rec.Last(event.OperationComplete)
	require.True(t, ok)
	assert.Equal(t, event.OpExport, done.Op)
	assert.Equal(t, "4 of 4, complete", done.Summary())
	assert.Equal(t, int64(4), cfg.Stats.Snapshot().FilesExported)
}

func TestExportForwardOnError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, numbered(5))
	entries := scan(t, src, nil)
	require.NoError(t, os.Remove(filepath.Join(src, "f02.txt")))

	var rec event.Recorder
	cfg := config(t, src)
	res, err := Export(op.New(context.Background(), &rec), entries, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Recovered+res.Failed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, Failed, res.Jobs[2].State)
	assert.Error(t, res.Jobs[2].Err)
	assert.Equal(t, Recovered, res.Jobs[4].State)
	assert.NoFileExists(t, filepath.Join(cfg.Destination, "f02.txt"))
	assertNoTmpFiles(t, cfg.Destination)

	assert.Len(t, res.Manifest.Entries, 5)
	assert.Equal(t, proof.Failed, res.Manifest.Entries[2].Outcome)
	assert.NotEmpty(t, res.Manifest.Entries[2].Error)
	assert.Equal(t, proof.StatusComplete, res.Manifest.Status)

	errs := rec.OfType(event.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, "f02.txt", errs[0].Path)
	done, _ := rec.Last(event.OperationComplete)
	assert.Equal(t, "5 of 5, complete", done.Summary())
	assert.Equal(t, int64(1), cfg.Stats.Snapshot().ExportFailed)
}

func TestExportHaltOnError(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, numbered(5))
	entries := scan(t, src, nil)
	require.NoError(t, os.Remove(filepath.Join(src, "f02.txt")))

	var rec event.Recorder
	cfg := config(t, src)
	cfg.Policy = HaltOnError
	res, err := Export(op.New(context.Background(), &rec), entries, cfg)

	var halt *fault.HaltError
	require.ErrorAs(t, err, &halt)
	assert.Equal(t, "export", halt.Op)
	assert.Equal(t, "f02.txt", halt.Entry)
	assert.Equal(t, []string{"f00.txt", "f01.txt"}, halt.Completed)
	assert.Equal(t, []string{"f03.txt", "f04.txt"}, halt.Remaining)
	assert.Equal(t, res.CheckpointPath, halt.Checkpoint)
	require.FileExists(t, res.CheckpointPath)

	assert.True(t, res.Halted)
	assert.False(t, res.Cancelled)
	assert.Len(t, res.Queued(), 2)
	assert.Equal(t, proof.StatusHalted, res.Manifest.Status)
	assert.Len(t, res.Manifest.Entries, 3)
	require.FileExists(t, res.ManifestPath)

	rest, err := Remaining(cfg)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "f03.txt", rest[0].Path)

	done, _ := rec.Last(event.OperationComplete)
	assert.True(t, done.Halted)
	assert.Equal(t, "3 of 5, halted", done.Summary())
}

func TestExportCancelAfterFive(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, numbered(10))
	entries := scan(t, src, nil)
	require.Len(t, entries, 10)

	var rec event.Recorder
	var h *op.Handle
	h = op.New(context.Background(), event.SinkFunc(func(e event.Event) {
		rec.Emit(e)
		if e.Type == event.FileExported && e.Done == 5 {
			h.Cancel()
		}
	}))
	cfg := config(t, src)
	res, err := Export(h, entries, cfg)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 5, res.Recovered+res.Failed)
	queued := res.Queued()
	require.Len(t, queued, 5)
	assert.Equal(t, "f05.txt", queued[0].Entry.Path)
	for _, j := range queued {
		assert.NoFileExists(t, filepath.Join(cfg.Destination, j.Entry.Path))
	}

	done, ok := rec.Last(event.OperationComplete)
	require.True(t, ok)
	assert.Equal(t, "5 of 10, cancelled", done.Summary())
	assert.Equal(t, proof.StatusCancelled, res.Manifest.Status)
	assert.Len(t, res.Manifest.Entries, 5)

	rest, err := Remaining(cfg)
	require.NoError(t, err)
	var paths []string
	for _, e := range rest {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"f05.txt", "f06.txt", "f07.txt", "f08.txt", "f09.txt"}, paths)

	// Resuming exports exactly the remainder, extends the manifest and
	// clears the checkpoint.
	res2, err := Resume(op.New(context.Background(), nil), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, res2.Recovered)
	assert.Equal(t, proof.StatusComplete, res2.Manifest.Status)
	require.Len(t, res2.Manifest.Entries, 10)
	assert.Equal(t, "f00.txt", res2.Manifest.Entries[0].SourcePath)
	assert.Equal(t, "f09.txt", res2.Manifest.Entries[9].SourcePath)
	assert.True(t, proof.Verify(context.Background(), res2.Manifest).Clean())
	assert.NoFileExists(t, cfg.Store.Path(res2.RunID, checkpoint.PhaseExport))
	_, err = Remaining(cfg)
	require.ErrorIs(t, err, fault.ErrNotFound)
}

func TestExportBadBlocksAreZeroFilled(t *testing.T) {
	src := t.TempDir()
	data := bytes.Repeat([]byte{0xAB}, 64<<10)
	writeTree(t, src, map[string][]byte{"c.bin": data, "ok.txt": []byte("fine")})
	open := faultyOpener("c.bin", 61440, 100)
	entries := scan(t, src, open)

	c := entries[0]
	require.Equal(t, "c.bin", c.Path)
	require.Equal(t, index.RecoveredWithErrors, c.Health)

	var rec event.Recorder
	cfg := config(t, src)
	cfg.Open = open
	res, err := Export(op.New(context.Background(), &rec), entries, cfg)
	require.NoError(t, err)

	j := res.Jobs[0]
	assert.Equal(t, Recovered, j.State)
	assert.Equal(t, 1, j.Map.BadBlocks)
	assert.Equal(t, c.ContentHash, j.SourceHash)
	assert.Equal(t, index.RecoveredWithErrors, j.Health())

	got, err := os.ReadFile(filepath.Join(cfg.Destination, "c.bin"))
	require.NoError(t, err)
	require.Len(t, got, len(data))
	assert.Equal(t, data[:61440], got[:61440])
	assert.Equal(t, make([]byte, 4096), got[61440:])

	assert.Equal(t, index.RecoveredWithErrors, res.Manifest.Entries[0].Health)
	assert.Equal(t, int64(1), res.Manifest.Entries[0].BadBlocks)

	var unreadable []event.Event
	for _, e := range rec.OfType(event.SectorRead) {
		if e.Status == event.StatusUnreadable {
			unreadable = append(unreadable, e)
		}
	}
	require.Len(t, unreadable, 1)
	assert.Equal(t, event.OpExport, unreadable[0].Op)
	assert.Equal(t, int64(61440), unreadable[0].Offset)
}

func TestExportDetectsChangedSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"a.txt": []byte("original")})
	entries := scan(t, src, nil)
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("tampered"), 0o644))

	res, err := Export(op.New(context.Background(), nil), entries, config(t, src))
	require.NoError(t, err)

	j := res.Jobs[0]
	assert.Equal(t, Failed, j.State)
	var mismatch *fault.VerificationMismatch
	require.ErrorAs(t, j.Err, &mismatch)
	assert.Equal(t, entries[0].ContentHash, mismatch.SourceHash)
}

func TestExportRejectsDestinationInSource(t *testing.T) {
	src := t.TempDir()
	cfg := config(t, src)
	cfg.Destination = filepath.Join(src, "recovered")
	_, err := Export(op.New(context.Background(), nil), nil, cfg)
	require.ErrorIs(t, err, ErrDestinationInSource)

	cfg.Destination = src
	_, err = Export(op.New(context.Background(), nil), nil, cfg)
	require.ErrorIs(t, err, ErrDestinationInSource)

	// A sibling whose name starts with the source name is fine.
	cfg.Destination = src + "-out"
	_, err = Export(op.New(context.Background(), nil), nil, cfg)
	require.NoError(t, err)
}

func TestExportManifestWriteFailure(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"a.txt": []byte("alpha")})
	entries := scan(t, src, nil)

	cfg := config(t, src)
	// A directory where the manifest file should go makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Destination, proof.FileName, "blocker"), 0o755))

	_, err := Export(op.New(context.Background(), nil), entries, cfg)
	var pe *fault.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "manifest", pe.Op)
}

func TestExportKeepsSourceAccessTime(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"a.txt": []byte("alpha")})
	entries := scan(t, src, nil)
	require.Len(t, entries, 1)

	atime := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), atime, entries[0].ModTime))
	info, err := os.Stat(filepath.Join(src, "a.txt"))
	require.NoError(t, err)
	if _, ok := platform.AccessTime(info); !ok {
		t.Skip("access time not exposed on this platform")
	}

	cfg := config(t, src)
	_, err = Export(op.New(context.Background(), nil), entries, cfg)
	require.NoError(t, err)

	out, err := os.Stat(filepath.Join(cfg.Destination, "a.txt"))
	require.NoError(t, err)
	got, _ := platform.AccessTime(out)
	assert.True(t, got.Equal(atime), "atime %v", got)
	assert.True(t, out.ModTime().Equal(entries[0].ModTime))
}
