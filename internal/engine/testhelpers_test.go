package engine_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KHET-1/diamond-drill/internal/engine"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          -> root.txt (symlink, not indexed)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	writeFile(t, root, "root.txt", []byte("root file content"))
	writeFile(t, root, "big.bin", bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000))
	writeFile(t, root, "sub/mid.txt", []byte("middle file content"))
	writeFile(t, root, "sub/deep/leaf.txt", []byte("leaf file content"))
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

var errMedia = errors.New("input/output error")

// faultyFile fails every read that overlaps [badOff, badOff+badLen).
type faultyFile struct {
	*os.File
	badOff, badLen int64
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if off < f.badOff+f.badLen && end > f.badOff {
		return 0, errMedia
	}
	return f.File.ReadAt(p, off)
}

// badRegion describes an unreadable byte range of one file.
type badRegion struct {
	off, len int64
}

// openerFor returns an OpenFunc that injects read faults into files whose
// name has a key of bad as suffix, and counts every open.
func openerFor(bad map[string]badRegion) (engine.OpenFunc, *openCounter) {
	counter := &openCounter{seen: make(map[string]int)}
	return func(path string) (engine.File, error) {
		counter.add(path)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		for suffix, r := range bad {
			if strings.HasSuffix(filepath.ToSlash(path), suffix) {
				return &faultyFile{File: f, badOff: r.off, badLen: r.len}, nil
			}
		}
		return f, nil
	}, counter
}

type openCounter struct {
	mu   sync.Mutex
	seen map[string]int
}

func (c *openCounter) add(path string) {
	c.mu.Lock()
	c.seen[filepath.Base(path)]++
	c.mu.Unlock()
}

func (c *openCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.seen {
		n += v
	}
	return n
}

var _ io.ReaderAt = (*faultyFile)(nil)
