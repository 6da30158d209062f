package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/filter"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/platform"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// fileTask is one regular file found by the walker.
type fileTask struct {
	info fs.FileInfo
	abs  string
	rel  string
}

// walker traverses a directory tree in parallel and emits fileTask items.
type walker struct {
	filter  *filter.Chain
	stats   *stats.Collector
	stop    func() bool
	onErr   func(rel string, err error)
	tasks   chan fileTask
	root    string
	dev     uint64
	workers int
	found   atomic.Int64
	oneFS   bool
}

func (w *walker) run() {
	defer close(w.tasks)

	workQueue := make(chan string, w.workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range w.workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dir := range workQueue {
				w.scanDir(dir, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- w.root

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (w *walker) scanDir(dir string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.onErr(w.rel(dir), fmt.Errorf("readdir: %w", err))
		return
	}

	for _, de := range entries {
		if w.stop() {
			return
		}

		abs := filepath.Join(dir, de.Name())
		rel := w.rel(abs)

		switch {
		case de.IsDir():
			if w.filter != nil && !w.filter.Match(rel, true, 0) {
				continue
			}
			if w.oneFS && w.crossesDevice(de) {
				slog.Debug("not crossing filesystem boundary", "path", rel)
				continue
			}
			outstanding.Add(1)
			// Never block on a full queue while holding a worker: hand the
			// directory to a helper instead.
			select {
			case workQueue <- abs:
			default:
				go func() { workQueue <- abs }()
			}

		case de.Type().IsRegular():
			info, err := de.Info()
			if err != nil {
				w.onErr(rel, fmt.Errorf("lstat: %w", err))
				continue
			}
			if w.filter != nil && !w.filter.Match(rel, false, info.Size()) {
				if w.stats != nil {
					w.stats.AddFilesSkipped(1)
				}
				continue
			}
			w.found.Add(1)
			if w.stats != nil {
				w.stats.AddFilesTotal(1)
				w.stats.AddBytesTotal(info.Size())
			}
			w.tasks <- fileTask{abs: abs, rel: rel, info: info}

		default:
			// Symlinks, devices, sockets and pipes are not followed or indexed.
			slog.Debug("skipping non-regular file", "path", rel, "mode", de.Type().String())
		}
	}
}

func (w *walker) crossesDevice(de fs.DirEntry) bool {
	info, err := de.Info()
	if err != nil {
		return false
	}
	dev, ok := platform.DeviceID(info)
	return ok && dev != w.dev
}

func (w *walker) rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func absPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// indexer turns a fileTask into an index entry by reading its content
// through the bad-sector reader.
type indexer struct {
	sink      event.Sink
	stats     *stats.Collector
	opts      ReadOptions
	threshold int64
	chunk     int64
}

func (x *indexer) index(ctx context.Context, t fileTask) index.FileEntry {
	size := t.info.Size()
	name := path.Base(t.rel)
	e := index.FileEntry{
		Path:      t.rel,
		Size:      size,
		ModTime:   t.info.ModTime().UTC(),
		Extension: index.Ext(name),
		Type:      index.DetectType(name, nil),
		Health:    index.Clean,
	}

	f, err := x.opts.Open(t.abs)
	if err != nil {
		e.Health = index.Failed
		e.Error = err.Error()
		return e
	}
	defer f.Close()

	r := x.opts.reader(f, t.rel, size)
	r.Events = x.sink
	r.Op = event.OpScan

	partial := size >= x.threshold
	head := newHeadBuffer(sniffLen)
	digest, m, err := contentDigest(ctx, r, partial, x.chunk, head)
	if x.stats != nil {
		x.stats.AddBytesRead(m.GoodBytes + m.BadBytes)
		x.stats.AddBadBlocks(int64(m.BadBlocks))
	}
	if err != nil {
		e.Health = index.Failed
		e.Error = err.Error()
		return e
	}

	e.Health = m.Health()
	e.BadBlocks = m.BadBlocks
	if len(m.Bad) > 0 || len(m.Retried) > 0 {
		e.BlockSize = m.BlockSize
		e.BadOffsets = m.Bad
		e.RetriedOffsets = m.Retried
	}
	e.Type = index.DetectType(name, head.Bytes())

	switch e.Health {
	case index.Failed:
		e.Error = fmt.Sprintf("no readable blocks: %v", m.FirstErr)
		return e
	case index.RecoveredWithErrors:
		e.Error = fmt.Sprintf("%d unreadable blocks zero-filled: %v", m.BadBlocks, m.FirstErr)
	}

	if partial {
		e.PartialHash = digest
	} else {
		e.ContentHash = digest
	}
	return e
}
