// Package stats keeps lock-free run counters and derives throughput from
// them for progress displays and end-of-run summaries.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const ringSize = 60

// Collector tracks recovery statistics using atomic counters. Any goroutine
// may add; Tick is called by a single presenter.
type Collector struct {
	filesScanned    atomic.Int64
	filesResumed    atomic.Int64
	filesSkipped    atomic.Int64
	filesFailed     atomic.Int64
	filesRecovered  atomic.Int64
	badBlocks       atomic.Int64
	bytesRead       atomic.Int64
	filesExported   atomic.Int64
	exportFailed    atomic.Int64
	duplicateGroups atomic.Int64
	wastedBytes     atomic.Int64
	bytesTotal      atomic.Int64
	filesTotal      atomic.Int64
	startTime       time.Time

	// Ring buffer, written only by Tick.
	mu          sync.Mutex
	throughput  [ringSize]int64
	filesPerSec [ringSize]int64
	ringIdx     int
	ringCount   int
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesTotal(n int64)     { c.filesTotal.Add(n) }
func (c *Collector) AddBytesTotal(n int64)     { c.bytesTotal.Add(n) }
func (c *Collector) AddFilesScanned(n int64)   { c.filesScanned.Add(n) }
func (c *Collector) AddFilesResumed(n int64)   { c.filesResumed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)    { c.filesFailed.Add(n) }
func (c *Collector) AddFilesRecovered(n int64) { c.filesRecovered.Add(n) }
func (c *Collector) AddBadBlocks(n int64)      { c.badBlocks.Add(n) }
func (c *Collector) AddBytesRead(n int64)      { c.bytesRead.Add(n) }
func (c *Collector) AddFilesExported(n int64)  { c.filesExported.Add(n) }
func (c *Collector) AddExportFailed(n int64)   { c.exportFailed.Add(n) }

// AddDuplicates records one duplicate group and the bytes it wastes.
func (c *Collector) AddDuplicates(groups, wasted int64) {
	c.duplicateGroups.Add(groups)
	c.wastedBytes.Add(wasted)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned    int64
	FilesResumed    int64
	FilesSkipped    int64
	FilesFailed     int64
	FilesRecovered  int64
	BadBlocks       int64
	BytesRead       int64
	FilesExported   int64
	ExportFailed    int64
	DuplicateGroups int64
	WastedBytes     int64
	BytesTotal      int64
	FilesTotal      int64
	Elapsed         time.Duration
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:    c.filesScanned.Load(),
		FilesResumed:    c.filesResumed.Load(),
		FilesSkipped:    c.filesSkipped.Load(),
		FilesFailed:     c.filesFailed.Load(),
		FilesRecovered:  c.filesRecovered.Load(),
		BadBlocks:       c.badBlocks.Load(),
		BytesRead:       c.bytesRead.Load(),
		FilesExported:   c.filesExported.Load(),
		ExportFailed:    c.exportFailed.Load(),
		DuplicateGroups: c.duplicateGroups.Load(),
		WastedBytes:     c.wastedBytes.Load(),
		BytesTotal:      c.bytesTotal.Load(),
		FilesTotal:      c.filesTotal.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesRead.Load()
	currentFiles := c.filesScanned.Load() + c.filesExported.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.filesPerSec[c.ringIdx] = currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time from rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesRead.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d resumed=%d skipped=%d failed=%d recovered=%d bad_blocks=%d exported=%d export_failed=%d bytes=%d",
		s.FilesScanned, s.FilesResumed, s.FilesSkipped, s.FilesFailed, s.FilesRecovered,
		s.BadBlocks, s.FilesExported, s.ExportFailed, s.BytesRead,
	)
}

// FormatBytes returns a human-readable byte count in IEC units.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}
