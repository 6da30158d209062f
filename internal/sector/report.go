package sector

import (
	"time"

	"github.com/KHET-1/diamond-drill/internal/index"
)

// HeatmapWidth is the bar width used by reports.
const HeatmapWidth = 40

// FileReport describes the damage found in one file.
type FileReport struct {
	Path            string       `json:"path"`
	Health          index.Health `json:"health"`
	Heatmap         string       `json:"heatmap,omitempty"`
	Error           string       `json:"error,omitempty"`
	BadOffsets      []int64      `json:"bad_offsets"`
	RetriedOffsets  []int64      `json:"retried_offsets,omitempty"`
	Size            int64        `json:"size"`
	BadBytes        int64        `json:"bad_bytes"`
	ReadablePercent float64      `json:"readable_percent"`
	BlockSize       int          `json:"block_size,omitempty"`
	BadBlocks       int          `json:"bad_blocks"`
}

// Report summarizes bad sectors across a scan index.
type Report struct {
	ScanTime            time.Time    `json:"scan_time"`
	Source              string       `json:"source"`
	RunID               string       `json:"run_id"`
	Files               []FileReport `json:"files"`
	TotalFiles          int          `json:"total_files_scanned"`
	FilesWithBadSectors int          `json:"files_with_bad_sectors"`
	TotalBadBlocks      int          `json:"total_bad_blocks"`
	TotalBadBytes       int64        `json:"total_bad_bytes"`
}

// NewReport builds a report over every entry in idx that did not read
// cleanly, in path order.
func NewReport(idx *index.ScanIndex) Report {
	r := Report{
		ScanTime:   idx.SavedAt,
		Source:     idx.Root,
		RunID:      idx.RunID,
		TotalFiles: idx.Len(),
		Files:      []FileReport{},
	}
	for _, e := range idx.Entries() {
		if e.Health == index.Clean {
			continue
		}
		fr := fileReport(e)
		r.Files = append(r.Files, fr)
		if fr.BadBlocks > 0 || fr.Health == index.Failed {
			r.FilesWithBadSectors++
		}
		r.TotalBadBlocks += fr.BadBlocks
		r.TotalBadBytes += fr.BadBytes
	}
	return r
}

// fileReport rebuilds the block map of e from its stored offsets.
func fileReport(e index.FileEntry) FileReport {
	fr := FileReport{
		Path:           e.Path,
		Health:         e.Health,
		Error:          e.Error,
		BadOffsets:     e.BadOffsets,
		RetriedOffsets: e.RetriedOffsets,
		Size:           e.Size,
		BlockSize:      e.BlockSize,
		BadBlocks:      e.BadBlocks,
	}
	if fr.BadOffsets == nil {
		fr.BadOffsets = []int64{}
	}
	m := entryMap(e)
	fr.BadBytes = m.BadBytes
	if e.Health == index.Failed && len(e.BadOffsets) == 0 {
		fr.BadBytes = e.Size // never opened
	}
	fr.Heatmap = m.Heatmap(HeatmapWidth)
	fr.ReadablePercent = readablePercent(e.Size, fr.BadBytes, e.Health)
	return fr
}

func readablePercent(size, bad int64, h index.Health) float64 {
	if size == 0 {
		if h == index.Failed {
			return 0
		}
		return 100
	}
	return float64(size-bad) / float64(size) * 100
}

// entryMap spans the whole file so offsets land in proportion on the bar.
func entryMap(e index.FileEntry) Map {
	m := Map{
		Bad:       e.BadOffsets,
		Retried:   e.RetriedOffsets,
		BlockSize: e.BlockSize,
		BadBlocks: len(e.BadOffsets),
	}
	if m.BlockSize <= 0 {
		return m
	}
	bs := int64(m.BlockSize)
	m.TotalBlocks = int((e.Size + bs - 1) / bs)
	m.RecoveredBlocks = len(e.RetriedOffsets)
	for _, off := range e.BadOffsets {
		m.BadBytes += min(bs, e.Size-off)
	}
	m.GoodBytes = e.Size - m.BadBytes
	return m
}
