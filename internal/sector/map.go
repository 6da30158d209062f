package sector

import (
	"strings"

	"github.com/KHET-1/diamond-drill/internal/index"
)

// Map summarizes block outcomes for one file.
type Map struct {
	FirstErr        error
	Bad             []int64 // offsets of unreadable blocks
	Retried         []int64 // offsets of blocks read after retry
	BlockSize       int
	TotalBlocks     int
	BadBlocks       int
	RecoveredBlocks int
	GoodBytes       int64
	BadBytes        int64
}

func (m *Map) add(b Block, length int) {
	m.TotalBlocks++
	switch b.Status {
	case Unreadable:
		m.BadBlocks++
		m.BadBytes += int64(length)
		m.Bad = append(m.Bad, b.Offset)
		if m.FirstErr == nil {
			m.FirstErr = b.Err
		}
	case Recovered:
		m.RecoveredBlocks++
		m.GoodBytes += int64(len(b.Data))
		m.Retried = append(m.Retried, b.Offset)
	default:
		m.GoodBytes += int64(len(b.Data))
	}
}

// Merge folds o into m. Used when a file is read in several ranges.
func (m *Map) Merge(o Map) {
	if m.BlockSize == 0 {
		m.BlockSize = o.BlockSize
	}
	m.TotalBlocks += o.TotalBlocks
	m.BadBlocks += o.BadBlocks
	m.RecoveredBlocks += o.RecoveredBlocks
	m.GoodBytes += o.GoodBytes
	m.BadBytes += o.BadBytes
	m.Bad = append(m.Bad, o.Bad...)
	m.Retried = append(m.Retried, o.Retried...)
	if m.FirstErr == nil {
		m.FirstErr = o.FirstErr
	}
}

// Health classifies the file from its blocks.
func (m Map) Health() index.Health {
	switch {
	case m.TotalBlocks > 0 && m.BadBlocks == m.TotalBlocks:
		return index.Failed
	case m.BadBlocks > 0:
		return index.RecoveredWithErrors
	case m.RecoveredBlocks > 0:
		return index.Recovered
	default:
		return index.Clean
	}
}

// Heatmap renders the map as a bar of at most width cells: '#' marks a cell
// holding an unreadable block, '+' one recovered after retry, '.' clean.
func (m Map) Heatmap(width int) string {
	if m.TotalBlocks == 0 || width <= 0 || m.BlockSize <= 0 {
		return ""
	}
	width = min(width, m.TotalBlocks)
	cells := make([]byte, width)
	for i := range cells {
		cells[i] = '.'
	}
	cell := func(off int64) int {
		blk := int(off / int64(m.BlockSize))
		return min(blk*width/m.TotalBlocks, width-1)
	}
	for _, off := range m.Retried {
		cells[cell(off)] = '+'
	}
	for _, off := range m.Bad {
		cells[cell(off)] = '#'
	}
	var b strings.Builder
	b.Grow(width + 2)
	b.WriteByte('[')
	b.Write(cells)
	b.WriteByte(']')
	return b.String()
}
