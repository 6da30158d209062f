package ui

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KHET-1/diamond-drill/internal/config"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

func runPlain(t *testing.T, verbose bool, evs ...event.Event) (*plainPresenter, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), verbose: verbose, interval: time.Hour}

	events := make(chan event.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
	return p, out.String(), errOut.String()
}

func TestPlainPresenterHeader(t *testing.T) {
	_, _, errOut := runPlain(t, false, event.Event{Type: event.OperationStarted, Op: event.OpScan, Path: "/mnt/disk"})
	assert.Contains(t, errOut, "scan /mnt/disk")
}

func TestPlainPresenterFileFound(t *testing.T) {
	evs := []event.Event{
		{Type: event.FileFound, Path: "ok.txt", Size: 10, Status: event.StatusClean},
		{Type: event.FileFound, Path: "worn.txt", Size: 2048, Status: "recovered-with-errors"},
	}

	_, out, _ := runPlain(t, false, evs...)
	assert.NotContains(t, out, "ok.txt")
	assert.Contains(t, out, "worn.txt  2.0 KiB  recovered-with-errors")

	_, out, _ = runPlain(t, true, evs...)
	assert.Contains(t, out, "ok.txt  10 B  clean")
}

func TestPlainPresenterBadBlock(t *testing.T) {
	_, out, _ := runPlain(t, false,
		event.Event{Type: event.SectorRead, Path: "a.bin", Status: event.StatusClean, Offset: 0, Length: 4096},
		event.Event{Type: event.SectorRead, Path: "a.bin", Status: event.StatusUnreadable, Offset: 8192, Length: 4096, Attempts: 4},
	)
	assert.Contains(t, out, "a.bin  bad block  offset 8192+4096 after 4 attempts")
	assert.NotContains(t, out, "offset 0+")
}

func TestPlainPresenterExportAndDuplicates(t *testing.T) {
	_, out, _ := runPlain(t, false,
		event.Event{Type: event.FileExported, Path: "docs/a.txt", Size: 5, Status: event.StatusRecovered},
		event.Event{Type: event.DuplicateFound, Path: "photo.jpg", Status: "exact", Members: 3, Size: 2048},
	)
	assert.Contains(t, out, "docs/a.txt  5 B  recovered")
	assert.Contains(t, out, "exact  photo.jpg  3 files  2.0 KiB wasted")
}

func TestPlainPresenterError(t *testing.T) {
	p, out, _ := runPlain(t, false, event.Event{Type: event.Error, Path: "x", Error: errors.New("disk on fire")})
	assert.Contains(t, out, "error  disk on fire")
	assert.Equal(t, int64(1), p.errors)
}

func TestPlainPresenterSummary(t *testing.T) {
	p, _, _ := runPlain(t, false, event.Event{
		Type: event.OperationComplete, Op: event.OpScan, Done: 5, Total: 10, Cancelled: true,
	})
	p.stats.AddFilesScanned(5)
	p.stats.AddBytesRead(1024)

	s := p.Summary()
	assert.Contains(t, s, "scan")
	assert.Contains(t, s, "5 of 10, cancelled")
	assert.Contains(t, s, "files 5")
	assert.Contains(t, s, "read 1.0 KiB")
}

func TestPlainPresenterSummaryWithoutCompletion(t *testing.T) {
	p, _, _ := runPlain(t, false)
	assert.Empty(t, p.Summary())
}

func TestCompletionSummaryPerOperation(t *testing.T) {
	snap := stats.Snapshot{DuplicateGroups: 2, WastedBytes: 4096, FilesExported: 3, ExportFailed: 1}

	s := completionSummary(event.Event{Type: event.OperationComplete, Op: event.OpDedup, Done: 4, Total: 4}, snap, 0)
	assert.Contains(t, s, "groups 2  wasted 4.0 KiB")

	s = completionSummary(event.Event{Type: event.OperationComplete, Op: event.OpExport, Done: 4, Total: 4, Bytes: 10}, snap, 0)
	assert.Contains(t, s, "exported 3  size 10 B  failed 1")
	assert.Contains(t, s, "✗")

	s = completionSummary(event.Event{Type: event.OperationComplete, Op: event.OpExport, Done: 2, Total: 4, Halted: true}, stats.Snapshot{}, 0)
	assert.Contains(t, s, "2 of 4, halted")
}

func TestQuietPresenterRemembersCompletion(t *testing.T) {
	p := NewPresenter(Config{Quiet: true}).(*quietPresenter)
	events := make(chan event.Event, 2)
	events <- event.Event{Type: event.FileFound, Path: "a"}
	events <- event.Event{Type: event.OperationComplete, Op: event.OpScan, Done: 1, Total: 1}
	close(events)

	require.NoError(t, p.Run(events))
	assert.Empty(t, p.Summary())
	assert.Equal(t, "1 of 1, complete", p.complete.Summary())
}

func TestApplyTheme(t *testing.T) {
	orig := ColorRed
	t.Cleanup(func() {
		ColorRed = orig
		rebuildStyles()
	})

	red := "#ff0000"
	ApplyTheme(config.ThemeConfig{Red: &red})
	assert.Equal(t, "#ff0000", string(ColorRed))
	assert.Equal(t, ColorGreen, styleOK.GetForeground())
}

func TestPlainPresenterProgressBar(t *testing.T) {
	var errOut bytes.Buffer
	st := stats.NewCollector()
	st.AddFilesTotal(10)
	st.AddFilesScanned(5)

	p := &plainPresenter{errW: &errOut, stats: st, op: event.OpScan, barWidth: 4}
	p.printProgress()
	assert.Contains(t, errOut.String(), "scan ▪▪□□ ")
	assert.Contains(t, errOut.String(), "files 5/10")

	errOut.Reset()
	p.barWidth = 0
	p.printProgress()
	assert.NotContains(t, errOut.String(), "□")
}

func TestBarWidthWithoutTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	assert.Zero(t, BarWidth(f))
}
