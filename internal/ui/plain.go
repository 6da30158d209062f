package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// plainPresenter writes one line per notable event to w and a periodic
// progress line to errW.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	stats    *stats.Collector
	complete event.Event
	op       event.Op
	interval time.Duration
	errors   int64
	barWidth int
	verbose  bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	interval := p.interval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.OperationStarted:
		p.op = ev.Op
		fmt.Fprintln(p.errW, styleHeader.Render(fmt.Sprintf("%s %s", ev.Op, ev.Path)))
	case event.FileFound:
		if p.verbose || (ev.Status != event.StatusClean && ev.Status != event.StatusResumed) {
			fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), healthStyle(ev.Status).Render(ev.Status))
		}
	case event.SectorRead:
		if ev.Status == event.StatusUnreadable {
			fmt.Fprintf(p.w, "%s  %s  offset %d+%d after %d attempts\n",
				ev.Path, styleWarn.Render("bad block"), ev.Offset, ev.Length, ev.Attempts)
		}
	case event.FileExported:
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Path, FormatBytes(ev.Size), healthStyle(ev.Status).Render(ev.Status))
	case event.DuplicateFound:
		fmt.Fprintf(p.w, "%s  %s  %d files  %s wasted\n",
			styleMuted.Render(ev.Status), ev.Path, ev.Members, FormatBytes(ev.Size))
	case event.Error:
		p.errors++
		msg := "error"
		if ev.Error != nil {
			msg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s\n", styleFail.Render("error"), msg)
	case event.OperationComplete:
		p.complete = ev
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	done := snap.FilesScanned + snap.FilesExported + snap.ExportFailed
	bar := ""
	if p.barWidth > 0 {
		bar = ProgressBar(done, snap.FilesTotal, p.barWidth) + " "
	}
	fmt.Fprintf(p.errW, "%s %s%s  files %s/%s  read %s  %s  eta %s\n",
		p.op,
		bar,
		Percent(done, snap.FilesTotal),
		FormatCount(done),
		FormatCount(snap.FilesTotal),
		FormatBytes(snap.BytesRead),
		FormatRate(p.stats.RollingSpeed(5)),
		FormatETA(p.stats.ETA()),
	)
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.complete, p.stats.Snapshot(), p.errors)
}
