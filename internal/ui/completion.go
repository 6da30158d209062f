package ui

import (
	"fmt"
	"strings"

	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// completionSummary builds the final line for an operation, or "" when
// none completed. For example:
//
//	scan ✓  120 of 120, complete  files 120  read 2.1 GiB  bad blocks 0  failed 0  time 3m 17s
func completionSummary(c event.Event, snap stats.Snapshot, errors int64) string {
	if c.Type != event.OperationComplete {
		return ""
	}

	icon := "✓"
	style := styleOK
	switch {
	case c.Halted || errors > 0 || snap.FilesFailed > 0 || snap.ExportFailed > 0:
		icon, style = "✗", styleFail
	case c.Cancelled:
		icon, style = "-", styleWarn
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s", c.Op, style.Render(icon), c.Summary())
	switch c.Op {
	case event.OpScan:
		fmt.Fprintf(&b, "  files %s  read %s  bad blocks %s  failed %s",
			FormatCount(snap.FilesScanned),
			FormatBytes(snap.BytesRead),
			FormatCount(snap.BadBlocks),
			FormatCount(snap.FilesFailed))
		if snap.FilesResumed > 0 {
			fmt.Fprintf(&b, "  resumed %s", FormatCount(snap.FilesResumed))
		}
	case event.OpDedup:
		fmt.Fprintf(&b, "  groups %s  wasted %s",
			FormatCount(snap.DuplicateGroups),
			FormatBytes(snap.WastedBytes))
	case event.OpExport:
		fmt.Fprintf(&b, "  exported %s  size %s  failed %s",
			FormatCount(snap.FilesExported),
			FormatBytes(c.Bytes),
			FormatCount(snap.ExportFailed))
	}
	fmt.Fprintf(&b, "  time %s", FormatDuration(snap.Elapsed))
	return b.String()
}
