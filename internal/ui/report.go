package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/KHET-1/diamond-drill/internal/dedup"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/proof"
	"github.com/KHET-1/diamond-drill/internal/sector"
)

// RenderDedup writes a dedup report: each group with its master first,
// then the entries that could not be compared.
func RenderDedup(w io.Writer, rep dedup.Report) {
	for i, g := range rep.Groups {
		label := string(g.Kind)
		if g.Kind == dedup.KindFuzzy {
			label = fmt.Sprintf("%s %.3f", g.Kind, g.Score)
		}
		fmt.Fprintf(w, "%s  %s  %d files  %s wasted\n",
			styleHeader.Render(fmt.Sprintf("group %d", i+1)), styleMuted.Render(label),
			len(g.Members), FormatBytes(g.WastedBytes))
		for _, m := range g.Members {
			marker := "  "
			if m.Path == g.Master.Path {
				marker = styleOK.Render("* ")
			}
			fmt.Fprintf(w, "  %s%s  %s\n", marker, m.Path, FormatBytes(m.Size))
		}
	}
	for _, u := range rep.Unscorable {
		fmt.Fprintf(w, "%s  %s  %s\n", styleWarn.Render("skipped"), u.Path, styleMuted.Render(u.Reason))
	}
	fmt.Fprintf(w, "%d groups  %s wasted  %d comparisons\n",
		len(rep.Groups), FormatBytes(rep.WastedBytes), rep.Compared)
}

// RenderVerify writes the outcome of checking a proof manifest.
func RenderVerify(w io.Writer, res proof.VerifyResult) {
	for _, p := range res.Problems {
		fmt.Fprintf(w, "%s  %s  %s\n", styleFail.Render(string(p.Issue)), p.Path, styleMuted.Render(p.Actual))
	}
	root := styleOK.Render("root ok")
	if !res.RootValid {
		root = styleFail.Render("root MISMATCH") +
			fmt.Sprintf("  expected %s  computed %s", res.ExpectedRoot, res.ComputedRoot)
	}
	fmt.Fprintln(w, root)

	verdict := styleOK.Render("verified")
	switch {
	case res.Cancelled:
		verdict = styleWarn.Render("cancelled")
	case !res.Clean():
		verdict = styleFail.Render("FAILED")
	}
	fmt.Fprintf(w, "%s  %d of %d files  %d problems  %d not recovered\n",
		verdict, res.Verified, res.Total, len(res.Problems), res.Skipped)
}

// RenderSectors writes a bad-sector report: a line per damaged file with
// its heatmap, the offsets that never read, then the totals.
func RenderSectors(w io.Writer, r sector.Report) {
	fmt.Fprintf(w, "%s  %s  run %s\n", styleHeader.Render("bad sectors"), r.Source, r.RunID)
	for _, f := range r.Files {
		style := styleWarn
		if f.Health == index.Failed || f.BadBlocks > 0 {
			style = styleFail
		}
		fmt.Fprintf(w, "%s  %s  %s  %.1f%% readable\n",
			style.Render(string(f.Health)), f.Path, FormatBytes(f.Size), f.ReadablePercent)
		if f.Heatmap != "" {
			fmt.Fprintf(w, "  %s\n", f.Heatmap)
		}
		if len(f.BadOffsets) > 0 {
			fmt.Fprintf(w, "  %s %s\n", styleMuted.Render("unreadable at"), formatOffsets(f.BadOffsets))
		}
		if f.Error != "" && len(f.BadOffsets) == 0 {
			fmt.Fprintf(w, "  %s\n", styleMuted.Render(f.Error))
		}
	}
	fmt.Fprintf(w, "%s of %s files with bad sectors  %s bad blocks  %s unreadable\n",
		FormatCount(int64(r.FilesWithBadSectors)), FormatCount(int64(r.TotalFiles)),
		FormatCount(int64(r.TotalBadBlocks)), FormatBytes(r.TotalBadBytes))
}

// formatOffsets lists block offsets in hex, eliding the middle of long runs.
func formatOffsets(offs []int64) string {
	const keep = 8
	var b strings.Builder
	for i, o := range offs {
		if len(offs) > keep && i == keep/2 {
			fmt.Fprintf(&b, "... (%d more) ", len(offs)-keep)
		}
		if len(offs) > keep && i >= keep/2 && i < len(offs)-keep/2 {
			continue
		}
		fmt.Fprintf(&b, "0x%x ", o)
	}
	return strings.TrimSuffix(b.String(), " ")
}
