package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KHET-1/diamond-drill/internal/dedup"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/proof"
	"github.com/KHET-1/diamond-drill/internal/sector"
)

func TestRenderDedup(t *testing.T) {
	master := index.FileEntry{Path: "photo.jpg", Size: 1024}
	rep := dedup.Report{
		Groups: []dedup.Group{{
			Master:      master,
			Kind:        dedup.KindExact,
			Members:     []index.FileEntry{master, {Path: "photo_copy.jpg", Size: 1024}},
			WastedBytes: 1024,
		}},
		Unscorable:  []dedup.Unscorable{{Path: "raw.bin", Reason: "not hashed"}},
		WastedBytes: 1024,
		Compared:    1,
	}

	var buf bytes.Buffer
	RenderDedup(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, "group 1  exact  2 files  1.0 KiB wasted")
	assert.Contains(t, out, "* photo.jpg")
	assert.Contains(t, out, "    photo_copy.jpg")
	assert.Contains(t, out, "skipped  raw.bin  not hashed")
	assert.Contains(t, out, "1 groups  1.0 KiB wasted  1 comparisons")
}

func TestRenderVerify(t *testing.T) {
	var buf bytes.Buffer
	RenderVerify(&buf, proof.VerifyResult{RootValid: true, Total: 3, Verified: 3})
	assert.Contains(t, buf.String(), "root ok")
	assert.Contains(t, buf.String(), "verified  3 of 3 files  0 problems")

	buf.Reset()
	RenderVerify(&buf, proof.VerifyResult{
		ExpectedRoot: "aa",
		ComputedRoot: "bb",
		Total:        2,
		Verified:     1,
		Problems:     []proof.Problem{{Path: "b.txt", Issue: proof.IssueHashMismatch, Actual: "cc"}},
	})
	out := buf.String()
	assert.Contains(t, out, "hash-mismatch  b.txt  cc")
	assert.Contains(t, out, "root MISMATCH  expected aa  computed bb")
	assert.Contains(t, out, "FAILED  1 of 2 files  1 problems")
}

func TestRenderSectors(t *testing.T) {
	r := sector.Report{
		Source: "/mnt/evidence",
		RunID:  "scan-1",
		Files: []sector.FileReport{
			{Path: "disk.img", Health: index.RecoveredWithErrors, Size: 16384, BadBlocks: 1,
				BadOffsets: []int64{8192}, Heatmap: "[+.#.]", ReadablePercent: 75},
			{Path: "gone.raw", Health: index.Failed, Size: 100, BadOffsets: []int64{},
				Error: "permission denied"},
		},
		TotalFiles:          12,
		FilesWithBadSectors: 2,
		TotalBadBlocks:      1,
		TotalBadBytes:       4196,
	}

	var buf bytes.Buffer
	RenderSectors(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "bad sectors  /mnt/evidence  run scan-1")
	assert.Contains(t, out, "recovered-with-errors  disk.img  16 KiB  75.0% readable")
	assert.Contains(t, out, "  [+.#.]\n")
	assert.Contains(t, out, "unreadable at 0x2000")
	assert.Contains(t, out, "failed  gone.raw  100 B  0.0% readable")
	assert.Contains(t, out, "  permission denied")
	assert.Contains(t, out, "2 of 12 files with bad sectors  1 bad blocks  4.1 KiB unreadable")
}

func TestFormatOffsetsElidesLongRuns(t *testing.T) {
	assert.Equal(t, "0x0 0x1000", formatOffsets([]int64{0, 4096}))

	offs := make([]int64, 20)
	for i := range offs {
		offs[i] = int64(i) * 16
	}
	got := formatOffsets(offs)
	assert.Equal(t, "0x0 0x10 0x20 0x30 ... (12 more) 0x100 0x110 0x120 0x130", got)
}
