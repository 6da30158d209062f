package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/KHET-1/diamond-drill/internal/sector"
)

const (
	// DefaultLargeFileThreshold is the size from which only a partial hash
	// is computed during a scan.
	DefaultLargeFileThreshold = 64 << 20

	// DefaultPartialChunk is the length of each sampled region of a large file.
	DefaultPartialChunk = 1 << 20

	// sniffLen is enough leading bytes for every magic-number matcher.
	sniffLen = 8192
)

// File is what the scanner reads content from.
type File interface {
	io.ReaderAt
	io.Closer
}

// OpenFunc opens a source file for reading.
type OpenFunc func(path string) (File, error)

func openReadOnly(path string) (File, error) {
	return sector.OpenReadOnly(path)
}

// ReadOptions configures the bad-sector reader used for content reads.
type ReadOptions struct {
	Open       OpenFunc
	BlockSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

// Opener returns o.Open, or the read-only opener when it is unset.
func (o ReadOptions) Opener() OpenFunc {
	if o.Open != nil {
		return o.Open
	}
	return openReadOnly
}

func (o ReadOptions) reader(f io.ReaderAt, rel string, size int64) *sector.Reader {
	return &sector.Reader{
		File:       f,
		Path:       rel,
		Size:       size,
		BlockSize:  o.BlockSize,
		MaxRetries: o.MaxRetries,
		BaseDelay:  o.BaseDelay,
	}
}

// HashFile computes the BLAKE3 hash of the file at path with plain reads,
// returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := sector.OpenReadOnly(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FullHash hashes every byte of root/rel through the bad-sector reader.
// Unreadable blocks hash as zeros; the returned map tells how many.
func FullHash(ctx context.Context, root, rel string, opts ReadOptions) (string, sector.Map, error) {
	open := opts.Opener()
	abs := absPath(root, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return "", sector.Map{}, err
	}
	f, err := open(abs)
	if err != nil {
		return "", sector.Map{}, err
	}
	defer f.Close()

	h := blake3.New()
	m, err := opts.reader(f, rel, info.Size()).Stream(ctx, h)
	if err != nil {
		return "", m, err
	}
	return hex.EncodeToString(h.Sum(nil)), m, nil
}

// partialRanges returns the sampled regions of a file: first, middle and
// last chunk. Files too small to hold three distinct chunks are read whole.
func partialRanges(size, chunk int64) [][2]int64 {
	if size <= 3*chunk {
		return [][2]int64{{0, size}}
	}
	mid := size/2 - chunk/2
	return [][2]int64{{0, chunk}, {mid, chunk}, {size - chunk, chunk}}
}

// contentDigest reads r and returns either the full hash (partial=false)
// or the partial hash over the size and the sampled regions. head receives
// the first bytes of the file for type detection.
func contentDigest(ctx context.Context, r *sector.Reader, partial bool, chunk int64, head *headBuffer) (string, sector.Map, error) {
	h := blake3.New()
	w := io.MultiWriter(h, head)

	if !partial {
		m, err := r.Stream(ctx, w)
		return hex.EncodeToString(h.Sum(nil)), m, err
	}

	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], uint64(r.Size))
	h.Write(sz[:])

	var total sector.Map
	for _, rg := range partialRanges(r.Size, chunk) {
		m, err := r.ReadRange(ctx, w, rg[0], rg[1])
		total.Merge(m)
		if err != nil {
			return "", total, err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// headBuffer keeps the first n bytes written to it.
type headBuffer struct {
	buf []byte
	n   int
}

func newHeadBuffer(n int) *headBuffer { return &headBuffer{n: n} }

func (b *headBuffer) Write(p []byte) (int, error) {
	if room := b.n - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (b *headBuffer) Bytes() []byte { return b.buf }

// ReadSample returns up to n leading bytes of root/rel read through the
// bad-sector reader, with the sector map of what was read.
func ReadSample(ctx context.Context, root, rel string, n int64, opts ReadOptions) ([]byte, sector.Map, error) {
	open := opts.Opener()
	abs := absPath(root, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, sector.Map{}, err
	}
	f, err := open(abs)
	if err != nil {
		return nil, sector.Map{}, err
	}
	defer f.Close()

	var buf bytes.Buffer
	m, err := opts.reader(f, rel, info.Size()).ReadRange(ctx, &buf, 0, min(n, info.Size()))
	return buf.Bytes(), m, err
}
