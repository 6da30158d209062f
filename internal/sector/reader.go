// Package sector reads files from failing media. Each block is retried with
// exponential backoff; a block that never reads is zero-filled so the rest
// of the file can still be recovered.
package sector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/fault"
)

const (
	DefaultBlockSize  = 4096
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMultiplier = 4.0
)

// Status is the outcome of reading one block.
type Status string

const (
	Clean      Status = "clean"      // read on the first attempt
	Recovered  Status = "recovered"  // read after one or more retries
	Unreadable Status = "unreadable" // every attempt failed; data is zero-filled
)

// Block is the result of reading one block. Data always has the block's
// length; for an Unreadable block it is all zeros and Err says why.
type Block struct {
	Err      error
	Data     []byte
	Status   Status
	Offset   int64
	Attempts int
}

// Reader reads a file block by block. Zero fields take the package
// defaults; a failed attempt n (0-based) waits BaseDelay*Multiplier^n.
// A negative MaxRetries disables retrying.
type Reader struct {
	File       io.ReaderAt
	Events     event.Sink
	Path       string
	Op         event.Op
	Size       int64
	BlockSize  int
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

func (r *Reader) blockSize() int {
	if r.BlockSize > 0 {
		return r.BlockSize
	}
	return DefaultBlockSize
}

func (r *Reader) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBaseDelay
	}
	b.Multiplier = r.Multiplier
	if b.Multiplier <= 0 {
		b.Multiplier = DefaultMultiplier
	}
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	retries := r.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// ReadBlock reads length bytes at offset, retrying on failure. It never
// returns an error for unreadable media; the outcome is on the Block. ctx
// only bounds the waits between retries.
func (r *Reader) ReadBlock(ctx context.Context, offset int64, length int) Block {
	if r.Size > 0 && offset+int64(length) > r.Size {
		length = int(max(r.Size-offset, 0))
	}
	buf := make([]byte, length)
	blk := Block{Offset: offset}

	var n int
	read := func() error {
		blk.Attempts++
		var err error
		n, err = r.File.ReadAt(buf, offset)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	err := backoff.Retry(read, r.backOff(ctx))
	switch {
	case err != nil:
		clear(buf)
		blk.Data = buf
		blk.Status = Unreadable
		blk.Err = &fault.TransientIOError{
			Path:     r.Path,
			Offset:   offset,
			Length:   int64(length),
			Attempts: blk.Attempts,
			Err:      err,
		}
	case blk.Attempts > 1:
		blk.Data = buf[:n]
		blk.Status = Recovered
	default:
		blk.Data = buf[:n]
		blk.Status = Clean
	}

	if r.Events != nil {
		r.Events.Emit(event.Event{
			Type:     event.SectorRead,
			Op:       r.Op,
			Path:     r.Path,
			Offset:   offset,
			Length:   int64(length),
			Attempts: blk.Attempts,
			Status:   string(blk.Status),
			Error:    blk.Err,
		})
	}
	return blk
}

// Stream reads the whole file and writes every block, zero-filled where
// unreadable, to w. Only a failing writer produces an error.
func (r *Reader) Stream(ctx context.Context, w io.Writer) (Map, error) {
	return r.ReadRange(ctx, w, 0, r.Size)
}

// ReadRange reads n bytes starting at off, block by block, into w.
func (r *Reader) ReadRange(ctx context.Context, w io.Writer, off, n int64) (Map, error) {
	bs := r.blockSize()
	m := Map{BlockSize: bs}
	end := off + n
	if r.Size > 0 && end > r.Size {
		end = r.Size
	}
	for pos := off; pos < end; pos += int64(bs) {
		length := int(min(int64(bs), end-pos))
		blk := r.ReadBlock(ctx, pos, length)
		m.add(blk, length)
		if len(blk.Data) == 0 {
			break // file shrank under us
		}
		if _, err := w.Write(blk.Data); err != nil {
			return m, fmt.Errorf("write block at %d: %w", pos, err)
		}
	}
	return m, nil
}
