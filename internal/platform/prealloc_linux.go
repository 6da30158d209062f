//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for an export temp file so a full
// destination fails early instead of after a long copy. The reservation is
// a hint; filesystems without fallocate simply ignore it.
func Preallocate(f *os.File, size int64) {
	if size <= 0 {
		return
	}
	_ = unix.Fallocate(int(f.Fd()), 0, 0, size) //nolint:gosec // G115: fd fits in int
}
