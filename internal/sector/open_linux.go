//go:build linux

package sector

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// OpenReadOnly opens path for reading without updating its access time and
// hints the kernel that it will be read sequentially. O_NOATIME needs file
// ownership, so it is dropped when the kernel refuses it.
func OpenReadOnly(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NOATIME, 0)
	if errors.Is(err, unix.EPERM) {
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_SEQUENTIAL)
	return os.NewFile(uintptr(fd), path), nil
}
