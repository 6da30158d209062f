//go:build linux

package platform

import "golang.org/x/sys/unix"

// MountReadOnly reports whether the filesystem holding path is mounted
// read-only.
func MountReadOnly(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, err
	}
	return st.Flags&unix.ST_RDONLY != 0, nil
}
