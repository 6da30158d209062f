//go:build darwin

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

// AccessTime returns the last access time recorded for info.
func AccessTime(info fs.FileInfo) (time.Time, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec).UTC(), true
}

// DeviceID returns the device that holds info.
func DeviceID(info fs.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
}
