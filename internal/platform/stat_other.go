//go:build !linux && !darwin

package platform

import (
	"io/fs"
	"time"
)

// AccessTime is not available on this platform.
func AccessTime(fs.FileInfo) (time.Time, bool) { return time.Time{}, false }

// DeviceID is not available on this platform.
func DeviceID(fs.FileInfo) (uint64, bool) { return 0, false }
