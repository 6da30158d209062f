//go:build !linux

package platform

import "os"

// Preallocate does nothing outside Linux. Export output is still written in
// full; only the up-front reservation is skipped.
func Preallocate(*os.File, int64) {}
