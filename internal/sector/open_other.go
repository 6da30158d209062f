//go:build !linux

package sector

import "os"

// OpenReadOnly opens path for reading.
func OpenReadOnly(path string) (*os.File, error) {
	return os.Open(path)
}
