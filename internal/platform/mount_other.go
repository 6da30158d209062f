//go:build !linux && !darwin

package platform

import "errors"

// MountReadOnly cannot inspect mount flags on this platform.
func MountReadOnly(string) (bool, error) {
	return false, errors.ErrUnsupported
}
