//go:build !linux

package rpmsgchar

import (
	"errors"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// ErrUnsupported is returned by New on any platform other than Linux: the
// RPMsg character-device driver this package wraps is Linux-only. The
// underlying device is out of scope for other platforms; this package is
// the optional real backing for it.
var ErrUnsupported = errors.New("rpmsgchar: unsupported on this platform")

// New always fails outside Linux. Use simbus for tests and the demo CLI on
// other platforms.
func New(devDir, localCPU string) (rpmsgbus.Bus, error) {
	return nil, ErrUnsupported
}
