//go:build !gpu

package opencl

import "github.com/cwbudde/cltoolkit/internal/driver"

// New returns ErrNotBuilt when native OpenCL support is not compiled in.
func New() (driver.Driver, error) {
	return nil, ErrNotBuilt
}
