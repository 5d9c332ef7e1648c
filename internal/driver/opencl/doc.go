// Package opencl implements driver.Driver on top of the system OpenCL ICD
// loader. Native support is compiled only with the gpu build tag:
//
//	go build -tags gpu ./...
package opencl

import "fmt"

// ErrNotBuilt indicates the binary was built without native OpenCL support.
var ErrNotBuilt = fmt.Errorf("opencl support requires building with '-tags gpu'")
