// Package driver defines the narrow slice of the OpenCL runtime API the
// dispatch layer consumes. Implementations report raw cl.Status codes and
// leave translation into diagnostics to the caller.
package driver

import (
	"fmt"
	"strings"

	"github.com/cwbudde/cltoolkit/internal/cl"
)

// Opaque runtime handles. Their lifetime is tied to driver state, not Go memory.
type (
	PlatformID uintptr
	DeviceID   uintptr
	ContextID  uintptr
	MemID      uintptr
	ProgramID  uintptr
	KernelID   uintptr
	QueueID    uintptr
)

// DeviceType is the CL_DEVICE_TYPE bitfield.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
	DeviceTypeAll         DeviceType = 0xFFFFFFFF
)

// String classifies the device as CPU, GPU, Accelerator or Unknown.
// The DEFAULT bit alone does not name a device class.
func (t DeviceType) String() string {
	switch {
	case t == DeviceTypeAll:
		return "All"
	case t&DeviceTypeGPU != 0:
		return "GPU"
	case t&DeviceTypeCPU != 0:
		return "CPU"
	case t&DeviceTypeAccelerator != 0:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(t.String())), nil
}

// UnmarshalText accepts cpu, gpu, accelerator and all (case-insensitive).
func (t *DeviceType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "cpu":
		*t = DeviceTypeCPU
	case "gpu":
		*t = DeviceTypeGPU
	case "accelerator", "acc":
		*t = DeviceTypeAccelerator
	case "all":
		*t = DeviceTypeAll
	default:
		return fmt.Errorf("unknown device type %q", string(text))
	}
	return nil
}

// PlatformParam selects a string attribute of a platform.
type PlatformParam int

const (
	PlatformName PlatformParam = iota
	PlatformVendor
	PlatformVersion
)

// DeviceParam selects a device attribute.
type DeviceParam int

const (
	DeviceName DeviceParam = iota
	DeviceVendor
	DeviceVersion
	DeviceTypeInfo
	DeviceMaxComputeUnits
	DeviceGlobalMemSize
	DeviceLocalMemSize
	DeviceMaxGlobalVariableSize
	DeviceMaxMemAllocSize
	DeviceMaxWorkGroupSize
	DeviceAddressBits
)

// MemFlags is the CL_MEM_* access bitfield.
type MemFlags uint64

const (
	MemReadWrite MemFlags = 1 << 0
	MemWriteOnly MemFlags = 1 << 1
	MemReadOnly  MemFlags = 1 << 2
)

// QueueProperties is the CL_QUEUE_PROPERTIES bitfield.
type QueueProperties uint64

const (
	QueueOutOfOrderExec QueueProperties = 1 << 0
	QueueProfiling      QueueProperties = 1 << 1
)

// Driver is the underlying compute runtime. All enqueue operations block
// until the command has completed.
type Driver interface {
	Name() string

	PlatformIDs() ([]PlatformID, cl.Status)
	PlatformInfo(p PlatformID, param PlatformParam) (string, cl.Status)
	DeviceIDs(p PlatformID, kind DeviceType) ([]DeviceID, cl.Status)
	DeviceString(d DeviceID, param DeviceParam) (string, cl.Status)
	DeviceUint(d DeviceID, param DeviceParam) (uint64, cl.Status)

	CreateContext(d DeviceID) (ContextID, cl.Status)
	ReleaseContext(c ContextID) cl.Status

	CreateBuffer(c ContextID, flags MemFlags, size int) (MemID, cl.Status)
	ReleaseMemObject(m MemID) cl.Status

	CreateProgramWithSource(c ContextID, source string) (ProgramID, cl.Status)
	BuildProgram(p ProgramID, d DeviceID, options string) cl.Status
	ProgramBuildLog(p ProgramID, d DeviceID, limit int) (string, cl.Status)
	ReleaseProgram(p ProgramID) cl.Status

	CreateKernel(p ProgramID, name string) (KernelID, cl.Status)
	// SetKernelArg binds size bytes of value to the argument slot. A nil
	// value passes NULL, which is how __local arguments are sized.
	SetKernelArg(k KernelID, index uint32, size int, value []byte) cl.Status
	SetKernelArgMem(k KernelID, index uint32, m MemID) cl.Status
	KernelWorkGroupSize(k KernelID, d DeviceID) (uint64, cl.Status)
	ReleaseKernel(k KernelID) cl.Status

	CreateCommandQueue(c ContextID, d DeviceID, props QueueProperties) (QueueID, cl.Status)
	EnqueueWriteBuffer(q QueueID, m MemID, offset int, src []byte) cl.Status
	EnqueueReadBuffer(q QueueID, m MemID, offset int, dst []byte) cl.Status
	// EnqueueNDRangeKernel launches len(global) dimensions. Nil offset and
	// local let the runtime choose.
	EnqueueNDRangeKernel(q QueueID, k KernelID, offset, global, local []uint64) cl.Status
	Finish(q QueueID) cl.Status
	ReleaseCommandQueue(q QueueID) cl.Status
}
