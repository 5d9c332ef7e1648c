package cl

import (
	"errors"
	"strings"
)

// Error is a failed runtime call translated into a diagnostic.
// Use errors.Is with one of the Err* sentinels to classify it.
type Error struct {
	Op     string // operation that failed, e.g. "create kernel"
	Status Status
	Reason string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Status.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is matches any *Error carrying the same status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Status == e.Status
}

// New builds an Error for op using the phase-specific reason for status.
func New(op string, phase Phase, status Status) *Error {
	return &Error{Op: op, Status: status, Reason: Reason(phase, status)}
}

// StatusOf extracts the status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Status, true
	}
	return Success, false
}

// BuildError is returned when a program fails to build. It carries the
// compiler log so errors in kernel source are actionable.
type BuildError struct {
	Err *Error
	Log string
}

func (e *BuildError) Error() string {
	if strings.TrimSpace(e.Log) == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\nbuild log:\n" + strings.TrimRight(e.Log, "\x00\n ")
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Sentinels for classification with errors.Is.
var (
	ErrDeviceNotFound           = &Error{Status: DeviceNotFound}
	ErrDeviceNotAvailable       = &Error{Status: DeviceNotAvailable}
	ErrCompilerNotAvailable     = &Error{Status: CompilerNotAvailable}
	ErrMemObjectAllocation      = &Error{Status: MemObjectAllocationFailure}
	ErrOutOfResources           = &Error{Status: OutOfResources}
	ErrOutOfHostMemory          = &Error{Status: OutOfHostMemory}
	ErrBuildProgramFailure      = &Error{Status: BuildProgramFailure}
	ErrInvalidValue             = &Error{Status: InvalidValue}
	ErrInvalidPlatform          = &Error{Status: InvalidPlatform}
	ErrInvalidDevice            = &Error{Status: InvalidDevice}
	ErrInvalidContext           = &Error{Status: InvalidContext}
	ErrInvalidQueueProperties   = &Error{Status: InvalidQueueProperties}
	ErrInvalidCommandQueue      = &Error{Status: InvalidCommandQueue}
	ErrInvalidMemObject         = &Error{Status: InvalidMemObject}
	ErrInvalidSampler           = &Error{Status: InvalidSampler}
	ErrInvalidBuildOptions      = &Error{Status: InvalidBuildOptions}
	ErrInvalidProgram           = &Error{Status: InvalidProgram}
	ErrInvalidProgramExecutable = &Error{Status: InvalidProgramExecutable}
	ErrInvalidKernelName        = &Error{Status: InvalidKernelName}
	ErrInvalidKernel            = &Error{Status: InvalidKernel}
	ErrInvalidArgIndex          = &Error{Status: InvalidArgIndex}
	ErrInvalidArgValue          = &Error{Status: InvalidArgValue}
	ErrInvalidArgSize           = &Error{Status: InvalidArgSize}
	ErrInvalidKernelArgs        = &Error{Status: InvalidKernelArgs}
	ErrInvalidWorkDimension     = &Error{Status: InvalidWorkDimension}
	ErrInvalidWorkGroupSize     = &Error{Status: InvalidWorkGroupSize}
	ErrInvalidGlobalOffset      = &Error{Status: InvalidGlobalOffset}
	ErrInvalidBufferSize        = &Error{Status: InvalidBufferSize}
	ErrInvalidGlobalWorkSize    = &Error{Status: InvalidGlobalWorkSize}
)
