// Package cl translates OpenCL status codes into diagnostics.
//
// The numeric values mirror <CL/cl.h> so that drivers can pass raw status
// codes straight through. Nothing in this package talks to a runtime.
package cl

import "strconv"

// Status is a raw OpenCL status code. Zero is success, negative values are errors.
type Status int32

const (
	Success                            Status = 0
	DeviceNotFound                     Status = -1
	DeviceNotAvailable                 Status = -2
	CompilerNotAvailable               Status = -3
	MemObjectAllocationFailure         Status = -4
	OutOfResources                     Status = -5
	OutOfHostMemory                    Status = -6
	ProfilingInfoNotAvailable          Status = -7
	MemCopyOverlap                     Status = -8
	ImageFormatMismatch                Status = -9
	ImageFormatNotSupported            Status = -10
	BuildProgramFailure                Status = -11
	MapFailure                         Status = -12
	MisalignedSubBufferOffset          Status = -13
	ExecStatusErrorForEventsInWaitList Status = -14
	CompileProgramFailure              Status = -15
	LinkerNotAvailable                 Status = -16
	LinkProgramFailure                 Status = -17
	DevicePartitionFailed              Status = -18
	KernelArgInfoNotAvailable          Status = -19

	InvalidValue                 Status = -30
	InvalidDeviceType            Status = -31
	InvalidPlatform              Status = -32
	InvalidDevice                Status = -33
	InvalidContext               Status = -34
	InvalidQueueProperties       Status = -35
	InvalidCommandQueue          Status = -36
	InvalidHostPtr               Status = -37
	InvalidMemObject             Status = -38
	InvalidImageFormatDescriptor Status = -39
	InvalidImageSize             Status = -40
	InvalidSampler               Status = -41
	InvalidBinary                Status = -42
	InvalidBuildOptions          Status = -43
	InvalidProgram               Status = -44
	InvalidProgramExecutable     Status = -45
	InvalidKernelName            Status = -46
	InvalidKernelDefinition      Status = -47
	InvalidKernel                Status = -48
	InvalidArgIndex              Status = -49
	InvalidArgValue              Status = -50
	InvalidArgSize               Status = -51
	InvalidKernelArgs            Status = -52
	InvalidWorkDimension         Status = -53
	InvalidWorkGroupSize         Status = -54
	InvalidWorkItemSize          Status = -55
	InvalidGlobalOffset          Status = -56
	InvalidEventWaitList         Status = -57
	InvalidEvent                 Status = -58
	InvalidOperation             Status = -59
	InvalidGLObject              Status = -60
	InvalidBufferSize            Status = -61
	InvalidMipLevel              Status = -62
	InvalidGlobalWorkSize        Status = -63
	InvalidProperty              Status = -64
	InvalidImageDescriptor       Status = -65
	InvalidCompilerOptions       Status = -66
	InvalidLinkerOptions         Status = -67
	InvalidDevicePartitionCount  Status = -68
	InvalidPipeSize              Status = -69
	InvalidDeviceQueue           Status = -70

	PlatformNotFoundKHR Status = -1001
)

var statusNames = map[Status]string{
	Success:                            "CL_SUCCESS",
	DeviceNotFound:                     "CL_DEVICE_NOT_FOUND",
	DeviceNotAvailable:                 "CL_DEVICE_NOT_AVAILABLE",
	CompilerNotAvailable:               "CL_COMPILER_NOT_AVAILABLE",
	MemObjectAllocationFailure:         "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:                     "CL_OUT_OF_RESOURCES",
	OutOfHostMemory:                    "CL_OUT_OF_HOST_MEMORY",
	ProfilingInfoNotAvailable:          "CL_PROFILING_INFO_NOT_AVAILABLE",
	MemCopyOverlap:                     "CL_MEM_COPY_OVERLAP",
	ImageFormatMismatch:                "CL_IMAGE_FORMAT_MISMATCH",
	ImageFormatNotSupported:            "CL_IMAGE_FORMAT_NOT_SUPPORTED",
	BuildProgramFailure:                "CL_BUILD_PROGRAM_FAILURE",
	MapFailure:                         "CL_MAP_FAILURE",
	MisalignedSubBufferOffset:          "CL_MISALIGNED_SUB_BUFFER_OFFSET",
	ExecStatusErrorForEventsInWaitList: "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	CompileProgramFailure:              "CL_COMPILE_PROGRAM_FAILURE",
	LinkerNotAvailable:                 "CL_LINKER_NOT_AVAILABLE",
	LinkProgramFailure:                 "CL_LINK_PROGRAM_FAILURE",
	DevicePartitionFailed:              "CL_DEVICE_PARTITION_FAILED",
	KernelArgInfoNotAvailable:          "CL_KERNEL_ARG_INFO_NOT_AVAILABLE",
	InvalidValue:                       "CL_INVALID_VALUE",
	InvalidDeviceType:                  "CL_INVALID_DEVICE_TYPE",
	InvalidPlatform:                    "CL_INVALID_PLATFORM",
	InvalidDevice:                      "CL_INVALID_DEVICE",
	InvalidContext:                     "CL_INVALID_CONTEXT",
	InvalidQueueProperties:             "CL_INVALID_QUEUE_PROPERTIES",
	InvalidCommandQueue:                "CL_INVALID_COMMAND_QUEUE",
	InvalidHostPtr:                     "CL_INVALID_HOST_PTR",
	InvalidMemObject:                   "CL_INVALID_MEM_OBJECT",
	InvalidImageFormatDescriptor:       "CL_INVALID_IMAGE_FORMAT_DESCRIPTOR",
	InvalidImageSize:                   "CL_INVALID_IMAGE_SIZE",
	InvalidSampler:                     "CL_INVALID_SAMPLER",
	InvalidBinary:                      "CL_INVALID_BINARY",
	InvalidBuildOptions:                "CL_INVALID_BUILD_OPTIONS",
	InvalidProgram:                     "CL_INVALID_PROGRAM",
	InvalidProgramExecutable:           "CL_INVALID_PROGRAM_EXECUTABLE",
	InvalidKernelName:                  "CL_INVALID_KERNEL_NAME",
	InvalidKernelDefinition:            "CL_INVALID_KERNEL_DEFINITION",
	InvalidKernel:                      "CL_INVALID_KERNEL",
	InvalidArgIndex:                    "CL_INVALID_ARG_INDEX",
	InvalidArgValue:                    "CL_INVALID_ARG_VALUE",
	InvalidArgSize:                     "CL_INVALID_ARG_SIZE",
	InvalidKernelArgs:                  "CL_INVALID_KERNEL_ARGS",
	InvalidWorkDimension:               "CL_INVALID_WORK_DIMENSION",
	InvalidWorkGroupSize:               "CL_INVALID_WORK_GROUP_SIZE",
	InvalidWorkItemSize:                "CL_INVALID_WORK_ITEM_SIZE",
	InvalidGlobalOffset:                "CL_INVALID_GLOBAL_OFFSET",
	InvalidEventWaitList:               "CL_INVALID_EVENT_WAIT_LIST",
	InvalidEvent:                       "CL_INVALID_EVENT",
	InvalidOperation:                   "CL_INVALID_OPERATION",
	InvalidGLObject:                    "CL_INVALID_GL_OBJECT",
	InvalidBufferSize:                  "CL_INVALID_BUFFER_SIZE",
	InvalidMipLevel:                    "CL_INVALID_MIP_LEVEL",
	InvalidGlobalWorkSize:              "CL_INVALID_GLOBAL_WORK_SIZE",
	InvalidProperty:                    "CL_INVALID_PROPERTY",
	InvalidImageDescriptor:             "CL_INVALID_IMAGE_DESCRIPTOR",
	InvalidCompilerOptions:             "CL_INVALID_COMPILER_OPTIONS",
	InvalidLinkerOptions:               "CL_INVALID_LINKER_OPTIONS",
	InvalidDevicePartitionCount:        "CL_INVALID_DEVICE_PARTITION_COUNT",
	InvalidPipeSize:                    "CL_INVALID_PIPE_SIZE",
	InvalidDeviceQueue:                 "CL_INVALID_DEVICE_QUEUE",
	PlatformNotFoundKHR:                "CL_PLATFORM_NOT_FOUND_KHR",
}

// String returns the symbolic name of the status, e.g. "CL_INVALID_ARG_INDEX".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "CL_UNKNOWN_ERROR"
}

// OK reports whether s is CL_SUCCESS.
func (s Status) OK() bool {
	return s == Success
}

var descriptions = map[Status]string{
	Success:                    "no errors occurred",
	DeviceNotFound:             "no devices that matched the requested device type were found",
	DeviceNotAvailable:         "a device is currently not available even though it was returned by device enumeration",
	CompilerNotAvailable:       "no compiler is available for the device",
	MemObjectAllocationFailure: "failed to allocate memory for the data store associated with a memory object",
	OutOfResources:             "failed to allocate resources required by the OpenCL implementation on the device",
	OutOfHostMemory:            "failed to allocate resources required by the OpenCL implementation on the host",
	BuildProgramFailure:        "failed to build the program executable",
	InvalidValue:               "one or more argument values are not valid",
	InvalidDeviceType:          "the requested device type is not valid",
	InvalidPlatform:            "the platform is not valid or no platform could be selected",
	InvalidDevice:              "the device is not valid or is not associated with the context",
	InvalidContext:             "the context is not valid",
	InvalidQueueProperties:     "the queue properties are valid but not supported by the device",
	InvalidCommandQueue:        "the command queue is not valid",
	InvalidHostPtr:             "the host pointer and the memory flags are not allowed together",
	InvalidMemObject:           "the memory object is not valid",
	InvalidSampler:             "the sampler is not valid",
	InvalidBinary:              "the program binary is not valid",
	InvalidBuildOptions:        "the build options are not valid",
	InvalidProgram:             "the program is not valid",
	InvalidProgramExecutable:   "no successfully built program executable is available for the device associated with the command queue",
	InvalidKernelName:          "the kernel name was not found in the program",
	InvalidKernelDefinition:    "the kernel definition differs between devices",
	InvalidKernel:              "the kernel is not valid",
	InvalidArgIndex:            "the argument index is not valid",
	InvalidArgValue:            "the argument value is not valid",
	InvalidArgSize:             "the argument size does not match the declared parameter type",
	InvalidKernelArgs:          "the kernel argument values have not been specified",
	InvalidWorkDimension:       "the work dimension is not between 1 and the device maximum",
	InvalidWorkGroupSize:       "the work group size does not fit the allowed maximum",
	InvalidWorkItemSize:        "a work item size exceeds the device maximum for that dimension",
	InvalidGlobalOffset:        "the global offset plus global work size exceeds the device addressable range",
	InvalidEventWaitList:       "the event wait list is not valid",
	InvalidEvent:               "the event is not valid",
	InvalidOperation:           "the operation is not valid in the current state",
	InvalidBufferSize:          "the buffer size is zero or exceeds the device maximum allocation size",
	InvalidGlobalWorkSize:      "the global work size is zero or exceeds the device addressable range",
	InvalidProperty:            "a property name or value is not valid",
	PlatformNotFoundKHR:        "no OpenCL platform is installed",
}

// Describe returns a general human-readable description of s.
func Describe(s Status) string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown error code: " + strconv.Itoa(int(s))
}
