package cl

import "strconv"

// Phase identifies the runtime call a status came from. The same status
// code means different things depending on the call that produced it.
type Phase int

const (
	PhaseGeneric Phase = iota
	PhaseContextCreate
	PhaseContextRelease
	PhaseProgramCreate
	PhaseProgramBuild
	PhaseProgramRelease
	PhaseKernelCreate
	PhaseKernelRelease
	PhaseSetArg
	PhaseWorkGroupQuery
	PhaseDeviceQuery
	PhaseExecute
	PhaseQueueCreate
	PhaseQueueRelease
	PhaseTransfer
	PhaseBufferCreate
	PhaseBufferRelease
	PhaseEnumerate
)

const (
	hostResources   = "cannot allocate resources required by the OpenCL implementation on the host"
	deviceResources = "cannot allocate resources required by the OpenCL implementation on the device"
)

var phaseReasons = map[Phase]map[Status]string{
	PhaseEnumerate: {
		InvalidValue:        "the platform or device list arguments are inconsistent",
		InvalidPlatform:     "the platform is not valid",
		InvalidDeviceType:   "the requested device type is not valid",
		DeviceNotFound:      "no devices matching the requested type were found",
		PlatformNotFoundKHR: "no OpenCL platform is installed",
		OutOfResources:      deviceResources,
		OutOfHostMemory:     hostResources,
	},
	PhaseContextCreate: {
		InvalidPlatform:    "no platform could be selected or the platform in the properties is not valid",
		InvalidDevice:      "the device is not valid or is not associated with the selected platform",
		InvalidValue:       "a context property is not supported, the device list is empty or a callback argument is inconsistent",
		DeviceNotAvailable: "the device is currently not available even though device enumeration returned it",
		OutOfResources:     deviceResources,
		OutOfHostMemory:    hostResources,
	},
	PhaseContextRelease: {
		InvalidContext:  "the context is invalid",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseProgramCreate: {
		InvalidContext:  "the passed context is invalid",
		InvalidValue:    "no kernel source code was passed",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseProgramBuild: {
		InvalidProgram:       "the program is invalid",
		InvalidValue:         "the passed device is NULL",
		InvalidDevice:        "the passed device is not in the list of devices associated with the program",
		InvalidBinary:        "the loaded program binary is invalid",
		InvalidBuildOptions:  "the specified build options are invalid",
		InvalidOperation:     "a previous build has not completed",
		CompilerNotAvailable: "the compiler is not available",
		BuildProgramFailure:  "failure to build the program executable",
		OutOfResources:       deviceResources,
		OutOfHostMemory:      hostResources,
	},
	PhaseProgramRelease: {
		InvalidProgram:  "the program is invalid",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseKernelCreate: {
		InvalidProgram:           "the associated program is invalid",
		InvalidProgramExecutable: "there is no successfully built executable for the program",
		InvalidKernelName:        "the kernel name could not be found in the provided source code",
		InvalidKernelDefinition:  "invalid kernel definition (the number and types of the arguments must match for all devices)",
		InvalidValue:             "the kernel name is NULL",
		OutOfResources:           deviceResources,
		OutOfHostMemory:          hostResources,
	},
	PhaseKernelRelease: {
		InvalidKernel:   "the kernel is invalid",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseSetArg: {
		InvalidKernel:    "the kernel is invalid",
		InvalidArgIndex:  "the argument index is invalid",
		InvalidArgValue:  "the argument value may not be NULL for a parameter declared as a memory object or must be NULL for a __local parameter",
		InvalidMemObject: "the argument is declared to be a memory object but the passed value is not a valid memory object",
		InvalidSampler:   "the argument is declared to be of type sampler_t but the passed value is not a valid sampler object",
		InvalidArgSize:   "the argument size does not match the size of the declared parameter type",
		OutOfResources:   deviceResources,
		OutOfHostMemory:  hostResources,
	},
	PhaseWorkGroupQuery: {
		InvalidKernel:   "the passed kernel is invalid",
		InvalidDevice:   "the passed device is not associated with the kernel",
		InvalidValue:    "an invalid value was passed as an argument",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseDeviceQuery: {
		InvalidDevice:   "the passed device is not valid",
		InvalidValue:    "an invalid value was passed as an argument",
		OutOfResources:  deviceResources,
		OutOfHostMemory: hostResources,
	},
	PhaseExecute: {
		InvalidProgramExecutable:   "no successfully built program executable available for the device associated with the queue",
		InvalidCommandQueue:        "the passed command queue is not a valid host command queue",
		InvalidKernel:              "the used kernel is invalid",
		InvalidContext:             "the context associated with the command queue and the kernel are not the same",
		InvalidKernelArgs:          "the kernel arguments are invalid or unset (check the passed values and that pointers point to a named address space)",
		InvalidWorkDimension:       "the work dimension must be between 1 and CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS",
		InvalidGlobalWorkSize:      "the global work size must be between 1 and the maximum value representable by size_t on the device",
		InvalidGlobalOffset:        "the global work size plus the global offset exceeds the maximum value representable by size_t on the device",
		InvalidWorkGroupSize:       "the work group size does not fit the allowed maximum for the kernel",
		InvalidWorkItemSize:        "a work item size exceeds the device maximum",
		InvalidValue:               "the kernel name is NULL",
		MemObjectAllocationFailure: "cannot allocate memory for a buffer bound to the kernel",
		OutOfResources:             deviceResources,
		OutOfHostMemory:            hostResources,
	},
	PhaseQueueCreate: {
		InvalidContext:         "the context is invalid",
		InvalidDevice:          "the device is not valid or is not associated with the context",
		InvalidValue:           "the queue property values are not valid",
		InvalidQueueProperties: "the specified queue properties are valid but not supported by the device",
		OutOfResources:         deviceResources,
		OutOfHostMemory:        hostResources,
	},
	PhaseQueueRelease: {
		InvalidCommandQueue: "the command queue is invalid",
		OutOfResources:      deviceResources,
		OutOfHostMemory:     hostResources,
	},
	PhaseTransfer: {
		InvalidCommandQueue:        "the command queue is invalid",
		InvalidContext:             "the queue and the buffer belong to different contexts",
		InvalidMemObject:           "the passed buffer is not a valid buffer object",
		InvalidValue:               "the region being transferred is out of bounds or the host pointer is NULL",
		InvalidEventWaitList:       "the event wait list is invalid",
		MemObjectAllocationFailure: "cannot allocate memory for the data store associated with the buffer",
		InvalidOperation:           "the transfer is not allowed on a buffer with these host access flags",
		OutOfResources:             deviceResources,
		OutOfHostMemory:            hostResources,
	},
	PhaseBufferCreate: {
		InvalidContext:             "the passed context is invalid",
		InvalidValue:               "the passed flag combination is invalid",
		InvalidBufferSize:          "the passed size is outside the range 1 to CL_DEVICE_MAX_MEM_ALLOC_SIZE",
		InvalidHostPtr:             "the passed host pointer and the flags are not allowed together",
		MemObjectAllocationFailure: "cannot allocate memory for the buffer object",
		OutOfResources:             deviceResources,
		OutOfHostMemory:            hostResources,
	},
	PhaseBufferRelease: {
		InvalidMemObject: "the passed memory object is not valid",
		OutOfResources:   deviceResources,
		OutOfHostMemory:  hostResources,
	},
}

// Reason returns the cause of status in the context of phase. It falls back
// to the general description and finally to the numeric code.
func Reason(phase Phase, status Status) string {
	if reasons, ok := phaseReasons[phase]; ok {
		if r, ok := reasons[status]; ok {
			return r
		}
		if _, known := statusNames[status]; !known {
			return "unknown error code: " + strconv.Itoa(int(status))
		}
	}
	return Describe(status)
}
