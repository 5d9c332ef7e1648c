//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 200
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static cl_command_queue cltk_create_queue(cl_context ctx, cl_device_id device, cl_command_queue_properties props, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties list[] = {CL_QUEUE_PROPERTIES, props, 0};
	return clCreateCommandQueueWithProperties(ctx, device, props ? list : NULL, status);
#else
	return clCreateCommandQueue(ctx, device, props, status);
#endif
}
*/
import "C"

import (
	"unsafe"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// platformNotFoundKHR is returned by the ICD loader when no vendor
// implementation is installed.
const platformNotFoundKHR = -1001

// Driver calls into the system OpenCL ICD loader.
type Driver struct{}

var _ driver.Driver = (*Driver)(nil)

// New returns the native driver.
func New() (driver.Driver, error) {
	return &Driver{}, nil
}

func (*Driver) Name() string { return "opencl" }

func status(s C.cl_int) cl.Status { return cl.Status(s) }

func (*Driver) PlatformIDs() ([]driver.PlatformID, cl.Status) {
	var count C.cl_uint
	s := C.clGetPlatformIDs(0, nil, &count)
	if s == platformNotFoundKHR {
		return nil, cl.Success
	}
	if s != C.CL_SUCCESS {
		return nil, status(s)
	}
	if count == 0 {
		return nil, cl.Success
	}

	ids := make([]C.cl_platform_id, int(count))
	s = C.clGetPlatformIDs(count, &ids[0], nil)
	if s != C.CL_SUCCESS {
		return nil, status(s)
	}

	out := make([]driver.PlatformID, len(ids))
	for i, id := range ids {
		out[i] = driver.PlatformID(unsafe.Pointer(id))
	}
	return out, cl.Success
}

func (*Driver) PlatformInfo(p driver.PlatformID, param driver.PlatformParam) (string, cl.Status) {
	var name C.cl_platform_info
	switch param {
	case driver.PlatformName:
		name = C.CL_PLATFORM_NAME
	case driver.PlatformVendor:
		name = C.CL_PLATFORM_VENDOR
	case driver.PlatformVersion:
		name = C.CL_PLATFORM_VERSION
	default:
		return "", cl.InvalidValue
	}
	id := platformHandle(p)

	var size C.size_t
	s := C.clGetPlatformInfo(id, name, 0, nil, &size)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	if size == 0 {
		return "", cl.Success
	}

	buf := make([]byte, int(size))
	s = C.clGetPlatformInfo(id, name, size, unsafe.Pointer(&buf[0]), nil)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	return trimNull(buf), cl.Success
}

func (*Driver) DeviceIDs(p driver.PlatformID, kind driver.DeviceType) ([]driver.DeviceID, cl.Status) {
	id := platformHandle(p)
	var count C.cl_uint
	s := C.clGetDeviceIDs(id, C.cl_device_type(kind), 0, nil, &count)
	if s != C.CL_SUCCESS {
		return nil, status(s)
	}
	if count == 0 {
		return nil, cl.DeviceNotFound
	}

	ids := make([]C.cl_device_id, int(count))
	s = C.clGetDeviceIDs(id, C.cl_device_type(kind), count, &ids[0], nil)
	if s != C.CL_SUCCESS {
		return nil, status(s)
	}

	out := make([]driver.DeviceID, len(ids))
	for i, d := range ids {
		out[i] = driver.DeviceID(unsafe.Pointer(d))
	}
	return out, cl.Success
}

func (*Driver) DeviceString(d driver.DeviceID, param driver.DeviceParam) (string, cl.Status) {
	var name C.cl_device_info
	switch param {
	case driver.DeviceName:
		name = C.CL_DEVICE_NAME
	case driver.DeviceVendor:
		name = C.CL_DEVICE_VENDOR
	case driver.DeviceVersion:
		name = C.CL_DEVICE_VERSION
	default:
		return "", cl.InvalidValue
	}
	id := deviceHandle(d)

	var size C.size_t
	s := C.clGetDeviceInfo(id, name, 0, nil, &size)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	if size == 0 {
		return "", cl.Success
	}

	buf := make([]byte, int(size))
	s = C.clGetDeviceInfo(id, name, size, unsafe.Pointer(&buf[0]), nil)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	return trimNull(buf), cl.Success
}

func (*Driver) DeviceUint(d driver.DeviceID, param driver.DeviceParam) (uint64, cl.Status) {
	id := deviceHandle(d)
	switch param {
	case driver.DeviceMaxComputeUnits, driver.DeviceAddressBits:
		name := C.cl_device_info(C.CL_DEVICE_MAX_COMPUTE_UNITS)
		if param == driver.DeviceAddressBits {
			name = C.CL_DEVICE_ADDRESS_BITS
		}
		var v C.cl_uint
		s := C.clGetDeviceInfo(id, name, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		return uint64(v), status(s)
	case driver.DeviceMaxWorkGroupSize, driver.DeviceMaxGlobalVariableSize:
		name := C.cl_device_info(C.CL_DEVICE_MAX_WORK_GROUP_SIZE)
		if param == driver.DeviceMaxGlobalVariableSize {
			name = C.CL_DEVICE_MAX_GLOBAL_VARIABLE_SIZE
		}
		var v C.size_t
		s := C.clGetDeviceInfo(id, name, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
		return uint64(v), status(s)
	}

	var name C.cl_device_info
	switch param {
	case driver.DeviceTypeInfo:
		name = C.CL_DEVICE_TYPE
	case driver.DeviceGlobalMemSize:
		name = C.CL_DEVICE_GLOBAL_MEM_SIZE
	case driver.DeviceLocalMemSize:
		name = C.CL_DEVICE_LOCAL_MEM_SIZE
	case driver.DeviceMaxMemAllocSize:
		name = C.CL_DEVICE_MAX_MEM_ALLOC_SIZE
	default:
		return 0, cl.InvalidValue
	}
	var v C.cl_ulong
	s := C.clGetDeviceInfo(id, name, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return uint64(v), status(s)
}

func (*Driver) CreateContext(d driver.DeviceID) (driver.ContextID, cl.Status) {
	var s C.cl_int
	id := deviceHandle(d)
	ctx := C.clCreateContext(nil, 1, &id, nil, nil, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.ContextID(unsafe.Pointer(ctx)), cl.Success
}

func (*Driver) ReleaseContext(c driver.ContextID) cl.Status {
	return status(C.clReleaseContext(contextHandle(c)))
}

func (*Driver) CreateBuffer(c driver.ContextID, flags driver.MemFlags, size int) (driver.MemID, cl.Status) {
	var s C.cl_int
	mem := C.clCreateBuffer(contextHandle(c), C.cl_mem_flags(flags), C.size_t(size), nil, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.MemID(unsafe.Pointer(mem)), cl.Success
}

func (*Driver) ReleaseMemObject(m driver.MemID) cl.Status {
	return status(C.clReleaseMemObject(memHandle(m)))
}

func (*Driver) CreateProgramWithSource(c driver.ContextID, source string) (driver.ProgramID, cl.Status) {
	if source == "" {
		return 0, cl.InvalidValue
	}
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))
	length := C.size_t(len(source))

	var s C.cl_int
	prog := C.clCreateProgramWithSource(contextHandle(c), 1, &src, &length, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.ProgramID(unsafe.Pointer(prog)), cl.Success
}

func (*Driver) BuildProgram(p driver.ProgramID, d driver.DeviceID, options string) cl.Status {
	var opts *C.char
	if options != "" {
		opts = C.CString(options)
		defer C.free(unsafe.Pointer(opts))
	}
	id := deviceHandle(d)
	return status(C.clBuildProgram(programHandle(p), 1, &id, opts, nil, nil))
}

func (*Driver) ProgramBuildLog(p driver.ProgramID, d driver.DeviceID, limit int) (string, cl.Status) {
	prog, dev := programHandle(p), deviceHandle(d)

	var size C.size_t
	s := C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	if size == 0 {
		return "", cl.Success
	}

	buf := make([]byte, int(size))
	s = C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil)
	if s != C.CL_SUCCESS {
		return "", status(s)
	}
	if limit > 0 && len(buf) > limit {
		buf = buf[:limit]
	}
	return trimNull(buf), cl.Success
}

func (*Driver) ReleaseProgram(p driver.ProgramID) cl.Status {
	return status(C.clReleaseProgram(programHandle(p)))
}

func (*Driver) CreateKernel(p driver.ProgramID, name string) (driver.KernelID, cl.Status) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var s C.cl_int
	k := C.clCreateKernel(programHandle(p), cname, &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.KernelID(unsafe.Pointer(k)), cl.Success
}

func (*Driver) SetKernelArg(k driver.KernelID, index uint32, size int, value []byte) cl.Status {
	var ptr unsafe.Pointer
	if value != nil {
		if len(value) < size {
			return cl.InvalidArgSize
		}
		if len(value) > 0 {
			ptr = unsafe.Pointer(&value[0])
		}
	}
	return status(C.clSetKernelArg(kernelHandle(k), C.cl_uint(index), C.size_t(size), ptr))
}

func (*Driver) SetKernelArgMem(k driver.KernelID, index uint32, m driver.MemID) cl.Status {
	mem := memHandle(m)
	return status(C.clSetKernelArg(kernelHandle(k), C.cl_uint(index), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem)))
}

func (*Driver) KernelWorkGroupSize(k driver.KernelID, d driver.DeviceID) (uint64, cl.Status) {
	var v C.size_t
	s := C.clGetKernelWorkGroupInfo(kernelHandle(k), deviceHandle(d), C.CL_KERNEL_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return uint64(v), status(s)
}

func (*Driver) ReleaseKernel(k driver.KernelID) cl.Status {
	return status(C.clReleaseKernel(kernelHandle(k)))
}

func (*Driver) CreateCommandQueue(c driver.ContextID, d driver.DeviceID, props driver.QueueProperties) (driver.QueueID, cl.Status) {
	var s C.cl_int
	q := C.cltk_create_queue(contextHandle(c), deviceHandle(d), C.cl_command_queue_properties(props), &s)
	if s != C.CL_SUCCESS {
		return 0, status(s)
	}
	return driver.QueueID(unsafe.Pointer(q)), cl.Success
}

func (*Driver) EnqueueWriteBuffer(q driver.QueueID, m driver.MemID, offset int, src []byte) cl.Status {
	if len(src) == 0 {
		return cl.InvalidValue
	}
	return status(C.clEnqueueWriteBuffer(queueHandle(q), memHandle(m), C.CL_TRUE, C.size_t(offset), C.size_t(len(src)), unsafe.Pointer(&src[0]), 0, nil, nil))
}

func (*Driver) EnqueueReadBuffer(q driver.QueueID, m driver.MemID, offset int, dst []byte) cl.Status {
	if len(dst) == 0 {
		return cl.InvalidValue
	}
	return status(C.clEnqueueReadBuffer(queueHandle(q), memHandle(m), C.CL_TRUE, C.size_t(offset), C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil))
}

func (*Driver) EnqueueNDRangeKernel(q driver.QueueID, k driver.KernelID, offset, global, local []uint64) cl.Status {
	dims := len(global)
	if dims == 0 {
		return cl.InvalidWorkDimension
	}
	g := sizes(global)
	o := sizes(offset)
	l := sizes(local)

	var op, lp *C.size_t
	if len(o) > 0 {
		op = &o[0]
	}
	if len(l) > 0 {
		lp = &l[0]
	}
	return status(C.clEnqueueNDRangeKernel(queueHandle(q), kernelHandle(k), C.cl_uint(dims), op, &g[0], lp, 0, nil, nil))
}

func (*Driver) Finish(q driver.QueueID) cl.Status {
	return status(C.clFinish(queueHandle(q)))
}

func (*Driver) ReleaseCommandQueue(q driver.QueueID) cl.Status {
	return status(C.clReleaseCommandQueue(queueHandle(q)))
}

func sizes(v []uint64) []C.size_t {
	if len(v) == 0 {
		return nil
	}
	out := make([]C.size_t, len(v))
	for i, x := range v {
		out[i] = C.size_t(x)
	}
	return out
}

func trimNull(buf []byte) string {
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func platformHandle(p driver.PlatformID) C.cl_platform_id {
	return C.cl_platform_id(unsafe.Pointer(p))
}

func deviceHandle(d driver.DeviceID) C.cl_device_id {
	return C.cl_device_id(unsafe.Pointer(d))
}

func contextHandle(c driver.ContextID) C.cl_context {
	return C.cl_context(unsafe.Pointer(c))
}

func memHandle(m driver.MemID) C.cl_mem {
	return C.cl_mem(unsafe.Pointer(m))
}

func programHandle(p driver.ProgramID) C.cl_program {
	return C.cl_program(unsafe.Pointer(p))
}

func kernelHandle(k driver.KernelID) C.cl_kernel {
	return C.cl_kernel(unsafe.Pointer(k))
}

func queueHandle(q driver.QueueID) C.cl_command_queue {
	return C.cl_command_queue(unsafe.Pointer(q))
}
