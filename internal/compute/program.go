package compute

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	"github.com/x448/float16"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// DefaultBuildLogLimit bounds the compiler log attached to build errors.
const DefaultBuildLogLimit = 4096

type programConfig struct {
	buildOptions  string
	buildLogLimit int
}

// ProgramOption configures NewProgram.
type ProgramOption func(*programConfig)

// WithBuildOptions passes compiler options such as "-cl-fast-relaxed-math".
func WithBuildOptions(options string) ProgramOption {
	return func(c *programConfig) { c.buildOptions = options }
}

// WithBuildLogLimit bounds the captured build log to n bytes.
func WithBuildLogLimit(n int) ProgramOption {
	return func(c *programConfig) {
		if n > 0 {
			c.buildLogLimit = n
		}
	}
}

// Program is kernel source compiled for one device together with one
// resolved entry point.
type Program struct {
	drv      driver.Driver
	ctx      *Context
	device   Device
	entry    string
	program  driver.ProgramID
	kernel   driver.KernelID
	released bool
}

// NewProgram compiles source in ctx, builds it for dev and resolves
// entryPoint. A failing build returns a *cl.BuildError carrying the
// compiler log. Nothing is leaked when any phase fails.
func NewProgram(source, entryPoint string, ctx *Context, dev *Device, opts ...ProgramOption) (*Program, error) {
	cfg := programConfig{buildLogLimit: DefaultBuildLogLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !ctx.usable() {
		return nil, cl.New("create program", cl.PhaseProgramCreate, cl.InvalidContext)
	}
	if dev == nil {
		return nil, cl.New("build program", cl.PhaseProgramBuild, cl.InvalidValue)
	}
	drv := ctx.drv

	pid, s := drv.CreateProgramWithSource(ctx.id, source)
	if !s.OK() {
		return nil, cl.New("create program", cl.PhaseProgramCreate, s)
	}

	if s := drv.BuildProgram(pid, dev.ID, cfg.buildOptions); !s.OK() {
		err := &cl.BuildError{Err: cl.New("build program", cl.PhaseProgramBuild, s)}
		if log, ls := drv.ProgramBuildLog(pid, dev.ID, cfg.buildLogLimit); ls.OK() {
			err.Log = log
		}
		slog.Error("There were problems while building the kernel", "entry", entryPoint, "device", dev.Name, "log", strings.TrimSpace(err.Log))
		releaseProgram(drv, pid)
		return nil, err
	}

	kid, s := drv.CreateKernel(pid, entryPoint)
	if !s.OK() {
		releaseProgram(drv, pid)
		return nil, cl.New(fmt.Sprintf("create kernel %q", entryPoint), cl.PhaseKernelCreate, s)
	}

	slog.Debug("Program built", "entry", entryPoint, "device", dev.Name)
	return &Program{drv: drv, ctx: ctx, device: *dev, entry: entryPoint, program: pid, kernel: kid}, nil
}

func releaseProgram(drv driver.Driver, id driver.ProgramID) {
	if s := drv.ReleaseProgram(id); !s.OK() {
		slog.Warn("Failed to release program", "err", cl.New("release program", cl.PhaseProgramRelease, s))
	}
}

// ID returns the raw program handle.
func (p *Program) ID() driver.ProgramID { return p.program }

// KernelID returns the raw kernel handle.
func (p *Program) KernelID() driver.KernelID { return p.kernel }

// EntryPoint is the kernel name the program resolved.
func (p *Program) EntryPoint() string { return p.entry }

// SetArg binds size bytes of value to argument index. A nil value passes
// NULL, which is only valid for __local parameters.
func (p *Program) SetArg(index uint32, size int, value []byte) error {
	if !p.usable() {
		return argError(index, size, cl.InvalidKernel)
	}
	if s := p.drv.SetKernelArg(p.kernel, index, size, value); !s.OK() {
		return argError(index, size, s)
	}
	return nil
}

// SetBufferArg binds buf to argument index.
func (p *Program) SetBufferArg(index uint32, buf *Buffer) error {
	if !p.usable() {
		return argError(index, 0, cl.InvalidKernel)
	}
	if !buf.usable() {
		return argError(index, 0, cl.InvalidMemObject)
	}
	if s := p.drv.SetKernelArgMem(p.kernel, index, buf.id); !s.OK() {
		return argError(index, 0, s)
	}
	return nil
}

// SetLocalArg reserves size bytes of local memory for a __local parameter.
func (p *Program) SetLocalArg(index uint32, size int) error {
	return p.SetArg(index, size, nil)
}

// SetScalarArg binds a fixed-size Go scalar, encoded little-endian. Accepted
// types are the sized integers, float32, float64 and float16.Float16.
func (p *Program) SetScalarArg(index uint32, v any) error {
	data, err := encodeScalar(v)
	if err != nil {
		return fmt.Errorf("set argument %d: %w", index, err)
	}
	return p.SetArg(index, len(data), data)
}

func encodeScalar(v any) ([]byte, error) {
	switch v.(type) {
	case int8, uint8, int16, uint16, int32, uint32, int64, uint64, float32, float64, float16.Float16:
		return binary.Append(nil, binary.LittleEndian, v)
	}
	return nil, fmt.Errorf("unsupported scalar type %T", v)
}

func argError(index uint32, size int, s cl.Status) error {
	op := fmt.Sprintf("set argument %d", index)
	if s == cl.InvalidArgSize {
		op = fmt.Sprintf("set argument %d (%d bytes)", index, size)
	}
	return cl.New(op, cl.PhaseSetArg, s)
}

// MaxWorkGroupSize is the largest work-group this kernel can run with on
// its device.
func (p *Program) MaxWorkGroupSize() (uint64, error) {
	if !p.usable() {
		return 0, cl.New("query work-group size", cl.PhaseWorkGroupQuery, cl.InvalidKernel)
	}
	v, s := p.drv.KernelWorkGroupSize(p.kernel, p.device.ID)
	if !s.OK() {
		return 0, cl.New("query work-group size", cl.PhaseWorkGroupQuery, s)
	}
	return v, nil
}

func (p *Program) deviceUint(what string, param driver.DeviceParam) (uint64, error) {
	if !p.usable() {
		return 0, cl.New("query "+what, cl.PhaseDeviceQuery, cl.InvalidKernel)
	}
	v, s := p.drv.DeviceUint(p.device.ID, param)
	if !s.OK() {
		return 0, cl.New("query "+what, cl.PhaseDeviceQuery, s)
	}
	return v, nil
}

// DeviceGlobalMemSize is the device global memory in bytes.
func (p *Program) DeviceGlobalMemSize() (uint64, error) {
	return p.deviceUint("global memory size", driver.DeviceGlobalMemSize)
}

// DeviceMaxGlobalVariableSize is the largest program-scope variable in bytes.
func (p *Program) DeviceMaxGlobalVariableSize() (uint64, error) {
	return p.deviceUint("max global variable size", driver.DeviceMaxGlobalVariableSize)
}

// DeviceLocalMemSize is the device local memory in bytes.
func (p *Program) DeviceLocalMemSize() (uint64, error) {
	return p.deviceUint("local memory size", driver.DeviceLocalMemSize)
}

// MemoryInfo summarizes the device memory limits.
func (p *Program) MemoryInfo() (string, error) {
	global, err := p.DeviceGlobalMemSize()
	if err != nil {
		return "", err
	}
	variable, err := p.DeviceMaxGlobalVariableSize()
	if err != nil {
		return "", err
	}
	local, err := p.DeviceLocalMemSize()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Device memory info:\n"+
		"  Global memory size [bytes]: %d\n"+
		"  Max supported global variable size [bytes]: %d\n"+
		"  Local memory size [bytes]: %d\n", global, variable, local), nil
}

// Execute launches numThreads work-items in one dimension on q and waits
// for completion. The runtime chooses the work-group size.
func (p *Program) Execute(q *CommandQueue, numThreads uint64) error {
	return q.Execute(p, numThreads)
}

// Release releases the kernel, then the program. Failures are logged.
func (p *Program) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true
	if s := p.drv.ReleaseKernel(p.kernel); !s.OK() {
		slog.Warn("Failed to release kernel", "entry", p.entry, "err", cl.New("release kernel", cl.PhaseKernelRelease, s))
	}
	releaseProgram(p.drv, p.program)
}

func (p *Program) usable() bool {
	return p != nil && !p.released
}
