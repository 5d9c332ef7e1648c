package hostsim

import (
	"encoding/binary"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

const incrementSource = `
__kernel void increment(__global int *data, const int by) {
    data[get_global_id(0)] += by;
}
`

func increment(item WorkItem, args *Args) {
	buf := args.Buffer(0)
	i := item.GlobalID[0]
	StoreInt32(buf, i, LoadInt32(buf, i)+args.Int32(1))
}

// fixture is a context, queue and built program on the default device.
type fixture struct {
	sim     *Driver
	device  driver.DeviceID
	ctx     driver.ContextID
	queue   driver.QueueID
	program driver.ProgramID
}

func setupFixture(t *testing.T, source string) *fixture {
	t.Helper()
	return setupFixtureOn(t, source, driver.DeviceTypeDefault)
}

// setupFixtureOn builds the fixture on the first device of the given type.
func setupFixtureOn(t *testing.T, source string, typ driver.DeviceType) *fixture {
	t.Helper()

	sim := New(DefaultTopology())
	sim.Register("increment", increment)

	platforms, s := sim.PlatformIDs()
	if s != cl.Success || len(platforms) != 1 {
		t.Fatalf("PlatformIDs = %v, %v", platforms, s)
	}
	devices, s := sim.DeviceIDs(platforms[0], typ)
	if s != cl.Success {
		t.Fatalf("DeviceIDs(%v) = %v", typ, s)
	}

	f := &fixture{sim: sim, device: devices[0]}
	if f.ctx, s = sim.CreateContext(f.device); s != cl.Success {
		t.Fatalf("CreateContext = %v", s)
	}
	if f.queue, s = sim.CreateCommandQueue(f.ctx, f.device, 0); s != cl.Success {
		t.Fatalf("CreateCommandQueue = %v", s)
	}
	if f.program, s = sim.CreateProgramWithSource(f.ctx, source); s != cl.Success {
		t.Fatalf("CreateProgramWithSource = %v", s)
	}
	if s = sim.BuildProgram(f.program, f.device, ""); s != cl.Success {
		log, _ := sim.ProgramBuildLog(f.program, f.device, 0)
		t.Fatalf("BuildProgram = %v\n%s", s, log)
	}
	return f
}

func (f *fixture) kernel(t *testing.T, name string) driver.KernelID {
	t.Helper()
	k, s := f.sim.CreateKernel(f.program, name)
	if s != cl.Success {
		t.Fatalf("CreateKernel(%q) = %v", name, s)
	}
	return k
}

func (f *fixture) buffer(t *testing.T, size int) driver.MemID {
	t.Helper()
	m, s := f.sim.CreateBuffer(f.ctx, driver.MemReadWrite, size)
	if s != cl.Success {
		t.Fatalf("CreateBuffer(%d) = %v", size, s)
	}
	return m
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func TestEnumeration(t *testing.T) {
	sim := New(DefaultTopology())
	platforms, s := sim.PlatformIDs()
	if s != cl.Success {
		t.Fatalf("PlatformIDs = %v", s)
	}

	name, _ := sim.PlatformInfo(platforms[0], driver.PlatformName)
	if name != "Host Simulator" {
		t.Errorf("platform name = %q", name)
	}

	all, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeAll)
	if len(all) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(all))
	}
	gpus, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeGPU)
	if len(gpus) != 1 || gpus[0] != all[1] {
		t.Errorf("GPU query = %v, want [%v]", gpus, all[1])
	}
	if _, s := sim.DeviceIDs(platforms[0], driver.DeviceTypeAccelerator); s != cl.DeviceNotFound {
		t.Errorf("accelerator query status = %v, want DeviceNotFound", s)
	}
	if _, s := sim.DeviceIDs(platforms[0], 1<<40); s != cl.InvalidDeviceType {
		t.Errorf("bogus type status = %v, want InvalidDeviceType", s)
	}
	if _, s := sim.DeviceIDs(0xdead, driver.DeviceTypeAll); s != cl.InvalidPlatform {
		t.Errorf("bogus platform status = %v, want InvalidPlatform", s)
	}

	kind, _ := sim.DeviceUint(all[0], driver.DeviceTypeInfo)
	if driver.DeviceType(kind) != driver.DeviceTypeCPU|driver.DeviceTypeDefault {
		t.Errorf("CPU type bits = %#x", kind)
	}
	units, _ := sim.DeviceUint(all[1], driver.DeviceMaxComputeUnits)
	if units != 16 {
		t.Errorf("GPU compute units = %d, want 16", units)
	}
}

func TestEmptyTopology(t *testing.T) {
	sim := New(Topology{})
	platforms, s := sim.PlatformIDs()
	if s != cl.Success || len(platforms) != 0 {
		t.Errorf("PlatformIDs = %v, %v; want empty success", platforms, s)
	}
}

func TestUnavailableDevice(t *testing.T) {
	topo := Topology{Platforms: []PlatformSpec{{
		Name:    "p",
		Devices: []DeviceSpec{{Name: "gone", Type: driver.DeviceTypeGPU, Unavailable: true}},
	}}}
	sim := New(topo)
	platforms, _ := sim.PlatformIDs()
	devices, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeAll)
	if _, s := sim.CreateContext(devices[0]); s != cl.DeviceNotAvailable {
		t.Errorf("CreateContext = %v, want DeviceNotAvailable", s)
	}
	if _, s := sim.CreateContext(0); s != cl.InvalidDevice {
		t.Errorf("CreateContext(0) = %v, want InvalidDevice", s)
	}
}

func TestCreateBufferChecks(t *testing.T) {
	f := setupFixture(t, incrementSource)
	maxAlloc, _ := f.sim.DeviceUint(f.device, driver.DeviceMaxMemAllocSize)

	tests := []struct {
		name  string
		ctx   driver.ContextID
		flags driver.MemFlags
		size  int
		want  cl.Status
	}{
		{"ok", f.ctx, driver.MemReadOnly, 16, cl.Success},
		{"default flags", f.ctx, 0, 16, cl.Success},
		{"zero size", f.ctx, driver.MemReadWrite, 0, cl.InvalidBufferSize},
		{"too large", f.ctx, driver.MemReadWrite, int(maxAlloc) + 1, cl.InvalidBufferSize},
		{"conflicting flags", f.ctx, driver.MemReadOnly | driver.MemWriteOnly, 16, cl.InvalidValue},
		{"bad context", 0xbeef, driver.MemReadWrite, 16, cl.InvalidContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := f.sim.CreateBuffer(tt.ctx, tt.flags, tt.size)
			if s != tt.want {
				t.Errorf("CreateBuffer = %v, want %v", s, tt.want)
			}
		})
	}
}

func TestBuildFailureLog(t *testing.T) {
	sim := New(DefaultTopology())
	platforms, _ := sim.PlatformIDs()
	devices, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeAll)
	ctx, _ := sim.CreateContext(devices[0])

	prog, _ := sim.CreateProgramWithSource(ctx, "__kernel void orphan(__global int *x) {}\n")
	if s := sim.BuildProgram(prog, devices[0], ""); s != cl.BuildProgramFailure {
		t.Fatalf("BuildProgram = %v, want BuildProgramFailure", s)
	}
	log, s := sim.ProgramBuildLog(prog, devices[0], 0)
	if s != cl.Success {
		t.Fatalf("ProgramBuildLog = %v", s)
	}
	if !strings.Contains(log, "no host implementation registered for kernel 'orphan'") {
		t.Errorf("unexpected log: %q", log)
	}

	short, _ := sim.ProgramBuildLog(prog, devices[0], 10)
	if len(short) != 10 {
		t.Errorf("truncated log length = %d, want 10", len(short))
	}

	if _, s := sim.CreateKernel(prog, "orphan"); s != cl.InvalidProgramExecutable {
		t.Errorf("CreateKernel on unbuilt program = %v, want InvalidProgramExecutable", s)
	}
	if s := sim.BuildProgram(prog, devices[1], ""); s != cl.InvalidDevice {
		t.Errorf("BuildProgram for foreign device = %v, want InvalidDevice", s)
	}
	if s := sim.BuildProgram(prog, devices[0], "fast"); s != cl.InvalidBuildOptions {
		t.Errorf("BuildProgram with bad options = %v, want InvalidBuildOptions", s)
	}
}

func TestValidOptions(t *testing.T) {
	tests := map[string]bool{
		"":                          true,
		"-cl-fast-relaxed-math":     true,
		"-D N=4 -I include -Werror": true,
		"-DWIDTH=8 -cl-std=CL2.0":   true,
		"fast":                      false,
		"-cl-mad-enable stray":      false,
		"-":                         false,
	}
	for opts, want := range tests {
		if got := validOptions(opts); got != want {
			t.Errorf("validOptions(%q) = %v, want %v", opts, got, want)
		}
	}
}

func TestCreateKernelUnknownName(t *testing.T) {
	f := setupFixture(t, incrementSource)
	if _, s := f.sim.CreateKernel(f.program, "decrement"); s != cl.InvalidKernelName {
		t.Errorf("CreateKernel = %v, want InvalidKernelName", s)
	}
	if got := f.sim.Live().Kernels; got != 0 {
		t.Errorf("live kernels = %d, want 0", got)
	}
}

func TestSetKernelArgChecks(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	buf := f.buffer(t, 16)

	handle := make([]byte, 8)
	binary.LittleEndian.PutUint64(handle, uint64(buf))

	tests := []struct {
		name  string
		index uint32
		size  int
		value []byte
		want  cl.Status
	}{
		{"buffer by handle", 0, 8, handle, cl.Success},
		{"scalar", 1, 4, int32Bytes(3), cl.Success},
		{"index past end", 2, 4, int32Bytes(3), cl.InvalidArgIndex},
		{"scalar size mismatch", 1, 8, make([]byte, 8), cl.InvalidArgSize},
		{"null scalar", 1, 4, nil, cl.InvalidArgValue},
		{"null buffer", 0, 8, nil, cl.InvalidArgValue},
		{"dangling handle", 0, 8, make([]byte, 8), cl.InvalidMemObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := f.sim.SetKernelArg(k, tt.index, tt.size, tt.value); s != tt.want {
				t.Errorf("SetKernelArg = %v, want %v", s, tt.want)
			}
		})
	}

	if s := f.sim.SetKernelArg(0x1, 0, 4, int32Bytes(1)); s != cl.InvalidKernel {
		t.Errorf("SetKernelArg on bad kernel = %v, want InvalidKernel", s)
	}
}

func TestLaunchRequiresAllArgs(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	buf := f.buffer(t, 16)

	if s := f.sim.SetKernelArgMem(k, 0, buf); s != cl.Success {
		t.Fatalf("SetKernelArgMem = %v", s)
	}
	if s := f.sim.EnqueueNDRangeKernel(f.queue, k, nil, []uint64{4}, nil); s != cl.InvalidKernelArgs {
		t.Errorf("launch with unset arg = %v, want InvalidKernelArgs", s)
	}
}

func TestLaunchSequentialOrdering(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	const n = 1000
	buf := f.buffer(t, n*4)

	if s := f.sim.EnqueueWriteBuffer(f.queue, buf, 0, make([]byte, n*4)); s != cl.Success {
		t.Fatalf("EnqueueWriteBuffer = %v", s)
	}
	f.sim.SetKernelArgMem(k, 0, buf)

	for _, by := range []int32{2, 3} {
		f.sim.SetKernelArg(k, 1, 4, int32Bytes(by))
		if s := f.sim.EnqueueNDRangeKernel(f.queue, k, nil, []uint64{n}, nil); s != cl.Success {
			t.Fatalf("EnqueueNDRangeKernel = %v", s)
		}
	}
	if s := f.sim.Finish(f.queue); s != cl.Success {
		t.Fatalf("Finish = %v", s)
	}

	out := make([]byte, n*4)
	if s := f.sim.EnqueueReadBuffer(f.queue, buf, 0, out); s != cl.Success {
		t.Fatalf("EnqueueReadBuffer = %v", s)
	}
	for i := uint64(0); i < n; i++ {
		if v := LoadInt32(out, i); v != 5 {
			t.Fatalf("element %d = %d, want 5", i, v)
		}
	}
}

func TestLaunchGeometryChecks(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	buf := f.buffer(t, 4096)
	f.sim.SetKernelArgMem(k, 0, buf)
	f.sim.SetKernelArg(k, 1, 4, int32Bytes(1))

	tests := []struct {
		name   string
		offset []uint64
		global []uint64
		local  []uint64
		want   cl.Status
	}{
		{"no dims", nil, nil, nil, cl.InvalidWorkDimension},
		{"four dims", nil, []uint64{1, 1, 1, 1}, nil, cl.InvalidWorkDimension},
		{"zero global", nil, []uint64{0}, nil, cl.InvalidGlobalWorkSize},
		{"offset overflow", []uint64{^uint64(0)}, []uint64{2}, nil, cl.InvalidGlobalOffset},
		{"global product overflow", nil, []uint64{1 << 32, 1 << 32}, nil, cl.InvalidGlobalWorkSize},
		{"global product past size_t", nil, []uint64{1 << 40, 1 << 20, 1 << 8}, nil, cl.InvalidGlobalWorkSize},
		{"local not dividing", nil, []uint64{10}, []uint64{3}, cl.InvalidWorkGroupSize},
		{"local over max", nil, []uint64{1024}, []uint64{512}, cl.InvalidWorkGroupSize},
		{"explicit local", nil, []uint64{256}, []uint64{64}, cl.Success},
		{"with offset", []uint64{8}, []uint64{8}, nil, cl.Success},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := f.sim.EnqueueNDRangeKernel(f.queue, k, tt.offset, tt.global, tt.local); s != tt.want {
				t.Errorf("EnqueueNDRangeKernel = %v, want %v", s, tt.want)
			}
		})
	}
}

func TestLaunchRecoversKernelPanic(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	buf := f.buffer(t, 16)
	f.sim.SetKernelArgMem(k, 0, buf)
	f.sim.SetKernelArg(k, 1, 4, int32Bytes(1))

	// 16 bytes hold four ints; the fifth work-item indexes past the end.
	if s := f.sim.EnqueueNDRangeKernel(f.queue, k, nil, []uint64{5}, nil); s != cl.OutOfResources {
		t.Errorf("EnqueueNDRangeKernel = %v, want OutOfResources", s)
	}
}

func TestLaunchAddressBits(t *testing.T) {
	f := setupFixtureOn(t, incrementSource, driver.DeviceTypeGPU)
	if bits, s := f.sim.DeviceUint(f.device, driver.DeviceAddressBits); s != cl.Success || bits != 32 {
		t.Fatalf("DeviceUint(AddressBits) = %d, %v, want 32", bits, s)
	}

	k := f.kernel(t, "increment")
	f.sim.SetKernelArgMem(k, 0, f.buffer(t, 16))
	f.sim.SetKernelArg(k, 1, 4, int32Bytes(1))

	tests := []struct {
		name   string
		global []uint64
	}{
		{"one dim past 32 bits", []uint64{1 << 40}},
		{"product past 32 bits", []uint64{1 << 16, 1 << 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := f.sim.EnqueueNDRangeKernel(f.queue, k, nil, tt.global, nil); s != cl.InvalidGlobalWorkSize {
				t.Errorf("EnqueueNDRangeKernel = %v, want InvalidGlobalWorkSize", s)
			}
		})
	}
}

func TestLaunchStopsAfterFailedGroup(t *testing.T) {
	f := setupFixture(t, incrementSource)
	var calls atomic.Int64
	f.sim.Register("increment", func(item WorkItem, args *Args) {
		calls.Add(1)
		panic("out of range")
	})
	k := f.kernel(t, "increment")
	f.sim.SetKernelArgMem(k, 0, f.buffer(t, 16))
	f.sim.SetKernelArg(k, 1, 4, int32Bytes(1))

	// 1<<30 work-items in groups of 256 is 1<<22 groups.
	if s := f.sim.EnqueueNDRangeKernel(f.queue, k, nil, []uint64{1 << 30}, nil); s != cl.OutOfResources {
		t.Fatalf("EnqueueNDRangeKernel = %v, want OutOfResources", s)
	}
	if n := calls.Load(); n == 0 || n > 1024 {
		t.Errorf("Kernel ran %d times after the first failure, want at most 1024", n)
	}
}

func TestTransferChecks(t *testing.T) {
	f := setupFixture(t, incrementSource)
	buf := f.buffer(t, 8)

	if s := f.sim.EnqueueWriteBuffer(f.queue, buf, 4, make([]byte, 8)); s != cl.InvalidValue {
		t.Errorf("out of bounds write = %v, want InvalidValue", s)
	}
	if s := f.sim.EnqueueReadBuffer(f.queue, buf, 0, nil); s != cl.InvalidValue {
		t.Errorf("empty read = %v, want InvalidValue", s)
	}
	if s := f.sim.EnqueueReadBuffer(0x2, buf, 0, make([]byte, 4)); s != cl.InvalidCommandQueue {
		t.Errorf("bad queue = %v, want InvalidCommandQueue", s)
	}
	if s := f.sim.EnqueueWriteBuffer(f.queue, 0x2, 0, make([]byte, 4)); s != cl.InvalidMemObject {
		t.Errorf("bad buffer = %v, want InvalidMemObject", s)
	}
}

func TestQueueProperties(t *testing.T) {
	f := setupFixture(t, incrementSource)
	if _, s := f.sim.CreateCommandQueue(f.ctx, f.device, driver.QueueProfiling); s != cl.Success {
		t.Errorf("profiling queue = %v, want Success", s)
	}
	if _, s := f.sim.CreateCommandQueue(f.ctx, f.device, driver.QueueOutOfOrderExec); s != cl.InvalidQueueProperties {
		t.Errorf("out-of-order queue = %v, want InvalidQueueProperties", s)
	}
	if _, s := f.sim.CreateCommandQueue(f.ctx, f.device, 1<<7); s != cl.InvalidValue {
		t.Errorf("unknown property = %v, want InvalidValue", s)
	}
}

func TestInjectFaultAndLive(t *testing.T) {
	f := setupFixture(t, incrementSource)
	k := f.kernel(t, "increment")
	buf := f.buffer(t, 4)

	want := Counts{Contexts: 1, Buffers: 1, Programs: 1, Kernels: 1, Queues: 1}
	if diff := cmp.Diff(want, f.sim.Live()); diff != "" {
		t.Errorf("Live mismatch (-want +got):\n%s", diff)
	}

	f.sim.InjectFault("ReleaseKernel", cl.OutOfHostMemory)
	if s := f.sim.ReleaseKernel(k); s != cl.OutOfHostMemory {
		t.Errorf("faulted ReleaseKernel = %v", s)
	}
	// the fault fires once
	if s := f.sim.ReleaseKernel(k); s != cl.Success {
		t.Errorf("second ReleaseKernel = %v", s)
	}

	f.sim.ReleaseMemObject(buf)
	f.sim.ReleaseProgram(f.program)
	f.sim.ReleaseCommandQueue(f.queue)
	f.sim.ReleaseContext(f.ctx)
	if diff := cmp.Diff(Counts{}, f.sim.Live()); diff != "" {
		t.Errorf("Live after release mismatch (-want +got):\n%s", diff)
	}
}

func TestPickLocalSize(t *testing.T) {
	tests := []struct {
		global []uint64
		limit  uint64
		want   []uint64
	}{
		{[]uint64{100}, 256, []uint64{100}},
		{[]uint64{1000}, 256, []uint64{250}},
		{[]uint64{1031}, 256, []uint64{1}},
		{[]uint64{64, 64}, 256, []uint64{64, 4}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, pickLocalSize(tt.global, tt.limit)); diff != "" {
			t.Errorf("pickLocalSize(%v, %d) mismatch (-want +got):\n%s", tt.global, tt.limit, diff)
		}
	}
}

func TestWorkItemIDs(t *testing.T) {
	sim := New(DefaultTopology())
	var seen [12]bool
	sim.Register("ids", func(item WorkItem, args *Args) {
		out := args.Buffer(0)
		lin := item.GlobalLinearID()
		StoreUint32(out, lin, uint32(item.GlobalID[0]*100+item.GlobalID[1]))
		seen[lin] = true
	})

	platforms, _ := sim.PlatformIDs()
	devices, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeDefault)
	ctx, _ := sim.CreateContext(devices[0])
	q, _ := sim.CreateCommandQueue(ctx, devices[0], 0)
	prog, _ := sim.CreateProgramWithSource(ctx, "__kernel void ids(__global uint *out) {}")
	if s := sim.BuildProgram(prog, devices[0], ""); s != cl.Success {
		t.Fatalf("BuildProgram = %v", s)
	}
	k, _ := sim.CreateKernel(prog, "ids")
	buf, _ := sim.CreateBuffer(ctx, driver.MemWriteOnly, 12*4)
	sim.SetKernelArgMem(k, 0, buf)

	if s := sim.EnqueueNDRangeKernel(q, k, nil, []uint64{4, 3}, []uint64{2, 1}); s != cl.Success {
		t.Fatalf("EnqueueNDRangeKernel = %v", s)
	}
	out := make([]byte, 12*4)
	sim.EnqueueReadBuffer(q, buf, 0, out)

	for y := uint64(0); y < 3; y++ {
		for x := uint64(0); x < 4; x++ {
			lin := y*4 + x
			if got := LoadUint32(out, lin); got != uint32(x*100+y) {
				t.Errorf("item (%d,%d) = %d", x, y, got)
			}
			if !seen[lin] {
				t.Errorf("item (%d,%d) never ran", x, y)
			}
		}
	}
}
