// Package hostsim implements driver.Driver entirely in Go. Platforms and
// devices come from a Topology, kernels are compiled by scanning their
// declarations and executed by Go functions registered under the kernel
// name. Every call enforces the same status taxonomy a conformant OpenCL
// runtime reports, which makes the package the backbone of the test suite
// and a usable fallback on machines without an ICD.
package hostsim

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
)

// Name is the driver name reported by Driver.Name.
const Name = "hostsim"

// Driver is the simulated runtime. It is safe for concurrent use.
type Driver struct {
	mu sync.Mutex

	platforms []*platform
	devices   map[driver.DeviceID]*device
	contexts  map[driver.ContextID]*clContext
	buffers   map[driver.MemID]*buffer
	programs  map[driver.ProgramID]*program
	kernels   map[driver.KernelID]*kernel
	queues    map[driver.QueueID]*queue

	impls  map[string]KernelFunc
	faults map[string]cl.Status
	next   uintptr
}

type platform struct {
	id      driver.PlatformID
	spec    PlatformSpec
	devices []*device
}

type device struct {
	id        driver.DeviceID
	platform  *platform
	spec      DeviceSpec
	allocated uint64
}

type clContext struct {
	id     driver.ContextID
	device *device
}

type buffer struct {
	id    driver.MemID
	ctx   *clContext
	flags driver.MemFlags
	data  []byte
}

type program struct {
	id     driver.ProgramID
	ctx    *clContext
	source string
	built  bool
	log    string
	decls  map[string]kernelDecl
}

type kernel struct {
	id   driver.KernelID
	prog *program
	decl kernelDecl
	fn   KernelFunc
	args []boundArg
}

type boundArg struct {
	set   bool
	data  []byte
	mem   *buffer
	local int
}

type queue struct {
	id     driver.QueueID
	ctx    *clContext
	device *device
	props  driver.QueueProperties
}

// Counts is the number of live objects per kind.
type Counts struct {
	Contexts int
	Buffers  int
	Programs int
	Kernels  int
	Queues   int
}

// New creates a simulator exposing topo. Device limits left at zero take
// the defaults for their type.
func New(topo Topology) *Driver {
	d := &Driver{
		devices:  make(map[driver.DeviceID]*device),
		contexts: make(map[driver.ContextID]*clContext),
		buffers:  make(map[driver.MemID]*buffer),
		programs: make(map[driver.ProgramID]*program),
		kernels:  make(map[driver.KernelID]*kernel),
		queues:   make(map[driver.QueueID]*queue),
		impls:    make(map[string]KernelFunc),
		faults:   make(map[string]cl.Status),
		next:     0x1000,
	}
	for _, ps := range topo.Platforms {
		p := &platform{id: driver.PlatformID(d.handle()), spec: ps}
		for _, ds := range ps.Devices {
			dev := &device{id: driver.DeviceID(d.handle()), platform: p, spec: ds.withDefaults(ps)}
			p.devices = append(p.devices, dev)
			d.devices[dev.id] = dev
		}
		d.platforms = append(d.platforms, p)
	}
	return d
}

func (d *Driver) handle() uintptr {
	d.next += 0x10
	return d.next
}

// Register binds fn as the implementation of every kernel declared with name.
func (d *Driver) Register(name string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.impls[name] = fn
}

// InjectFault makes the next call to the named Driver method fail with status.
func (d *Driver) InjectFault(call string, status cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[call] = status
}

// Live reports how many objects of each kind have not been released.
func (d *Driver) Live() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counts{
		Contexts: len(d.contexts),
		Buffers:  len(d.buffers),
		Programs: len(d.programs),
		Kernels:  len(d.kernels),
		Queues:   len(d.queues),
	}
}

func (d *Driver) fault(call string) cl.Status {
	if s, ok := d.faults[call]; ok {
		delete(d.faults, call)
		return s
	}
	return cl.Success
}

func (d *Driver) Name() string { return Name }

func (d *Driver) PlatformIDs() ([]driver.PlatformID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("PlatformIDs"); !s.OK() {
		return nil, s
	}
	ids := make([]driver.PlatformID, len(d.platforms))
	for i, p := range d.platforms {
		ids[i] = p.id
	}
	return ids, cl.Success
}

func (d *Driver) findPlatform(id driver.PlatformID) *platform {
	for _, p := range d.platforms {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (d *Driver) PlatformInfo(id driver.PlatformID, param driver.PlatformParam) (string, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("PlatformInfo"); !s.OK() {
		return "", s
	}
	p := d.findPlatform(id)
	if p == nil {
		return "", cl.InvalidPlatform
	}
	switch param {
	case driver.PlatformName:
		return p.spec.Name, cl.Success
	case driver.PlatformVendor:
		return p.spec.Vendor, cl.Success
	case driver.PlatformVersion:
		return p.spec.Version, cl.Success
	}
	return "", cl.InvalidValue
}

func (d *Driver) DeviceIDs(id driver.PlatformID, kind driver.DeviceType) ([]driver.DeviceID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("DeviceIDs"); !s.OK() {
		return nil, s
	}
	p := d.findPlatform(id)
	if p == nil {
		return nil, cl.InvalidPlatform
	}
	known := driver.DeviceTypeDefault | driver.DeviceTypeCPU | driver.DeviceTypeGPU | driver.DeviceTypeAccelerator
	if kind == 0 || (kind != driver.DeviceTypeAll && kind&^known != 0) {
		return nil, cl.InvalidDeviceType
	}

	var ids []driver.DeviceID
	for _, dev := range p.devices {
		switch {
		case kind == driver.DeviceTypeAll:
		case kind&driver.DeviceTypeDefault != 0 && dev.spec.Default:
		case kind&dev.spec.Type != 0:
		default:
			continue
		}
		ids = append(ids, dev.id)
	}
	if len(ids) == 0 {
		return nil, cl.DeviceNotFound
	}
	return ids, cl.Success
}

func (d *Driver) DeviceString(id driver.DeviceID, param driver.DeviceParam) (string, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("DeviceString"); !s.OK() {
		return "", s
	}
	dev, ok := d.devices[id]
	if !ok {
		return "", cl.InvalidDevice
	}
	switch param {
	case driver.DeviceName:
		return dev.spec.Name, cl.Success
	case driver.DeviceVendor:
		return dev.spec.Vendor, cl.Success
	case driver.DeviceVersion:
		return dev.spec.Version, cl.Success
	}
	return "", cl.InvalidValue
}

func (d *Driver) DeviceUint(id driver.DeviceID, param driver.DeviceParam) (uint64, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("DeviceUint"); !s.OK() {
		return 0, s
	}
	dev, ok := d.devices[id]
	if !ok {
		return 0, cl.InvalidDevice
	}
	spec := dev.spec
	switch param {
	case driver.DeviceTypeInfo:
		t := spec.Type
		if spec.Default {
			t |= driver.DeviceTypeDefault
		}
		return uint64(t), cl.Success
	case driver.DeviceMaxComputeUnits:
		return uint64(spec.ComputeUnits), cl.Success
	case driver.DeviceGlobalMemSize:
		return spec.GlobalMemSize, cl.Success
	case driver.DeviceLocalMemSize:
		return spec.LocalMemSize, cl.Success
	case driver.DeviceMaxGlobalVariableSize:
		return spec.MaxGlobalVariableSize, cl.Success
	case driver.DeviceMaxMemAllocSize:
		return spec.MaxMemAllocSize, cl.Success
	case driver.DeviceMaxWorkGroupSize:
		return spec.MaxWorkGroupSize, cl.Success
	case driver.DeviceAddressBits:
		return uint64(spec.AddressBits), cl.Success
	}
	return 0, cl.InvalidValue
}

func (d *Driver) CreateContext(id driver.DeviceID) (driver.ContextID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("CreateContext"); !s.OK() {
		return 0, s
	}
	dev, ok := d.devices[id]
	if !ok {
		return 0, cl.InvalidDevice
	}
	if dev.spec.Unavailable {
		return 0, cl.DeviceNotAvailable
	}
	c := &clContext{id: driver.ContextID(d.handle()), device: dev}
	d.contexts[c.id] = c
	return c.id, cl.Success
}

func (d *Driver) ReleaseContext(id driver.ContextID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ReleaseContext"); !s.OK() {
		return s
	}
	if _, ok := d.contexts[id]; !ok {
		return cl.InvalidContext
	}
	delete(d.contexts, id)
	return cl.Success
}

func (d *Driver) CreateBuffer(id driver.ContextID, flags driver.MemFlags, size int) (driver.MemID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("CreateBuffer"); !s.OK() {
		return 0, s
	}
	c, ok := d.contexts[id]
	if !ok {
		return 0, cl.InvalidContext
	}
	switch flags {
	case 0:
		flags = driver.MemReadWrite
	case driver.MemReadWrite, driver.MemWriteOnly, driver.MemReadOnly:
	default:
		return 0, cl.InvalidValue
	}
	dev := c.device
	if size <= 0 || uint64(size) > dev.spec.MaxMemAllocSize {
		return 0, cl.InvalidBufferSize
	}
	if dev.allocated+uint64(size) > dev.spec.GlobalMemSize {
		return 0, cl.MemObjectAllocationFailure
	}
	dev.allocated += uint64(size)

	b := &buffer{id: driver.MemID(d.handle()), ctx: c, flags: flags, data: make([]byte, size)}
	d.buffers[b.id] = b
	return b.id, cl.Success
}

func (d *Driver) ReleaseMemObject(id driver.MemID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ReleaseMemObject"); !s.OK() {
		return s
	}
	b, ok := d.buffers[id]
	if !ok {
		return cl.InvalidMemObject
	}
	b.ctx.device.allocated -= uint64(len(b.data))
	delete(d.buffers, id)
	return cl.Success
}

func (d *Driver) CreateProgramWithSource(id driver.ContextID, source string) (driver.ProgramID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("CreateProgramWithSource"); !s.OK() {
		return 0, s
	}
	c, ok := d.contexts[id]
	if !ok {
		return 0, cl.InvalidContext
	}
	if source == "" {
		return 0, cl.InvalidValue
	}
	p := &program{id: driver.ProgramID(d.handle()), ctx: c, source: source}
	d.programs[p.id] = p
	return p.id, cl.Success
}

func (d *Driver) BuildProgram(id driver.ProgramID, devID driver.DeviceID, options string) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("BuildProgram"); !s.OK() {
		return s
	}
	p, ok := d.programs[id]
	if !ok {
		return cl.InvalidProgram
	}
	dev, ok := d.devices[devID]
	if !ok || dev != p.ctx.device {
		return cl.InvalidDevice
	}
	if !validOptions(options) {
		return cl.InvalidBuildOptions
	}

	decls, diags := compile(p.source)
	for _, decl := range decls {
		if _, ok := d.impls[decl.name]; !ok {
			diags = append(diags, diagnostic{line: 1, col: 1, msg: fmt.Sprintf("no host implementation registered for kernel '%s'", decl.name)})
		}
	}
	if len(diags) > 0 {
		p.built = false
		p.log = formatLog(diags)
		slog.Debug("Simulated build failed", "program", uintptr(id), "errors", len(diags))
		return cl.BuildProgramFailure
	}

	p.decls = make(map[string]kernelDecl, len(decls))
	for _, decl := range decls {
		p.decls[decl.name] = decl
	}
	p.built = true
	p.log = ""
	slog.Debug("Simulated build succeeded", "program", uintptr(id), "kernels", len(decls))
	return cl.Success
}

// validOptions accepts flag-style options. -D and -I may take their value
// as the following token.
func validOptions(options string) bool {
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if !strings.HasPrefix(f, "-") || f == "-" {
			return false
		}
		if (f == "-D" || f == "-I") && i+1 < len(fields) {
			i++
		}
	}
	return true
}

func (d *Driver) ProgramBuildLog(id driver.ProgramID, devID driver.DeviceID, limit int) (string, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ProgramBuildLog"); !s.OK() {
		return "", s
	}
	p, ok := d.programs[id]
	if !ok {
		return "", cl.InvalidProgram
	}
	if _, ok := d.devices[devID]; !ok {
		return "", cl.InvalidDevice
	}
	log := p.log
	if limit > 0 && len(log) > limit {
		log = log[:limit]
	}
	return log, cl.Success
}

func (d *Driver) ReleaseProgram(id driver.ProgramID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ReleaseProgram"); !s.OK() {
		return s
	}
	if _, ok := d.programs[id]; !ok {
		return cl.InvalidProgram
	}
	delete(d.programs, id)
	return cl.Success
}

func (d *Driver) CreateKernel(id driver.ProgramID, name string) (driver.KernelID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("CreateKernel"); !s.OK() {
		return 0, s
	}
	p, ok := d.programs[id]
	if !ok {
		return 0, cl.InvalidProgram
	}
	if !p.built {
		return 0, cl.InvalidProgramExecutable
	}
	if name == "" {
		return 0, cl.InvalidValue
	}
	decl, ok := p.decls[name]
	if !ok {
		return 0, cl.InvalidKernelName
	}
	k := &kernel{
		id:   driver.KernelID(d.handle()),
		prog: p,
		decl: decl,
		fn:   d.impls[name],
		args: make([]boundArg, len(decl.params)),
	}
	d.kernels[k.id] = k
	return k.id, cl.Success
}

func (d *Driver) SetKernelArg(id driver.KernelID, index uint32, size int, value []byte) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("SetKernelArg"); !s.OK() {
		return s
	}
	k, ok := d.kernels[id]
	if !ok {
		return cl.InvalidKernel
	}
	if int(index) >= len(k.decl.params) {
		return cl.InvalidArgIndex
	}
	param := k.decl.params[index]

	switch param.Kind {
	case ParamGlobal:
		if value == nil {
			return cl.InvalidArgValue
		}
		if size != param.Size || len(value) < size {
			return cl.InvalidArgSize
		}
		return d.bindMem(k, index, driver.MemID(binary.LittleEndian.Uint64(value)))
	case ParamLocal:
		if value != nil {
			return cl.InvalidArgValue
		}
		if size <= 0 {
			return cl.InvalidArgSize
		}
		k.args[index] = boundArg{set: true, local: size}
	default:
		if value == nil {
			return cl.InvalidArgValue
		}
		if size != param.Size || len(value) < size {
			return cl.InvalidArgSize
		}
		k.args[index] = boundArg{set: true, data: append([]byte(nil), value[:size]...)}
	}
	return cl.Success
}

func (d *Driver) SetKernelArgMem(id driver.KernelID, index uint32, m driver.MemID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("SetKernelArgMem"); !s.OK() {
		return s
	}
	k, ok := d.kernels[id]
	if !ok {
		return cl.InvalidKernel
	}
	if int(index) >= len(k.decl.params) {
		return cl.InvalidArgIndex
	}
	if k.decl.params[index].Kind != ParamGlobal {
		return cl.InvalidArgSize
	}
	return d.bindMem(k, index, m)
}

func (d *Driver) bindMem(k *kernel, index uint32, m driver.MemID) cl.Status {
	b, ok := d.buffers[m]
	if !ok || b.ctx != k.prog.ctx {
		return cl.InvalidMemObject
	}
	k.args[index] = boundArg{set: true, mem: b}
	return cl.Success
}

func (d *Driver) KernelWorkGroupSize(id driver.KernelID, devID driver.DeviceID) (uint64, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("KernelWorkGroupSize"); !s.OK() {
		return 0, s
	}
	k, ok := d.kernels[id]
	if !ok {
		return 0, cl.InvalidKernel
	}
	dev, ok := d.devices[devID]
	if !ok || dev != k.prog.ctx.device {
		return 0, cl.InvalidDevice
	}
	return dev.spec.MaxWorkGroupSize, cl.Success
}

func (d *Driver) ReleaseKernel(id driver.KernelID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ReleaseKernel"); !s.OK() {
		return s
	}
	if _, ok := d.kernels[id]; !ok {
		return cl.InvalidKernel
	}
	delete(d.kernels, id)
	return cl.Success
}

func (d *Driver) CreateCommandQueue(id driver.ContextID, devID driver.DeviceID, props driver.QueueProperties) (driver.QueueID, cl.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("CreateCommandQueue"); !s.OK() {
		return 0, s
	}
	c, ok := d.contexts[id]
	if !ok {
		return 0, cl.InvalidContext
	}
	dev, ok := d.devices[devID]
	if !ok || dev != c.device {
		return 0, cl.InvalidDevice
	}
	if props&^(driver.QueueOutOfOrderExec|driver.QueueProfiling) != 0 {
		return 0, cl.InvalidValue
	}
	// every command completes before the enqueue returns
	if props&driver.QueueOutOfOrderExec != 0 {
		return 0, cl.InvalidQueueProperties
	}
	q := &queue{id: driver.QueueID(d.handle()), ctx: c, device: dev, props: props}
	d.queues[q.id] = q
	return q.id, cl.Success
}

func (d *Driver) transfer(call string, qid driver.QueueID, m driver.MemID, offset, n int) (*buffer, cl.Status) {
	if s := d.fault(call); !s.OK() {
		return nil, s
	}
	q, ok := d.queues[qid]
	if !ok {
		return nil, cl.InvalidCommandQueue
	}
	b, ok := d.buffers[m]
	if !ok {
		return nil, cl.InvalidMemObject
	}
	if b.ctx != q.ctx {
		return nil, cl.InvalidContext
	}
	if n == 0 || offset < 0 || offset+n > len(b.data) {
		return nil, cl.InvalidValue
	}
	return b, cl.Success
}

func (d *Driver) EnqueueWriteBuffer(qid driver.QueueID, m driver.MemID, offset int, src []byte) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, s := d.transfer("EnqueueWriteBuffer", qid, m, offset, len(src))
	if !s.OK() {
		return s
	}
	copy(b.data[offset:], src)
	return cl.Success
}

func (d *Driver) EnqueueReadBuffer(qid driver.QueueID, m driver.MemID, offset int, dst []byte) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, s := d.transfer("EnqueueReadBuffer", qid, m, offset, len(dst))
	if !s.OK() {
		return s
	}
	copy(dst, b.data[offset:offset+len(dst)])
	return cl.Success
}

func (d *Driver) EnqueueNDRangeKernel(qid driver.QueueID, kid driver.KernelID, offset, global, local []uint64) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("EnqueueNDRangeKernel"); !s.OK() {
		return s
	}
	q, ok := d.queues[qid]
	if !ok {
		return cl.InvalidCommandQueue
	}
	k, ok := d.kernels[kid]
	if !ok {
		return cl.InvalidKernel
	}
	if k.prog.ctx != q.ctx {
		return cl.InvalidContext
	}
	if !k.prog.built || k.prog.ctx.device != q.device {
		return cl.InvalidProgramExecutable
	}

	dims := len(global)
	if dims < 1 || dims > 3 {
		return cl.InvalidWorkDimension
	}
	if (offset != nil && len(offset) != dims) || (local != nil && len(local) != dims) {
		return cl.InvalidValue
	}
	for i, g := range global {
		if g == 0 {
			return cl.InvalidGlobalWorkSize
		}
		if offset != nil && offset[i]+g < g {
			return cl.InvalidGlobalOffset
		}
	}
	if !addressable(global, q.device.spec.AddressBits) {
		return cl.InvalidGlobalWorkSize
	}

	localMem := uint64(0)
	for _, a := range k.args {
		if !a.set {
			return cl.InvalidKernelArgs
		}
		if a.mem != nil {
			if _, live := d.buffers[a.mem.id]; !live {
				return cl.InvalidKernelArgs
			}
		}
		localMem += uint64(a.local)
	}
	if localMem > q.device.spec.LocalMemSize {
		return cl.OutOfResources
	}

	maxWG := q.device.spec.MaxWorkGroupSize
	if local == nil {
		local = pickLocalSize(global, maxWG)
	} else {
		total := uint64(1)
		for i, l := range local {
			if l == 0 || global[i]%l != 0 {
				return cl.InvalidWorkGroupSize
			}
			total *= l
		}
		if total > maxWG {
			return cl.InvalidWorkGroupSize
		}
	}

	if err := d.launch(q, k, offset, global, local); err != nil {
		slog.Error("Simulated kernel fault", "kernel", k.decl.name, "err", err)
		return cl.OutOfResources
	}
	return cl.Success
}

// addressable reports whether every global size and their product fit in
// the device's size_t.
func addressable(global []uint64, addrBits uint32) bool {
	limit := uint64(math.MaxUint64)
	if addrBits < 64 {
		limit = 1<<addrBits - 1
	}
	total := uint64(1)
	for _, g := range global {
		if g > limit {
			return false
		}
		hi, lo := bits.Mul64(total, g)
		if hi != 0 || lo > limit {
			return false
		}
		total = lo
	}
	return true
}

// pickLocalSize chooses, per dimension, the largest divisor of the global
// size that keeps the group within limit work-items.
func pickLocalSize(global []uint64, limit uint64) []uint64 {
	local := make([]uint64, len(global))
	budget := limit
	for i, g := range global {
		l := largestDivisor(g, budget)
		local[i] = l
		budget /= l
	}
	return local
}

func largestDivisor(n, limit uint64) uint64 {
	if n <= limit {
		return n
	}
	for l := limit; l > 1; l-- {
		if n%l == 0 {
			return l
		}
	}
	return 1
}

func (d *Driver) launch(q *queue, k *kernel, offset, global, local []uint64) error {
	dims := len(global)
	var base WorkItem
	base.Dims = dims
	groups := [3]uint64{1, 1, 1}
	total := uint64(1)
	for i := 0; i < dims; i++ {
		base.GlobalSize[i] = global[i]
		base.LocalSize[i] = local[i]
		if offset != nil {
			base.Offset[i] = offset[i]
		}
		groups[i] = global[i] / local[i]
		total *= groups[i]
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(int(max(q.device.spec.ComputeUnits, 1)))
	// a failed group stops the launch
	for gi := uint64(0); gi < total && ctx.Err() == nil; gi++ {
		g.Go(func() (err error) {
			if ctx.Err() != nil {
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("work-group %d: %v", gi, r)
				}
			}()
			runGroup(k, base, groups, gi)
			return nil
		})
	}
	return g.Wait()
}

func runGroup(k *kernel, item WorkItem, groups [3]uint64, linear uint64) {
	args := &Args{kernel: k.decl.name, vals: make([]argValue, len(k.args))}
	for i, a := range k.args {
		v := argValue{param: k.decl.params[i]}
		switch {
		case a.mem != nil:
			v.data = a.mem.data
		case a.local > 0:
			v.data = make([]byte, a.local)
		default:
			v.data = a.data
		}
		args.vals[i] = v
	}

	item.GroupID = [3]uint64{linear % groups[0], (linear / groups[0]) % groups[1], linear / (groups[0] * groups[1])}
	n := item.LocalSize[0] * max(item.LocalSize[1], 1) * max(item.LocalSize[2], 1)
	for li := uint64(0); li < n; li++ {
		sx := item.LocalSize[0]
		sy := max(item.LocalSize[1], 1)
		item.LocalID = [3]uint64{li % sx, (li / sx) % sy, li / (sx * sy)}
		for dim := 0; dim < item.Dims; dim++ {
			item.GlobalID[dim] = item.Offset[dim] + item.GroupID[dim]*item.LocalSize[dim] + item.LocalID[dim]
		}
		k.fn(item, args)
	}
}

func (d *Driver) Finish(qid driver.QueueID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("Finish"); !s.OK() {
		return s
	}
	if _, ok := d.queues[qid]; !ok {
		return cl.InvalidCommandQueue
	}
	return cl.Success
}

func (d *Driver) ReleaseCommandQueue(qid driver.QueueID) cl.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.fault("ReleaseCommandQueue"); !s.OK() {
		return s
	}
	if _, ok := d.queues[qid]; !ok {
		return cl.InvalidCommandQueue
	}
	delete(d.queues, qid)
	return cl.Success
}

var _ driver.Driver = (*Driver)(nil)
