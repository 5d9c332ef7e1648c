// Package compute dispatches work onto compute devices: it discovers
// platforms and devices once per process, and wraps contexts, programs,
// command queues and buffers as single-owner values that release their
// runtime handle exactly once.
//
// Creation and operation failures are returned as *cl.Error values that
// carry the status classification and a phase-specific cause. Release
// failures are only logged.
package compute

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
	"github.com/cwbudde/cltoolkit/internal/driver/opencl"
	"github.com/cwbudde/cltoolkit/internal/kernels"
)

// ErrNoDevice is returned by registry accessors when no device matches.
var ErrNoDevice = errors.New("no matching device found")

// Platform is a vendor runtime and the devices it exposes.
type Platform struct {
	ID      driver.PlatformID
	Name    string
	Vendor  string
	Version string
	Devices []Device
}

// Device is an enumerated compute device. Its attributes are captured once
// during enumeration.
type Device struct {
	ID                    driver.DeviceID
	Platform              driver.PlatformID
	Name                  string
	Vendor                string
	Version               string
	Kind                  driver.DeviceType
	ComputeUnits          uint32
	GlobalMemSize         uint64
	LocalMemSize          uint64
	MaxGlobalVariableSize uint64
	MaxMemAllocSize       uint64
	MaxWorkGroupSize      uint64
	AddressBits           uint32

	drv driver.Driver
}

// KindString is the display name of the device kind.
func (d *Device) KindString() string {
	return DeviceKindString(d.Kind)
}

// DeviceKindString maps a device type to CPU, GPU, Accelerator or Unknown.
func DeviceKindString(kind driver.DeviceType) string {
	if kind == driver.DeviceTypeAll {
		return "Unknown"
	}
	return kind.String()
}

// noCopy makes go vet flag copies of the registry.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

type devicePos struct {
	platform, device int
}

// Registry is the result of enumerating every platform and device once.
// All accessors return copies; the registry itself never changes.
type Registry struct {
	noCopy noCopy

	drv       driver.Driver
	platforms []Platform
	def       *devicePos
	gpus      []devicePos
	most      *devicePos
}

// NewRegistry enumerates platforms and devices through drv. Failing to list
// platforms is an error; per-platform device queries are best effort.
func NewRegistry(drv driver.Driver) (*Registry, error) {
	ids, s := drv.PlatformIDs()
	if !s.OK() {
		return nil, cl.New("enumerate platforms", cl.PhaseEnumerate, s)
	}

	r := &Registry{drv: drv}
	for _, pid := range ids {
		p := Platform{
			ID:      pid,
			Name:    platformString(drv, pid, driver.PlatformName),
			Vendor:  platformString(drv, pid, driver.PlatformVendor),
			Version: platformString(drv, pid, driver.PlatformVersion),
		}

		devIDs, s := drv.DeviceIDs(pid, driver.DeviceTypeAll)
		switch {
		case s == cl.DeviceNotFound:
			slog.Debug("Platform has no devices", "platform", p.Name)
		case !s.OK():
			slog.Warn("Cannot list devices of platform", "platform", p.Name, "err", cl.New("enumerate devices", cl.PhaseEnumerate, s))
			devIDs = nil
		}
		for _, did := range devIDs {
			p.Devices = append(p.Devices, describeDevice(drv, pid, did))
		}
		r.platforms = append(r.platforms, p)
	}

	r.classify()
	slog.Debug("Enumerated compute devices", "driver", drv.Name(), "platforms", len(r.platforms), "gpus", len(r.gpus))
	return r, nil
}

func (r *Registry) classify() {
	// first platform reporting a default device wins
	for pi, p := range r.platforms {
		ids, s := r.drv.DeviceIDs(p.ID, driver.DeviceTypeDefault)
		if !s.OK() || len(ids) == 0 {
			continue
		}
		di := slices.IndexFunc(p.Devices, func(d Device) bool { return d.ID == ids[0] })
		if di < 0 {
			slog.Warn("Default device is not in the platform device list", "platform", p.Name)
			continue
		}
		r.def = &devicePos{platform: pi, device: di}
		break
	}

	var best uint32
	for pi, p := range r.platforms {
		for di, d := range p.Devices {
			if d.Kind&driver.DeviceTypeGPU != 0 {
				r.gpus = append(r.gpus, devicePos{platform: pi, device: di})
			}
			if r.most == nil || d.ComputeUnits > best {
				r.most = &devicePos{platform: pi, device: di}
				best = d.ComputeUnits
			}
		}
	}
}

func (r *Registry) at(pos devicePos) *Device {
	d := r.platforms[pos.platform].Devices[pos.device]
	return &d
}

// Driver is the runtime the registry enumerated.
func (r *Registry) Driver() driver.Driver { return r.drv }

// HasDefaultDevice reports whether any platform exposes a default device.
func (r *Registry) HasDefaultDevice() bool { return r.def != nil }

// DefaultDevice returns the default device of the first platform that has one.
func (r *Registry) DefaultDevice() (*Device, error) {
	if r.def == nil {
		return nil, ErrNoDevice
	}
	return r.at(*r.def), nil
}

// HasGPU reports whether at least one GPU was enumerated.
func (r *Registry) HasGPU() bool { return len(r.gpus) > 0 }

// GPUs returns every GPU in platform order, then device order.
func (r *Registry) GPUs() []*Device {
	out := make([]*Device, len(r.gpus))
	for i, pos := range r.gpus {
		out[i] = r.at(pos)
	}
	return out
}

// MostComputeUnits returns the device with the strictly greatest compute
// unit count. The earliest device wins ties.
func (r *Registry) MostComputeUnits() (*Device, error) {
	if r.most == nil {
		return nil, ErrNoDevice
	}
	return r.at(*r.most), nil
}

// Platforms returns a deep copy of the enumerated platforms.
func (r *Registry) Platforms() []Platform {
	out := make([]Platform, len(r.platforms))
	for i, p := range r.platforms {
		p.Devices = slices.Clone(p.Devices)
		out[i] = p
	}
	return out
}

// Devices returns every enumerated device across all platforms.
func (r *Registry) Devices() []*Device {
	var out []*Device
	for pi, p := range r.platforms {
		for di := range p.Devices {
			out = append(out, r.at(devicePos{platform: pi, device: di}))
		}
	}
	return out
}

func platformString(drv driver.Driver, id driver.PlatformID, param driver.PlatformParam) string {
	v, s := drv.PlatformInfo(id, param)
	if !s.OK() {
		slog.Warn("Cannot query platform info", "param", int(param), "err", cl.New("query platform", cl.PhaseGeneric, s))
		return ""
	}
	return v
}

func describeDevice(drv driver.Driver, pid driver.PlatformID, id driver.DeviceID) Device {
	str := func(param driver.DeviceParam) string {
		v, s := drv.DeviceString(id, param)
		if !s.OK() {
			slog.Warn("Cannot query device info", "param", int(param), "err", cl.New("query device", cl.PhaseDeviceQuery, s))
		}
		return v
	}
	num := func(param driver.DeviceParam) uint64 {
		v, s := drv.DeviceUint(id, param)
		if !s.OK() {
			slog.Warn("Cannot query device info", "param", int(param), "err", cl.New("query device", cl.PhaseDeviceQuery, s))
			return 0
		}
		return v
	}

	return Device{
		ID:                    id,
		Platform:              pid,
		Name:                  str(driver.DeviceName),
		Vendor:                str(driver.DeviceVendor),
		Version:               str(driver.DeviceVersion),
		Kind:                  driver.DeviceType(num(driver.DeviceTypeInfo)),
		ComputeUnits:          uint32(num(driver.DeviceMaxComputeUnits)),
		GlobalMemSize:         num(driver.DeviceGlobalMemSize),
		LocalMemSize:          num(driver.DeviceLocalMemSize),
		MaxGlobalVariableSize: num(driver.DeviceMaxGlobalVariableSize),
		MaxMemAllocSize:       num(driver.DeviceMaxMemAllocSize),
		MaxWorkGroupSize:      num(driver.DeviceMaxWorkGroupSize),
		AddressBits:           uint32(num(driver.DeviceAddressBits)),
		drv:                   drv,
	}
}

// ErrRegistryInitialized is returned by UseDriver once the process-wide
// registry has been built.
var ErrRegistryInitialized = errors.New("device registry already initialized")

var (
	registryMu      sync.Mutex
	registryOnce    sync.Once
	registryStarted bool
	registryDriver  driver.Driver
	registry        *Registry
	registryErr     error
)

// UseDriver selects the runtime the process-wide registry enumerates. It
// must be called before the first call to Devices.
func UseDriver(d driver.Driver) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registryStarted {
		return ErrRegistryInitialized
	}
	registryDriver = d
	return nil
}

// Devices returns the process-wide registry, enumerating on first use. The
// result, including an enumeration error, is cached for the process lifetime.
func Devices() (*Registry, error) {
	registryOnce.Do(func() {
		registryMu.Lock()
		registryStarted = true
		drv := registryDriver
		registryMu.Unlock()

		if drv == nil {
			drv = DefaultDriver()
		}
		registry, registryErr = NewRegistry(drv)
	})
	return registry, registryErr
}

// MustDevices is like Devices but panics when enumeration fails.
func MustDevices() *Registry {
	r, err := Devices()
	if err != nil {
		panic("compute: device enumeration failed: " + err.Error())
	}
	return r
}

// DefaultDriver returns the native OpenCL driver when it is compiled in and
// otherwise a simulator with the built-in kernels registered.
func DefaultDriver() driver.Driver {
	native, err := opencl.New()
	if err == nil {
		return native
	}
	slog.Info("Native OpenCL driver unavailable, using simulator", "reason", err)
	sim := hostsim.New(hostsim.DefaultTopology())
	kernels.Register(sim)
	return sim
}
