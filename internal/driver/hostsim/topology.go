package hostsim

import (
	"fmt"

	"github.com/cwbudde/cltoolkit/internal/driver"
)

// Topology describes the platforms and devices the simulator exposes.
type Topology struct {
	Platforms []PlatformSpec `yaml:"platforms" json:"platforms"`
}

// PlatformSpec describes one simulated platform.
type PlatformSpec struct {
	Name    string       `yaml:"name" json:"name"`
	Vendor  string       `yaml:"vendor" json:"vendor"`
	Version string       `yaml:"version" json:"version"`
	Devices []DeviceSpec `yaml:"devices" json:"devices"`
}

// DeviceSpec describes one simulated device. Zero-valued limits are filled
// from the defaults for the device type.
//
// Unlike most vendor runtimes the simulator never promotes the first device
// to the default one: a DEFAULT query only returns devices with Default set.
type DeviceSpec struct {
	Name                  string            `yaml:"name" json:"name"`
	Vendor                string            `yaml:"vendor" json:"vendor"`
	Version               string            `yaml:"version" json:"version"`
	Type                  driver.DeviceType `yaml:"type" json:"type"`
	Default               bool              `yaml:"default" json:"default"`
	ComputeUnits          uint32            `yaml:"compute_units" json:"compute_units"`
	GlobalMemSize         uint64            `yaml:"global_mem_size" json:"global_mem_size"`
	LocalMemSize          uint64            `yaml:"local_mem_size" json:"local_mem_size"`
	MaxGlobalVariableSize uint64            `yaml:"max_global_variable_size" json:"max_global_variable_size"`
	MaxMemAllocSize       uint64            `yaml:"max_mem_alloc_size" json:"max_mem_alloc_size"`
	MaxWorkGroupSize      uint64            `yaml:"max_work_group_size" json:"max_work_group_size"`
	AddressBits           uint32            `yaml:"address_bits" json:"address_bits"`
	Unavailable           bool              `yaml:"unavailable" json:"unavailable"`
}

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// DefaultTopology is one platform carrying a default CPU device and a GPU.
func DefaultTopology() Topology {
	return Topology{
		Platforms: []PlatformSpec{
			{
				Name:    "Host Simulator",
				Vendor:  "cltoolkit",
				Version: "OpenCL 2.0 hostsim",
				Devices: []DeviceSpec{
					{Name: "Simulated CPU", Type: driver.DeviceTypeCPU, Default: true},
					{Name: "Simulated GPU", Type: driver.DeviceTypeGPU},
				},
			},
		},
	}
}

// Validate reports structural problems in the topology.
func (t Topology) Validate() error {
	for i, p := range t.Platforms {
		if p.Name == "" {
			return fmt.Errorf("platform %d: name is required", i)
		}
		for j, d := range p.Devices {
			if d.Name == "" {
				return fmt.Errorf("platform %q device %d: name is required", p.Name, j)
			}
			switch d.Type {
			case driver.DeviceTypeCPU, driver.DeviceTypeGPU, driver.DeviceTypeAccelerator:
			default:
				return fmt.Errorf("platform %q device %q: type must be cpu, gpu or accelerator", p.Name, d.Name)
			}
			if d.AddressBits != 0 && d.AddressBits != 32 && d.AddressBits != 64 {
				return fmt.Errorf("platform %q device %q: address_bits must be 32 or 64", p.Name, d.Name)
			}
			if d.MaxMemAllocSize != 0 && d.GlobalMemSize != 0 && d.MaxMemAllocSize > d.GlobalMemSize {
				return fmt.Errorf("platform %q device %q: max_mem_alloc_size exceeds global_mem_size", p.Name, d.Name)
			}
		}
	}
	return nil
}

func (d DeviceSpec) withDefaults(p PlatformSpec) DeviceSpec {
	gpu := d.Type&driver.DeviceTypeGPU != 0
	if d.Vendor == "" {
		d.Vendor = p.Vendor
	}
	if d.Version == "" {
		d.Version = "OpenCL 2.0"
	}
	if d.ComputeUnits == 0 {
		d.ComputeUnits = 4
		if gpu {
			d.ComputeUnits = 16
		}
	}
	if d.GlobalMemSize == 0 {
		d.GlobalMemSize = 1 * gib
		if gpu {
			d.GlobalMemSize = 4 * gib
		}
	}
	if d.LocalMemSize == 0 {
		d.LocalMemSize = 32 * kib
		if gpu {
			d.LocalMemSize = 64 * kib
		}
	}
	if d.MaxGlobalVariableSize == 0 {
		d.MaxGlobalVariableSize = 64 * kib
	}
	if d.MaxMemAllocSize == 0 {
		d.MaxMemAllocSize = d.GlobalMemSize / 4
	}
	if d.MaxWorkGroupSize == 0 {
		d.MaxWorkGroupSize = 256
		if gpu {
			d.MaxWorkGroupSize = 1024
		}
	}
	if d.AddressBits == 0 {
		d.AddressBits = 64
		if gpu {
			d.AddressBits = 32
		}
	}
	return d
}
