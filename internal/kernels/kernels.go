// Package kernels is the built-in kernel library. Each kernel ships its
// OpenCL C source together with the host implementation the simulator runs.
package kernels

import (
	"sort"

	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
)

// Kernel is a named entry point with its source and simulator implementation.
type Kernel struct {
	Name   string
	Source string
	Host   hostsim.KernelFunc
}

const fillSource = `
__kernel void fill(__global int *out, const int value) {
    out[get_global_id(0)] = value;
}
`

const addOneSource = `
__kernel void add_one(__global int *data) {
    const size_t i = get_global_id(0);
    data[i] = data[i] + 1;
}
`

const vaddSource = `
__kernel void vadd(__global const float *a,
                   __global const float *b,
                   __global float *c) {
    const size_t i = get_global_id(0);
    c[i] = a[i] + b[i];
}
`

const scaleSource = `
__kernel void scale(__global float *data, const float factor) {
    const size_t i = get_global_id(0);
    data[i] = data[i] * factor;
}
`

// stage round-trips every element through local memory.
const stageSource = `
__kernel void stage(__global const int *in,
                    __global int *out,
                    __local int *tmp) {
    const size_t gid = get_global_id(0);
    const size_t lid = get_local_id(0);
    tmp[lid] = in[gid];
    barrier(CLK_LOCAL_MEM_FENCE);
    out[gid] = tmp[lid];
}
`

var (
	Fill = Kernel{
		Name:   "fill",
		Source: fillSource,
		Host: func(item hostsim.WorkItem, args *hostsim.Args) {
			hostsim.StoreInt32(args.Buffer(0), item.GlobalID[0], args.Int32(1))
		},
	}

	AddOne = Kernel{
		Name:   "add_one",
		Source: addOneSource,
		Host: func(item hostsim.WorkItem, args *hostsim.Args) {
			data := args.Buffer(0)
			i := item.GlobalID[0]
			hostsim.StoreInt32(data, i, hostsim.LoadInt32(data, i)+1)
		},
	}

	VAdd = Kernel{
		Name:   "vadd",
		Source: vaddSource,
		Host: func(item hostsim.WorkItem, args *hostsim.Args) {
			i := item.GlobalID[0]
			sum := hostsim.LoadFloat32(args.Buffer(0), i) + hostsim.LoadFloat32(args.Buffer(1), i)
			hostsim.StoreFloat32(args.Buffer(2), i, sum)
		},
	}

	Scale = Kernel{
		Name:   "scale",
		Source: scaleSource,
		Host: func(item hostsim.WorkItem, args *hostsim.Args) {
			data := args.Buffer(0)
			i := item.GlobalID[0]
			hostsim.StoreFloat32(data, i, hostsim.LoadFloat32(data, i)*args.Float32(1))
		},
	}

	Stage = Kernel{
		Name:   "stage",
		Source: stageSource,
		Host: func(item hostsim.WorkItem, args *hostsim.Args) {
			gid, lid := item.GlobalID[0], item.LocalID[0]
			tmp := args.Buffer(2)
			hostsim.StoreInt32(tmp, lid, hostsim.LoadInt32(args.Buffer(0), gid))
			hostsim.StoreInt32(args.Buffer(1), gid, hostsim.LoadInt32(tmp, lid))
		},
	}
)

var library = map[string]Kernel{
	Fill.Name:   Fill,
	AddOne.Name: AddOne,
	VAdd.Name:   VAdd,
	Scale.Name:  Scale,
	Stage.Name:  Stage,
}

// Lookup returns the built-in kernel with the given entry point name.
func Lookup(name string) (Kernel, bool) {
	k, ok := library[name]
	return k, ok
}

// All returns every built-in kernel ordered by name.
func All() []Kernel {
	out := make([]Kernel, 0, len(library))
	for _, k := range library {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Register installs the host implementation of every built-in kernel.
func Register(sim *hostsim.Driver) {
	for _, k := range library {
		sim.Register(k.Name, k.Host)
	}
}
