package kernels

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver"
	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
)

func TestAllSortedByName(t *testing.T) {
	var names []string
	for _, k := range All() {
		names = append(names, k.Name)
	}
	want := []string{"add_one", "fill", "scale", "stage", "vadd"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	k, ok := Lookup("vadd")
	if !ok || k.Name != "vadd" || k.Host == nil {
		t.Errorf("Lookup(vadd) = %+v, %v", k.Name, ok)
	}
	if _, ok := Lookup("missing"); ok {
		t.Error("Lookup(missing) succeeded")
	}
}

// Every built-in source must build on the simulator once the host
// implementations are registered.
func TestSourcesBuild(t *testing.T) {
	sim := hostsim.New(hostsim.DefaultTopology())
	Register(sim)

	platforms, _ := sim.PlatformIDs()
	devices, s := sim.DeviceIDs(platforms[0], driver.DeviceTypeDefault)
	if s != cl.Success {
		t.Fatalf("DeviceIDs = %v", s)
	}
	ctx, s := sim.CreateContext(devices[0])
	if s != cl.Success {
		t.Fatalf("CreateContext = %v", s)
	}

	for _, k := range All() {
		t.Run(k.Name, func(t *testing.T) {
			p, s := sim.CreateProgramWithSource(ctx, k.Source)
			if s != cl.Success {
				t.Fatalf("CreateProgramWithSource = %v", s)
			}
			defer sim.ReleaseProgram(p)
			if s := sim.BuildProgram(p, devices[0], ""); s != cl.Success {
				log, _ := sim.ProgramBuildLog(p, devices[0], 0)
				t.Fatalf("BuildProgram = %v\n%s", s, log)
			}
			kid, s := sim.CreateKernel(p, k.Name)
			if s != cl.Success {
				t.Fatalf("CreateKernel = %v", s)
			}
			sim.ReleaseKernel(kid)
		})
	}
}

func TestScale(t *testing.T) {
	sim := hostsim.New(hostsim.DefaultTopology())
	Register(sim)

	platforms, _ := sim.PlatformIDs()
	devices, _ := sim.DeviceIDs(platforms[0], driver.DeviceTypeDefault)
	ctx, _ := sim.CreateContext(devices[0])
	q, _ := sim.CreateCommandQueue(ctx, devices[0], 0)
	p, _ := sim.CreateProgramWithSource(ctx, Scale.Source)
	if s := sim.BuildProgram(p, devices[0], ""); s != cl.Success {
		t.Fatalf("BuildProgram = %v", s)
	}
	kid, _ := sim.CreateKernel(p, Scale.Name)

	buf, _ := sim.CreateBuffer(ctx, driver.MemReadWrite, 4*4)
	data := make([]byte, 16)
	for i := range uint64(4) {
		hostsim.StoreFloat32(data, i, float32(i+1))
	}
	if s := sim.EnqueueWriteBuffer(q, buf, 0, data); s != cl.Success {
		t.Fatalf("EnqueueWriteBuffer = %v", s)
	}
	if s := sim.SetKernelArgMem(kid, 0, buf); s != cl.Success {
		t.Fatalf("SetKernelArgMem = %v", s)
	}
	factor := make([]byte, 4)
	hostsim.StoreFloat32(factor, 0, 0.5)
	if s := sim.SetKernelArg(kid, 1, 4, factor); s != cl.Success {
		t.Fatalf("SetKernelArg = %v", s)
	}
	if s := sim.EnqueueNDRangeKernel(q, kid, nil, []uint64{4}, nil); s != cl.Success {
		t.Fatalf("EnqueueNDRangeKernel = %v", s)
	}
	if s := sim.EnqueueReadBuffer(q, buf, 0, data); s != cl.Success {
		t.Fatalf("EnqueueReadBuffer = %v", s)
	}
	for i := range uint64(4) {
		want := float32(i+1) / 2
		if got := hostsim.LoadFloat32(data, i); got != want {
			t.Errorf("data[%d] = %v, want %v", i, got, want)
		}
	}
}
