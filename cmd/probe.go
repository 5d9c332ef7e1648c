package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/compute"
	"github.com/cwbudde/cltoolkit/internal/kernels"
)

const probeThreads = 64

var probeDevice string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run smoke tests on a device",
	Long: `Runs a fixed set of dispatch scenarios with the built-in kernels and reports
PASS or FAIL for each: constant fill, host round trip, two dependent kernels on
one queue and vector addition.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeDevice, "device", "default", "Device: default, gpu, most or a device name")
	rootCmd.AddCommand(probeCmd)
}

type probe struct {
	name string
	run  func(*probeEnv) error
}

var probes = []probe{
	{"fill constant", probeFill},
	{"round trip", probeRoundTrip},
	{"dependent kernels", probeDependent},
	{"vector add", probeVAdd},
}

type probeEnv struct {
	dev   *compute.Device
	ctx   *compute.Context
	queue *compute.CommandQueue
}

func runProbe(cmd *cobra.Command, args []string) error {
	r, err := registry()
	if err != nil {
		return err
	}
	dev, err := selectDevice(r, probeDevice)
	if err != nil {
		return err
	}
	return runProbes(stdout(cmd), dev)
}

// runProbes runs every scenario on dev with a fresh context and queue each.
func runProbes(w io.Writer, dev *compute.Device) error {
	fmt.Fprintf(w, "Probing %s (%s)\n", dev.Name, dev.KindString())
	failed := 0
	for _, p := range probes {
		start := time.Now()
		err := runOneProbe(dev, p)
		elapsed := time.Since(start).Round(time.Microsecond)
		if err != nil {
			failed++
			slog.Debug("Probe failed", "probe", p.name, "error", err)
			fmt.Fprintf(w, "FAIL  %-18s %s\n", p.name, err)
			continue
		}
		fmt.Fprintf(w, "PASS  %-18s %s\n", p.name, elapsed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d probes failed", failed, len(probes))
	}
	return nil
}

func runOneProbe(dev *compute.Device, p probe) error {
	ctx, err := compute.NewContext(dev)
	if err != nil {
		return err
	}
	defer ctx.Release()
	queue, err := compute.NewCommandQueue(ctx, dev)
	if err != nil {
		return err
	}
	defer queue.Release()
	return p.run(&probeEnv{dev: dev, ctx: ctx, queue: queue})
}

func (e *probeEnv) program(k kernels.Kernel) (*compute.Program, error) {
	return compute.NewProgram(k.Source, k.Name, e.ctx, e.dev, compute.WithBuildLogLimit(cfg.BuildLogLimit))
}

func (e *probeEnv) ints(values []int32, mode compute.AccessMode) (*compute.Buffer, error) {
	buf, err := compute.NewBuffer(e.ctx, len(values)*4, mode)
	if err != nil {
		return nil, err
	}
	if err := compute.Write(e.queue, buf, values); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func expectInts(got, want []int32) error {
	if len(got) != len(want) {
		return fmt.Errorf("got %d elements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("element %d is %d, want %d", i, got[i], want[i])
		}
	}
	return nil
}

func filled(n int, v int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func probeFill(e *probeEnv) error {
	prog, err := e.program(kernels.Fill)
	if err != nil {
		return err
	}
	defer prog.Release()

	out, err := compute.NewWriteOnlyBuffer(e.ctx, probeThreads*4)
	if err != nil {
		return err
	}
	defer out.Release()

	if err := prog.SetBufferArg(0, out); err != nil {
		return err
	}
	if err := prog.SetScalarArg(1, int32(42)); err != nil {
		return err
	}
	if err := prog.Execute(e.queue, probeThreads); err != nil {
		return err
	}
	got := make([]int32, probeThreads)
	if err := compute.Read(e.queue, out, got); err != nil {
		return err
	}
	return expectInts(got, filled(probeThreads, 42))
}

func probeRoundTrip(e *probeEnv) error {
	want := make([]int32, probeThreads)
	for i := range want {
		want[i] = int32(i*7 - 100)
	}
	buf, err := e.ints(want, compute.ReadWrite)
	if err != nil {
		return err
	}
	defer buf.Release()

	got := make([]int32, probeThreads)
	if err := compute.Read(e.queue, buf, got); err != nil {
		return err
	}
	return expectInts(got, want)
}

// probeDependent runs add_one twice on the same buffer; the second run must
// see the first run's result.
func probeDependent(e *probeEnv) error {
	prog, err := e.program(kernels.AddOne)
	if err != nil {
		return err
	}
	defer prog.Release()

	buf, err := e.ints(filled(probeThreads, 0), compute.ReadWrite)
	if err != nil {
		return err
	}
	defer buf.Release()

	if err := prog.SetBufferArg(0, buf); err != nil {
		return err
	}
	if err := prog.Execute(e.queue, probeThreads); err != nil {
		return err
	}
	if err := e.queue.Execute(prog, probeThreads); err != nil {
		return err
	}
	got := make([]int32, probeThreads)
	if err := compute.Read(e.queue, buf, got); err != nil {
		return err
	}
	return expectInts(got, filled(probeThreads, 2))
}

func probeVAdd(e *probeEnv) error {
	prog, err := e.program(kernels.VAdd)
	if err != nil {
		return err
	}
	defer prog.Release()

	a := make([]float32, probeThreads)
	b := make([]float32, probeThreads)
	for i := range a {
		a[i] = float32(i)
		b[i] = float32(i) / 2
	}

	bufs := make([]*compute.Buffer, 3)
	for i, mode := range []compute.AccessMode{compute.ReadOnly, compute.ReadOnly, compute.WriteOnly} {
		if bufs[i], err = compute.NewBuffer(e.ctx, probeThreads*4, mode); err != nil {
			return err
		}
		defer bufs[i].Release()
		if err := prog.SetBufferArg(uint32(i), bufs[i]); err != nil {
			return err
		}
	}
	if err := compute.Write(e.queue, bufs[0], a); err != nil {
		return err
	}
	if err := compute.Write(e.queue, bufs[1], b); err != nil {
		return err
	}
	if err := prog.Execute(e.queue, probeThreads); err != nil {
		return err
	}
	got := make([]float32, probeThreads)
	if err := compute.Read(e.queue, bufs[2], got); err != nil {
		return err
	}
	for i := range got {
		if want := a[i] + b[i]; got[i] != want {
			return fmt.Errorf("element %d is %g, want %g", i, got[i], want)
		}
	}
	return nil
}
