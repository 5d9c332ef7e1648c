package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/compute"
	"github.com/cwbudde/cltoolkit/internal/kernels"
	"github.com/cwbudde/cltoolkit/internal/store"
)

var (
	sourcePath   string
	kernelName   string
	threads      uint64
	kernelArgs   []string
	deviceSel    string
	buildOptions string
	showFormat   string
	noRecord     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a kernel and run it once",
	Long: `Builds --kernel from --source (or the built-in library when --source is
omitted), binds one --arg per kernel parameter in order, runs it on --threads
work-items and prints every output buffer. Each run is recorded under the
data directory together with a trace of its queue commands.

Argument kinds:
  i32=7 u32=7 i64=7 u64=7 f32=1.5 f64=1.5 f16=1.5   scalar values
  in=@file  in=hex:0a0b  in=i32:1,2,3               input buffers
  out=N                                             output buffer of N bytes
  local=N                                           N bytes of local memory`,
	Args: cobra.NoArgs,
	RunE: runKernel,
}

func init() {
	runCmd.Flags().StringVar(&sourcePath, "source", "", "Kernel source file (default: built-in kernel library)")
	runCmd.Flags().StringVar(&kernelName, "kernel", "", "Kernel entry point (required)")
	runCmd.Flags().Uint64Var(&threads, "threads", 0, "Global work size (required)")
	runCmd.Flags().StringArrayVar(&kernelArgs, "arg", nil, "Kernel argument, repeat once per parameter")
	runCmd.Flags().StringVar(&deviceSel, "device", "default", "Device: default, gpu, most or a device name")
	runCmd.Flags().StringVar(&buildOptions, "build-options", "", "Compiler options (default from config)")
	runCmd.Flags().StringVar(&showFormat, "show", "hex", "Output format: hex, i32, u32, f32, f64, f16")
	runCmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not store a run record")

	runCmd.MarkFlagRequired("kernel")
	runCmd.MarkFlagRequired("threads")
	rootCmd.AddCommand(runCmd)
}

func loadSource(path, kernel string) (source, origin string, err error) {
	if path == "" {
		k, ok := kernels.Lookup(kernel)
		if !ok {
			return "", "", fmt.Errorf("no built-in kernel %q, pass --source", kernel)
		}
		return k.Source, "builtin:" + kernel, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read kernel source: %w", err)
	}
	return string(data), path, nil
}

func runKernel(cmd *cobra.Command, args []string) error {
	if threads == 0 {
		return fmt.Errorf("--threads must be positive")
	}
	if _, err := formatOutput(nil, showFormat); err != nil {
		return err
	}
	parsed, err := parseArgs(kernelArgs)
	if err != nil {
		return err
	}
	source, origin, err := loadSource(sourcePath, kernelName)
	if err != nil {
		return err
	}

	r, err := registry()
	if err != nil {
		return err
	}
	dev, err := selectDevice(r, deviceSel)
	if err != nil {
		return err
	}

	rec := store.NewRecord(kernelName, origin, threads, kernelArgs)
	rec.Driver = r.Driver().Name()
	rec.Device = dev.Name
	for _, p := range r.Platforms() {
		if p.ID == dev.Platform {
			rec.Platform = p.Name
		}
	}

	var runStore *store.FSStore
	var trace *store.TraceWriter
	if !noRecord {
		if runStore, err = store.NewFSStore(cfg.DataDir); err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		if trace, err = store.NewTraceWriter(runStore.BaseDir(), rec.ID, false); err != nil {
			return err
		}
		defer trace.Close()
	}

	slog.Info("Running kernel", "kernel", kernelName, "device", dev.Name, "threads", threads, "run", rec.ID)
	start := time.Now()
	outputs, runErr := dispatch(dev, source, parsed, trace)
	rec.Elapsed = time.Since(start)
	rec.Outputs = outputs
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if runStore != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush run trace", "run", rec.ID, "err", err)
		}
		if err := runStore.SaveRecord(rec); err != nil {
			slog.Error("Failed to save run record", "run", rec.ID, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	w := stdout(cmd)
	for _, o := range outputs {
		text, err := formatOutput(o.Data, showFormat)
		if err != nil {
			return fmt.Errorf("argument %d: %w", o.Index, err)
		}
		fmt.Fprintf(w, "arg %d (%d bytes): %s\n", o.Index, len(o.Data), text)
	}
	slog.Info("Kernel run complete", "kernel", kernelName, "elapsed", rec.Elapsed, "run", rec.ID)
	return nil
}

// dispatch builds source on dev, binds args, executes and reads back every
// output buffer. All runtime objects are released before it returns.
func dispatch(dev *compute.Device, source string, args []kernelArg, trace *store.TraceWriter) ([]store.Output, error) {
	ctx, err := compute.NewContext(dev)
	if err != nil {
		return nil, err
	}
	defer ctx.Release()

	opts := []compute.ProgramOption{compute.WithBuildLogLimit(cfg.BuildLogLimit)}
	if bo := buildOptions; bo != "" {
		opts = append(opts, compute.WithBuildOptions(bo))
	} else if cfg.BuildOptions != "" {
		opts = append(opts, compute.WithBuildOptions(cfg.BuildOptions))
	}
	prog, err := compute.NewProgram(source, kernelName, ctx, dev, opts...)
	if err != nil {
		return nil, err
	}
	defer prog.Release()

	var qopts []compute.QueueOption
	if trace != nil {
		qopts = append(qopts, compute.WithTracer(traceRecorder(trace)))
	}
	queue, err := compute.NewCommandQueue(ctx, dev, qopts...)
	if err != nil {
		return nil, err
	}
	defer queue.Release()

	type pending struct {
		index uint32
		buf   *compute.Buffer
	}
	var outs []pending
	for i, a := range args {
		index := uint32(i)
		switch a.kind {
		case argScalar:
			err = prog.SetScalarArg(index, a.scalar)
		case argLocal:
			err = prog.SetLocalArg(index, a.size)
		case argInput, argOutput:
			mode := compute.ReadOnly
			if a.kind == argOutput {
				mode = compute.WriteOnly
			}
			var buf *compute.Buffer
			if buf, err = compute.NewBuffer(ctx, a.size, mode); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			defer buf.Release()
			if a.kind == argInput {
				if err = queue.CopyHostToDevice(a.data, buf, len(a.data)); err != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
			} else {
				outs = append(outs, pending{index: index, buf: buf})
			}
			err = prog.SetBufferArg(index, buf)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := prog.Execute(queue, threads); err != nil {
		return nil, err
	}

	outputs := make([]store.Output, 0, len(outs))
	for _, o := range outs {
		data := make([]byte, o.buf.Size())
		if err := queue.CopyDeviceToHost(o.buf, data, len(data)); err != nil {
			return nil, fmt.Errorf("argument %d: %w", o.index, err)
		}
		outputs = append(outputs, store.Output{Index: o.index, Data: data})
	}
	return outputs, nil
}

// traceRecorder writes queue events to a run trace.
func traceRecorder(tw *store.TraceWriter) compute.Tracer {
	return compute.TracerFunc(func(e compute.Event) {
		entry := store.TraceEntry{
			Op:        e.Op,
			Kernel:    e.Kernel,
			Bytes:     e.Bytes,
			Threads:   e.Threads,
			Duration:  e.Duration,
			Timestamp: e.Started,
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		if err := tw.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "op", e.Op, "err", err)
		}
	})
}
