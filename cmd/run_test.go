package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/compute"
	"github.com/cwbudde/cltoolkit/internal/config"
	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
	"github.com/cwbudde/cltoolkit/internal/kernels"
	"github.com/cwbudde/cltoolkit/internal/store"
)

func TestMain(m *testing.M) {
	if err := compute.UseDriver(newSimulator(hostsim.DefaultTopology())); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// setRunFlags sets the run command flags for one test and restores them.
func setRunFlags(t *testing.T, kernel string, n uint64, args ...string) *bytes.Buffer {
	t.Helper()
	prevCfg := cfg
	prev := []string{sourcePath, kernelName, deviceSel, buildOptions, showFormat}
	prevThreads, prevArgs, prevNoRecord := threads, kernelArgs, noRecord
	t.Cleanup(func() {
		cfg = prevCfg
		sourcePath, kernelName, deviceSel, buildOptions, showFormat = prev[0], prev[1], prev[2], prev[3], prev[4]
		threads, kernelArgs, noRecord = prevThreads, prevArgs, prevNoRecord
	})

	cfg = config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	sourcePath, kernelName, deviceSel, buildOptions, showFormat = "", kernel, "default", "", "hex"
	threads, kernelArgs, noRecord = n, args, false
	return new(bytes.Buffer)
}

func runWithOutput(out *bytes.Buffer) error {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	return runKernel(cmd, nil)
}

func listRuns(t *testing.T) []store.RecordInfo {
	t.Helper()
	s, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	infos, err := s.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	return infos
}

func TestRunBuiltinFill(t *testing.T) {
	out := setRunFlags(t, "fill", 4, "out=16", "i32=7")
	showFormat = "i32"

	if err := runWithOutput(out); err != nil {
		t.Fatalf("runKernel failed: %v", err)
	}
	if got, want := out.String(), "arg 0 (16 bytes): 7 7 7 7\n"; got != want {
		t.Errorf("Output = %q, want %q", got, want)
	}

	infos := listRuns(t)
	if len(infos) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d", len(infos))
	}
	s, _ := store.NewFSStore(cfg.DataDir)
	rec, err := s.LoadRecord(infos[0].ID)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if rec.Kernel != "fill" || rec.Source != "builtin:fill" || rec.Device != "Simulated CPU" || rec.Driver != hostsim.Name {
		t.Errorf("Unexpected record %+v", rec)
	}
	if rec.Error != "" {
		t.Errorf("Expected no error, got %q", rec.Error)
	}
	if len(rec.Outputs) != 1 || rec.Outputs[0].Index != 0 || len(rec.Outputs[0].Data) != 16 {
		t.Errorf("Unexpected outputs %+v", rec.Outputs)
	}

	tr, err := store.NewTraceReader(cfg.DataDir, rec.ID)
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	var ops []string
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	if got := strings.Join(ops, ","); got != "execute,read" {
		t.Errorf("Trace ops = %s, want execute,read", got)
	}
}

func TestRunSourceFileWithInputs(t *testing.T) {
	out := setRunFlags(t, "vadd", 3, "in=f32:1,2,3", "in=f32:0.5,0.5,0.5", "out=12")
	showFormat = "f32"
	sourcePath = filepath.Join(t.TempDir(), "vadd.cl")
	if err := os.WriteFile(sourcePath, []byte(kernels.VAdd.Source), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	if err := runWithOutput(out); err != nil {
		t.Fatalf("runKernel failed: %v", err)
	}
	if got, want := out.String(), "arg 2 (12 bytes): 1.5 2.5 3.5\n"; got != want {
		t.Errorf("Output = %q, want %q", got, want)
	}
}

func TestRunMissingEntryPointIsRecorded(t *testing.T) {
	out := setRunFlags(t, "nope", 4, "out=16")
	sourcePath = filepath.Join(t.TempDir(), "fill.cl")
	if err := os.WriteFile(sourcePath, []byte(kernels.Fill.Source), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	err := runWithOutput(out)
	var clErr *cl.Error
	if !errors.As(err, &clErr) || clErr.Status != cl.InvalidKernelName {
		t.Fatalf("Expected CL_INVALID_KERNEL_NAME, got %v", err)
	}

	infos := listRuns(t)
	if len(infos) != 1 || !infos[0].Failed {
		t.Errorf("Expected one failed run, got %+v", infos)
	}
}

func TestRunNoRecord(t *testing.T) {
	out := setRunFlags(t, "fill", 2, "out=8", "i32=1")
	noRecord = true

	if err := runWithOutput(out); err != nil {
		t.Fatalf("runKernel failed: %v", err)
	}
	if infos := listRuns(t); len(infos) != 0 {
		t.Errorf("Expected no recorded runs, got %d", len(infos))
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		prep func()
		want string
	}{
		{"zero threads", func() { threads = 0 }, "--threads must be positive"},
		{"bad format", func() { showFormat = "bits" }, "unknown output format"},
		{"bad arg", func() { kernelArgs = []string{"out"} }, "argument 0"},
		{"unknown builtin", func() { kernelName = "mystery" }, "no built-in kernel"},
		{"unknown device", func() { deviceSel = "quantum" }, "no matching device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := setRunFlags(t, "fill", 4, "out=16", "i32=7")
			tt.prep()
			err := runWithOutput(out)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
