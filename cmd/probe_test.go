package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cwbudde/cltoolkit/internal/cl"
	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
)

func TestRunProbes(t *testing.T) {
	r := testRegistry(t, hostsim.DefaultTopology())
	for _, dev := range r.Devices() {
		t.Run(dev.Name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runProbes(&out, dev); err != nil {
				t.Fatalf("runProbes failed: %v\n%s", err, out.String())
			}
			if n := strings.Count(out.String(), "PASS"); n != len(probes) {
				t.Errorf("Expected %d passing probes, got %d:\n%s", len(probes), n, out.String())
			}
		})
	}
}

func TestRunProbesReportsFailure(t *testing.T) {
	sim := newSimulator(hostsim.DefaultTopology())
	r := testRegistryFor(t, sim)
	dev, err := r.DefaultDevice()
	if err != nil {
		t.Fatalf("DefaultDevice failed: %v", err)
	}
	sim.InjectFault("EnqueueNDRangeKernel", cl.OutOfResources)

	var out bytes.Buffer
	err = runProbes(&out, dev)
	if err == nil || !strings.Contains(err.Error(), "1 of 4 probes failed") {
		t.Errorf("Expected one failed probe, got %v", err)
	}
	if !strings.Contains(out.String(), "FAIL  fill constant") {
		t.Errorf("Expected fill constant to fail:\n%s", out.String())
	}
}
