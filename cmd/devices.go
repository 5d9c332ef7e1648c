package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/compute"
)

var devicesTable bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List platforms and devices",
	Long: `Enumerates every platform and device of the selected runtime.
With --table the devices are shown with compute units, memory sizes and the
default device marked.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesTable, "table", false, "Show devices as a table")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	r, err := registry()
	if err != nil {
		return err
	}
	w := stdout(cmd)
	if devicesTable {
		r.WriteTable(w)
		return nil
	}
	fmt.Fprint(w, r.Report())
	return nil
}

// selectDevice resolves a --device value: "default", "gpu", "most" or a
// device name (case-insensitive).
func selectDevice(r *compute.Registry, sel string) (*compute.Device, error) {
	switch strings.ToLower(sel) {
	case "", "default":
		if dev, err := r.DefaultDevice(); err == nil {
			return dev, nil
		}
		// runtimes without a default device still run on the strongest one
		return r.MostComputeUnits()
	case "gpu":
		gpus := r.GPUs()
		if len(gpus) == 0 {
			return nil, fmt.Errorf("no GPU found: %w", compute.ErrNoDevice)
		}
		return gpus[0], nil
	case "most":
		return r.MostComputeUnits()
	}
	for _, d := range r.Devices() {
		if strings.EqualFold(d.Name, sel) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q: %w", sel, compute.ErrNoDevice)
}
