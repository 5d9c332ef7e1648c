package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cltoolkit/internal/compute"
	"github.com/cwbudde/cltoolkit/internal/config"
	"github.com/cwbudde/cltoolkit/internal/driver"
	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
	"github.com/cwbudde/cltoolkit/internal/driver/opencl"
	"github.com/cwbudde/cltoolkit/internal/kernels"
)

var (
	configPath string
	logLevel   string
	driverName string
	dataDir    string

	cfg    = config.DefaultConfig()
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cltoolkit",
	Short: "Discover OpenCL devices and dispatch kernels",
	Long: `cltoolkit enumerates OpenCL platforms and devices, builds kernels from
source and runs them with host-provided arguments. Without a native OpenCL
runtime it falls back to a simulated host runtime.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if flags.Changed("driver") {
			loaded.Driver = driverName
		}
		if flags.Changed("data-dir") {
			loaded.DataDir = dataDir
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		// Setup logger
		level, _ := config.ParseLevel(cfg.LogLevel)
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		drv, err := openDriver(cfg)
		if err != nil {
			return err
		}
		if err := compute.UseDriver(drv); err != nil && !errors.Is(err, compute.ErrRegistryInitialized) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", config.DriverAuto, "Runtime driver (auto, opencl, hostsim)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir, "Base directory for run records")
}

// openDriver selects the runtime named by c.Driver. In auto mode the native
// runtime is preferred and the simulator is the fallback.
func openDriver(c *config.Config) (driver.Driver, error) {
	switch c.Driver {
	case config.DriverOpenCL:
		native, err := opencl.New()
		if err != nil {
			return nil, err
		}
		return native, nil
	case config.DriverHostSim:
		return newSimulator(c.Simulator), nil
	}

	native, err := opencl.New()
	if err == nil {
		return native, nil
	}
	slog.Info("Native OpenCL driver unavailable, using simulator", "reason", err)
	return newSimulator(c.Simulator), nil
}

func newSimulator(topo hostsim.Topology) *hostsim.Driver {
	sim := hostsim.New(topo)
	kernels.Register(sim)
	return sim
}

// stdout is where a command writes its results.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func registry() (*compute.Registry, error) {
	r, err := compute.Devices()
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}
	return r, nil
}
