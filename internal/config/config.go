// Package config loads toolkit settings from a YAML file and CLKIT_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/cltoolkit/internal/driver/hostsim"
)

// Driver selection values.
const (
	DriverAuto    = "auto"
	DriverOpenCL  = "opencl"
	DriverHostSim = "hostsim"
)

const (
	DefaultDataDir       = "./data"
	DefaultLogLevel      = "info"
	DefaultBuildLogLimit = 4096
)

type Config struct {
	Driver        string           `yaml:"driver"`
	LogLevel      string           `yaml:"log_level"`
	DataDir       string           `yaml:"data_dir"`
	BuildOptions  string           `yaml:"build_options"`
	BuildLogLimit int              `yaml:"build_log_limit"`
	Simulator     hostsim.Topology `yaml:"simulator"`
}

func DefaultConfig() *Config {
	return &Config{
		Driver:        DriverAuto,
		LogLevel:      DefaultLogLevel,
		DataDir:       DefaultDataDir,
		BuildLogLimit: DefaultBuildLogLimit,
		Simulator:     hostsim.DefaultTopology(),
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// a file that lists platforms replaces the default topology
		cfg.Simulator.Platforms = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if len(cfg.Simulator.Platforms) == 0 {
			cfg.Simulator = hostsim.DefaultTopology()
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Var returns the trimmed value of an environment variable with surrounding
// quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func (c *Config) applyEnv() {
	if s := Var("CLKIT_DRIVER"); s != "" {
		c.Driver = strings.ToLower(s)
	}
	if s := Var("CLKIT_LOG_LEVEL"); s != "" {
		c.LogLevel = strings.ToLower(s)
	}
	if s := Var("CLKIT_DATA_DIR"); s != "" {
		c.DataDir = s
	}
	if s := Var("CLKIT_BUILD_OPTIONS"); s != "" {
		c.BuildOptions = s
	}
	if s := Var("CLKIT_BUILD_LOG_LIMIT"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			slog.Warn("invalid environment variable, using default", "key", "CLKIT_BUILD_LOG_LIMIT", "value", s, "default", c.BuildLogLimit)
		} else {
			c.BuildLogLimit = n
		}
	}
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverAuto, DriverOpenCL, DriverHostSim:
	default:
		return fmt.Errorf("unknown driver %q (want auto, opencl or hostsim)", c.Driver)
	}
	if _, ok := ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.BuildLogLimit <= 0 {
		return fmt.Errorf("build_log_limit must be positive, got %d", c.BuildLogLimit)
	}
	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
