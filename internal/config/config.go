// Package config loads engine settings from YAML and the environment.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in configuration.
const (
	BackendAuto   = "auto"
	BackendHost   = "host"
	BackendCUDA   = "cuda"
	BackendWebGPU = "webgpu"
)

// Environment variables overriding file values.
const (
	EnvBackend   = "GPUBCAST_BACKEND"
	EnvDevice    = "GPUBCAST_DEVICE"
	EnvBlockSize = "GPUBCAST_BLOCK_SIZE"
	EnvWorkers   = "GPUBCAST_WORKERS"
	EnvLogLevel  = "GPUBCAST_LOG_LEVEL"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config selects and tunes the accelerator.
type Config struct {
	// Backend is host, cuda, webgpu or auto (best available).
	Backend string `yaml:"backend"`
	// Device is the device ordinal for GPU backends.
	Device int `yaml:"device"`
	// BlockSize overrides the kernel-suggested block size; 0 keeps it.
	// Kernels with a fixed block size (WebGPU) ignore it.
	BlockSize int `yaml:"block_size"`
	// Workers bounds host kernel parallelism; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
	// KernelCacheDir is where generated kernel sources are written.
	KernelCacheDir string `yaml:"kernel_cache_dir"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:        BackendAuto,
		LogLevel:       "info",
		KernelCacheDir: "kernels",
	}
}

// Load reads a YAML file on top of Default and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the environment lookup function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok {
		c.Backend = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	for _, f := range []struct {
		env string
		dst *int
	}{
		{EnvDevice, &c.Device},
		{EnvBlockSize, &c.BlockSize},
		{EnvWorkers, &c.Workers},
	} {
		v, ok := lookup(f.env)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%s=%q is not an integer", f.env, v)
		}
		*f.dst = n
	}
	return nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendHost, BackendCUDA, BackendWebGPU:
	default:
		return errors.Wrapf(ErrInvalid, "unknown backend %q", c.Backend)
	}
	if c.Device < 0 {
		return errors.Wrapf(ErrInvalid, "device %d", c.Device)
	}
	if c.BlockSize < 0 || c.BlockSize > 1024 {
		return errors.Wrapf(ErrInvalid, "block_size %d out of range [0, 1024]", c.BlockSize)
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalid, "workers %d", c.Workers)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "log_level: %v", err)
	}
	return lvl, nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// FromEnv returns Default with environment overrides applied.
func FromEnv() (Config, error) {
	return Load("")
}
