// Package config defines the flat option set every constructor in the
// execution fabric takes. Configuration loading itself is out of the
// fabric's scope per spec — a calling process is free to build Options by
// hand — but Load is provided as a convenience the way the teacher's
// cluster configuration is loaded from YAML.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Options mirrors spec.md §6's configuration list field for field, with
// defaults matching the spec's parenthesized values.
type Options struct {
	QueueSize              int           `yaml:"queue_size"`
	MinWorkers             int           `yaml:"min_workers"`
	MaxWorkers             int           `yaml:"max_workers"`
	WorkerIdleTimeout      time.Duration `yaml:"worker_idle_timeout"`
	ScaleUpThreshold       float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold     float64       `yaml:"scale_down_threshold"`
	SchedulerPollInterval  time.Duration `yaml:"scheduler_poll_interval"`
	MaxConcurrentExecutions int          `yaml:"max_concurrent_executions"`
	ExecutionTimeout       time.Duration `yaml:"execution_timeout"`
	SandboxCreationTimeout time.Duration `yaml:"sandbox_creation_timeout"`
	SandboxDestructionTimeout time.Duration `yaml:"sandbox_destruction_timeout"`
	ResourceSampleInterval time.Duration `yaml:"resource_sample_interval"`

	DefaultMemoryLimit  string `yaml:"default_memory_limit"`
	DefaultCPULimit     float64 `yaml:"default_cpu_limit"`
	DefaultDiskLimit    string `yaml:"default_disk_limit"`
	DefaultProcessLimit int    `yaml:"default_process_limit"`
	DefaultFDLimit      int    `yaml:"default_fd_limit"`

	ViolationRetentionDays  int `yaml:"violation_retention_days"`
	MaxViolationsPerSandbox int `yaml:"max_violations_per_sandbox"`

	EnableSeccomp        bool `yaml:"enable_seccomp"`
	EnableNamespaces     bool `yaml:"enable_namespaces"`
	EnableCapabilityDrop bool `yaml:"enable_capability_drop"`

	WorkerStallTimeout time.Duration `yaml:"worker_stall_timeout"`
}

// Default returns the configuration spec.md §6 prescribes, with
// max_workers resolved to the host's CPU count the way the spec's
// "cpu_count" default requires.
func Default() *Options {
	return &Options{
		QueueSize:                 1000,
		MinWorkers:                1,
		MaxWorkers:                runtime.NumCPU(),
		WorkerIdleTimeout:         60 * time.Second,
		ScaleUpThreshold:          0.8,
		ScaleDownThreshold:        0.3,
		SchedulerPollInterval:     100 * time.Millisecond,
		MaxConcurrentExecutions:   100,
		ExecutionTimeout:          300 * time.Second,
		SandboxCreationTimeout:    60 * time.Second,
		SandboxDestructionTimeout: 30 * time.Second,
		ResourceSampleInterval:    30 * time.Second,
		DefaultMemoryLimit:        "512MiB",
		DefaultCPULimit:           1.0,
		DefaultDiskLimit:          "1GiB",
		DefaultProcessLimit:       100,
		DefaultFDLimit:            1024,
		ViolationRetentionDays:    30,
		MaxViolationsPerSandbox:   100,
		EnableSeccomp:             true,
		EnableNamespaces:          true,
		EnableCapabilityDrop:      true,
		WorkerStallTimeout:        2 * time.Minute,
	}
}

// Load reads a YAML file into a copy of Default(), so unset fields keep
// their spec-mandated defaults.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	opts := Default()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return opts, nil
}

// DefaultMemoryLimitBytes parses DefaultMemoryLimit with go-units, the way
// the teacher's volume/resource config parses human sizes.
func (o *Options) DefaultMemoryLimitBytes() (int64, error) {
	return units.RAMInBytes(o.DefaultMemoryLimit)
}

// DefaultDiskLimitBytes parses DefaultDiskLimit with go-units.
func (o *Options) DefaultDiskLimitBytes() (int64, error) {
	return units.RAMInBytes(o.DefaultDiskLimit)
}
