package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgelabs/fabric/pkg/config"
	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/executor"
	"github.com/forgelabs/fabric/pkg/isolation"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/metrics"
	"github.com/forgelabs/fabric/pkg/monitor"
	"github.com/forgelabs/fabric/pkg/registry"
	"github.com/forgelabs/fabric/pkg/resources"
	"github.com/forgelabs/fabric/pkg/results"
	"github.com/forgelabs/fabric/pkg/runtime"
	"github.com/forgelabs/fabric/pkg/sandbox"
	"github.com/forgelabs/fabric/pkg/scheduler"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
	"github.com/forgelabs/fabric/pkg/worker"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fabricd",
	Short:   "fabricd runs the multi-tenant tool-execution fabric as a single process",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fabricd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution fabric and its metrics/health HTTP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")

		opts := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts = loaded
		}

		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		repo, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer repo.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		defaultLimits, err := defaultResourceLimits(opts)
		if err != nil {
			return fmt.Errorf("default resource limits: %w", err)
		}

		enforcer := resources.NewCgroupEnforcer()
		netLimiter := resources.NewNetworkLimiter()
		isolator := isolation.New()

		mon := monitor.New(monitor.Config{
			ViolationRetention:      time.Duration(opts.ViolationRetentionDays) * 24 * time.Hour,
			MaxViolationsPerSandbox: opts.MaxViolationsPerSandbox,
		}, repo, broker)

		processDriver := runtime.NewProcessDriver()
		var containerDriver runtime.Driver = processDriver
		if containerdSocket != "" {
			cd, err := runtime.NewContainerdDriver(containerdSocket)
			if err != nil {
				return fmt.Errorf("connect containerd: %w", err)
			}
			containerDriver = cd
		}

		lifecycle := sandbox.New(containerDriver, processDriver, enforcer, isolator, netLimiter, mon, defaultLimits)

		sampler := resources.NewSampler(enforcer, broker, repo, opts.ResourceSampleInterval)
		samplerCtx, stopSampler := context.WithCancel(context.Background())
		go sampler.Run(samplerCtx)
		defer stopSampler()
		go trackSandboxLifecycle(broker, sampler)

		reg := registry.NewStatic() // empty catalog; tools are registered by the embedding process

		pool := worker.New(worker.Config{
			MinWorkers:         opts.MinWorkers,
			MaxWorkers:         opts.MaxWorkers,
			ScaleUpThreshold:   opts.ScaleUpThreshold,
			ScaleDownThreshold: opts.ScaleDownThreshold,
			ScaleInterval:      10 * time.Second,
			WorkerIdleTimeout:  opts.WorkerIdleTimeout,
			WorkerStallTimeout: opts.WorkerStallTimeout,
		}, lifecycle, reg, broker)

		sched := scheduler.New(scheduler.Config{
			QueueCapacity: opts.QueueSize,
			PollInterval:  opts.SchedulerPollInterval,
			MaxConcurrent: opts.MaxWorkers,
		}, repo, broker)

		store := results.New(repo, broker)

		exec := executor.New(executor.Config{MaxConcurrentExecutions: opts.MaxConcurrentExecutions}, reg, sched, pool, store)
		if err := sched.Restart(cmd.Context()); err != nil {
			return fmt.Errorf("restart scheduler: %w", err)
		}
		exec.Start()
		defer exec.Stop()
		defer pool.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "ready")
		metrics.RegisterComponent("scheduler", true, "ready")
		metrics.RegisterComponent("worker_pool", true, "ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		errCh := make(chan error, 1)
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		fmt.Printf("fabricd listening for health/metrics on http://%s\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}

		if n, err := mon.Cleanup(); err == nil && n > 0 {
			fmt.Printf("pruned %d stale violation records\n", n)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "./fabricd-data", "Data directory for the bbolt result/audit store")
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults to spec.md's built-in defaults)")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics, /health, /ready and /live endpoints")
	serveCmd.Flags().String("containerd-socket", "", "containerd socket path; empty uses the process-isolation driver for every sandbox")
}

// trackSandboxLifecycle keeps the resource sampler's tracked-sandbox set in
// sync with sandbox creation/destruction, since the sampler has no other
// way to learn which sandboxes exist.
func trackSandboxLifecycle(broker *events.Broker, sampler *resources.Sampler) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for event := range sub {
		sandboxID := types.SandboxID(event.Metadata["sandbox_id"])
		if sandboxID == "" {
			continue
		}
		switch event.Type {
		case events.EventSandboxCreated:
			sampler.Track(sandboxID)
		case events.EventSandboxDestroyed:
			sampler.Untrack(sandboxID)
		}
	}
}

func defaultResourceLimits(opts *config.Options) (types.ResourceLimits, error) {
	memBytes, err := opts.DefaultMemoryLimitBytes()
	if err != nil {
		return types.ResourceLimits{}, fmt.Errorf("default_memory_limit: %w", err)
	}
	diskBytes, err := opts.DefaultDiskLimitBytes()
	if err != nil {
		return types.ResourceLimits{}, fmt.Errorf("default_disk_limit: %w", err)
	}
	cpu := opts.DefaultCPULimit
	procs := opts.DefaultProcessLimit
	fds := opts.DefaultFDLimit
	return types.ResourceLimits{
		MemoryBytes:  &memBytes,
		CPUCores:     &cpu,
		DiskBytes:    &diskBytes,
		ProcessCount: &procs,
		FDCount:      &fds,
	}, nil
}
