package resources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/types"
)

// runningMean tracks a count-weighted cumulative mean. Unlike a naive
// mean = (mean + sample) / 2, this weights every sample by 1/n so a long
// run of stable samples is not dominated by whichever one arrived last.
type runningMean struct {
	mean  float64
	count int64
}

func (m *runningMean) add(sample float64) float64 {
	m.count++
	m.mean += (sample - m.mean) / float64(m.count)
	return m.mean
}

// Sampler periodically polls an Enforcer for every tracked sandbox, updates
// a cumulative mean of CPU utilization, persists the raw sample and
// publishes a resource.violation event for anything CheckViolations flags.
type Sampler struct {
	enforcer Enforcer
	broker   *events.Broker
	store    MetricRecorder
	interval time.Duration

	mu       sync.Mutex
	tracked  map[types.SandboxID]struct{}
	cpuMeans map[types.SandboxID]*runningMean

	stopCh chan struct{}
	doneCh chan struct{}
}

// MetricRecorder is the subset of storage.Repository the sampler needs,
// declared locally so this package does not import storage.
type MetricRecorder interface {
	SaveSandboxMetric(sandboxID types.SandboxID, name string, value float64, unit string, ts time.Time) error
	SaveViolation(v *types.ResourceViolation) error
}

// NewSampler constructs a Sampler. interval should match
// config.Options.ResourceSampleInterval.
func NewSampler(enforcer Enforcer, broker *events.Broker, store MetricRecorder, interval time.Duration) *Sampler {
	return &Sampler{
		enforcer: enforcer,
		broker:   broker,
		store:    store,
		interval: interval,
		tracked:  make(map[types.SandboxID]struct{}),
		cpuMeans: make(map[types.SandboxID]*runningMean),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Track adds a sandbox to the sampling set.
func (s *Sampler) Track(sandboxID types.SandboxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[sandboxID] = struct{}{}
	s.cpuMeans[sandboxID] = &runningMean{}
}

// Untrack removes a sandbox from the sampling set.
func (s *Sampler) Untrack(sandboxID types.SandboxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, sandboxID)
	delete(s.cpuMeans, sandboxID)
}

// MeanCPUPercent returns the cumulative mean CPU percent observed for a
// sandbox across its lifetime, or 0 if it has no samples yet.
func (s *Sampler) MeanCPUPercent(sandboxID types.SandboxID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.cpuMeans[sandboxID]; ok {
		return m.mean
	}
	return 0
}

// Run blocks, sampling every tracked sandbox on a ticker until ctx is
// cancelled or Stop is called.
func (s *Sampler) Run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sampleAll()
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (s *Sampler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sampler) sampleAll() {
	s.mu.Lock()
	sandboxIDs := make([]types.SandboxID, 0, len(s.tracked))
	for id := range s.tracked {
		sandboxIDs = append(sandboxIDs, id)
	}
	s.mu.Unlock()

	for _, id := range sandboxIDs {
		s.sampleOne(id)
	}
}

func (s *Sampler) sampleOne(sandboxID types.SandboxID) {
	usage, err := s.enforcer.CurrentUsage(sandboxID)
	if err != nil {
		log.Errorf(fmt.Sprintf("sample usage for sandbox %s", sandboxID), err)
		return
	}

	s.mu.Lock()
	mean, ok := s.cpuMeans[sandboxID]
	s.mu.Unlock()
	if ok {
		mean.add(usage.CPUPercent)
	}

	if s.store != nil {
		_ = s.store.SaveSandboxMetric(sandboxID, "memory_used_bytes", float64(usage.MemoryUsedBytes), "bytes", usage.SampledAt)
		_ = s.store.SaveSandboxMetric(sandboxID, "cpu_percent", usage.CPUPercent, "percent", usage.SampledAt)
		_ = s.store.SaveSandboxMetric(sandboxID, "process_count", float64(usage.ProcessCount), "count", usage.SampledAt)
	}

	violations, err := s.enforcer.CheckViolations(sandboxID)
	if err != nil {
		log.Errorf(fmt.Sprintf("check violations for sandbox %s", sandboxID), err)
		return
	}

	for _, v := range violations {
		v := v
		if s.store != nil {
			_ = s.store.SaveViolation(&v)
		}
		if s.broker != nil {
			s.broker.Publish(&events.Event{
				Type:    events.EventResourceViolation,
				Message: fmt.Sprintf("sandbox %s exceeded %s limit: used %.0f, limit %.0f", sandboxID, v.ResourceType, v.Used, v.Limit),
				Metadata: map[string]string{
					"sandbox_id":    string(sandboxID),
					"resource_type": string(v.ResourceType),
				},
			})
		}
	}
}
