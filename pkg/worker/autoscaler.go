package worker

import (
	"time"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
)

// superviseLoop is the pool's only background goroutine: every
// ScaleInterval it recomputes utilization and scales, then prunes any
// worker whose last heartbeat is older than WorkerStallTimeout.
func (p *Pool) superviseLoop() {
	interval := p.cfg.ScaleInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.autoscale()
			p.pruneStalled()
		}
	}
}

// autoscale implements spec §4.2's elastic scaling thresholds: scale up
// past ScaleUpThreshold utilization to min(current*2, max), scale down
// below ScaleDownThreshold when an idle worker has sat longer than
// WorkerIdleTimeout, to max(current/2, min).
func (p *Pool) autoscale() {
	status := p.PoolStatus()
	if status.Total == 0 {
		p.Scale(p.cfg.MinWorkers)
		return
	}

	utilization := float64(status.Busy) / float64(status.Total)

	if utilization > p.cfg.ScaleUpThreshold {
		target := status.Total * 2
		if target > p.cfg.MaxWorkers {
			target = p.cfg.MaxWorkers
		}
		if target > status.Total {
			p.Scale(target)
		}
		return
	}

	if utilization < p.cfg.ScaleDownThreshold && p.longestIdle() > p.cfg.WorkerIdleTimeout {
		target := status.Total / 2
		if target < p.cfg.MinWorkers {
			target = p.cfg.MinWorkers
		}
		if target < status.Total {
			p.Scale(target)
		}
	}
}

func (p *Pool) longestIdle() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	var longest time.Duration
	now := time.Now()
	for _, w := range p.workers {
		if w.busy {
			continue
		}
		if d := now.Sub(w.idleSince); d > longest {
			longest = d
		}
	}
	return longest
}

// pruneStalled tears down and replaces any worker whose last_activity
// heartbeat is older than WorkerStallTimeout, per spec §4.2's crash
// resistance requirement for wedged workers.
func (p *Pool) pruneStalled() {
	if p.cfg.WorkerStallTimeout <= 0 {
		return
	}

	p.mu.Lock()
	var stalled []func()
	now := time.Now()
	for id, w := range p.workers {
		if now.Sub(w.lastActivity) > p.cfg.WorkerStallTimeout {
			cancel := w.cancel
			stalled = append(stalled, cancel)
			log.WithWorkerID(string(id)).Warn().Msg("worker stalled, tearing down")
			if p.broker != nil {
				p.broker.Publish(&events.Event{
					Type:    events.EventWorkerStalled,
					Message: "worker exceeded stall timeout",
					Metadata: map[string]string{
						"worker_id": string(id),
					},
				})
			}
		}
	}
	p.mu.Unlock()

	for _, cancel := range stalled {
		cancel()
	}
	// Each stalled worker is replaced one-for-one so pruning alone never
	// shrinks the pool below its pre-stall size; autoscale() handles
	// intentional shrinkage separately.
	for i := 0; i < len(stalled); i++ {
		p.spawnWorker()
	}
}
