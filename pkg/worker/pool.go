// Package worker implements the elastic bounded worker pool (C7, spec
// §4.2): a fixed dispatch channel in front of a scaling set of goroutines,
// each of which resolves a Task's tool, drives it through the Sandbox
// Lifecycle, and reports the result.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/registry"
	"github.com/forgelabs/fabric/pkg/sandbox"
	"github.com/forgelabs/fabric/pkg/types"
)

// Work is a Task handed to the pool for execution, and where to deliver
// the result once a worker finishes it.
type Work struct {
	Task     *types.Task
	ResultCh chan<- WorkResult
}

// WorkResult is what a worker sends back after running a Work item,
// whether it finished, failed, or was lost to a worker panic.
type WorkResult struct {
	TaskID      types.TaskID
	ExecutionID types.ExecutionID
	Result      types.ExecutionResult
	Err         error
}

// Config holds the pool's elastic-scaling parameters, spec §4.2 defaults
// in parens.
type Config struct {
	MinWorkers         int           // 1
	MaxWorkers         int           // cpu_count
	ScaleUpThreshold   float64       // 0.8
	ScaleDownThreshold float64       // 0.3
	ScaleInterval      time.Duration // 10s
	WorkerIdleTimeout  time.Duration // 60s
	WorkerStallTimeout time.Duration // 2m
}

// workerState is the supervisor's view of one running worker goroutine;
// worker is the spec-shaped snapshot of that view handed out by Workers().
type workerState struct {
	worker       types.Worker
	busy         bool
	lastActivity time.Time
	idleSince    time.Time
	cancel       context.CancelFunc
}

// Pool is the C7 component: submit(Work), scale(target), pool_status().
type Pool struct {
	cfg       Config
	lifecycle *sandbox.Lifecycle
	registry  registry.Registry
	broker    *events.Broker

	dispatch chan Work

	mu      sync.Mutex
	workers map[types.WorkerID]*workerState
	wg      sync.WaitGroup

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a Pool bound to lifecycle and the tool registry, and
// starts it at cfg.MinWorkers.
func New(cfg Config, lifecycle *sandbox.Lifecycle, reg registry.Registry, broker *events.Broker) *Pool {
	p := &Pool{
		cfg:       cfg,
		lifecycle: lifecycle,
		registry:  reg,
		broker:    broker,
		dispatch:  make(chan Work),
		workers:   make(map[types.WorkerID]*workerState),
		stopCh:    make(chan struct{}),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnWorker()
	}
	go p.superviseLoop()
	return p
}

// Submit hands Work directly to an idle worker, blocking until one is
// free to receive it or ctx is cancelled. The dispatch channel is
// unbuffered on purpose: Work only leaves whatever priority-aware queue
// fed it (see pkg/scheduler) once a worker is actually ready to run it,
// rather than piling up in a FIFO buffer where priority no longer
// applies. Callers needing a hard rejection should select on ctx with
// their own deadline.
func (p *Pool) Submit(ctx context.Context, w Work) error {
	select {
	case p.dispatch <- w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return fmt.Errorf("worker pool stopped")
	}
}

// Scale adjusts the running worker count to target, clamped to
// [MinWorkers, MaxWorkers].
func (p *Pool) Scale(target int) {
	if target < p.cfg.MinWorkers {
		target = p.cfg.MinWorkers
	}
	if target > p.cfg.MaxWorkers {
		target = p.cfg.MaxWorkers
	}

	p.mu.Lock()
	current := len(p.workers)
	p.mu.Unlock()

	if target > current {
		for i := 0; i < target-current; i++ {
			p.spawnWorker()
		}
	} else if target < current {
		p.stopWorkers(current - target)
	}
}

// PoolStatus reports the current worker counts, in spec §3's PoolStatus
// shape returned by pool_status().
func (p *Pool) PoolStatus() types.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := types.PoolStatus{Total: len(p.workers)}
	for _, w := range p.workers {
		if w.busy {
			status.Busy++
		} else {
			status.Idle++
		}
	}
	return status
}

// Stop signals every worker to exit after its current Work item, if any,
// and waits for them to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) spawnWorker() {
	id := types.NewWorkerID()
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	p.mu.Lock()
	p.workers[id] = &workerState{
		worker:       types.Worker{WorkerID: id, Status: types.WorkerStatusIdle, LastActivity: now, CreatedAt: now},
		lastActivity: now,
		idleSince:    now,
		cancel:       cancel,
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runWorker(ctx, id)
}

// Workers returns a point-in-time snapshot of every worker the pool
// currently manages, in spec §3's Worker shape.
func (p *Pool) Workers() []types.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.worker)
	}
	return out
}

func (p *Pool) stopWorkers(n int) {
	p.mu.Lock()
	var cancels []context.CancelFunc
	for id, w := range p.workers {
		if len(cancels) >= n {
			break
		}
		if !w.busy {
			cancels = append(cancels, w.cancel)
			delete(p.workers, id)
		}
	}
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// runWorker is the worker loop: receive Work, go Busy, drive the sandbox
// lifecycle, record the result, go Idle. A panic inside one iteration is
// recovered, reported as WorkerPanic, and the worker is torn down and
// replaced so a single bad Work item never shrinks the pool.
func (p *Pool) runWorker(ctx context.Context, id types.WorkerID) {
	logger := log.WithWorkerID(string(id))
	defer p.wg.Done()
	defer p.removeWorker(id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case w, ok := <-p.dispatch:
			if !ok {
				return
			}
			if !p.handleWork(ctx, id, w, logger) {
				// the worker panicked; spawn its replacement and exit.
				p.spawnWorker()
				return
			}
		}
	}
}

// handleWork runs one Work item to completion and reports whether the
// worker survived it. A panic is recovered, surfaced as WorkerPanic on
// w.ResultCh, and reported as false so runWorker retires this goroutine.
func (p *Pool) handleWork(ctx context.Context, id types.WorkerID, w Work, logger zerolog.Logger) (ok bool) {
	task := w.Task
	assigned := types.Work{WorkID: types.NewWorkID(), Task: task, AssignedWorker: id, StartedAt: time.Now()}
	p.setBusy(id, true, assigned.WorkID)
	defer p.setBusy(id, false, "")

	ok = true
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("task_id", string(task.TaskID)).Msg("worker panicked")
			p.deliver(w, WorkResult{
				TaskID:      task.TaskID,
				ExecutionID: task.ExecutionID,
				Err:         fmt.Errorf("%w: %v", types.ErrWorkerPanic, r),
			})
			ok = false
		}
	}()

	tool, err := p.registry.GetTool(ctx, task.ExecutionRequest.ToolID, task.ExecutionRequest.ToolVersion)
	if err != nil {
		p.deliver(w, WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Err: err})
		return
	}

	config, command, err := buildSandboxSpec(tool, task)
	if err != nil {
		p.deliver(w, WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Err: err})
		return
	}

	sandboxID, err := p.lifecycle.Create(ctx, config)
	if err != nil {
		p.deliver(w, WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Err: err})
		return
	}

	result, execErr := p.lifecycle.Execute(ctx, sandboxID, task.ExecutionID, command, task.ExecutionRequest.Options.Timeout)
	p.publish(events.EventExecutionEnded, sandboxID, task.ExecutionID)

	if destroyErr := p.lifecycle.Destroy(context.Background(), sandboxID); destroyErr != nil {
		logger.Warn().Err(destroyErr).Str("sandbox_id", string(sandboxID)).Msg("sandbox destroy failed after execution")
	} else {
		p.publish(events.EventSandboxDestroyed, sandboxID, task.ExecutionID)
	}

	p.deliver(w, WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Result: result, Err: execErr})
	return
}

// publish is a thin fire-and-forget wrapper so handleWork doesn't need a
// nil check on p.broker inline at every call site.
func (p *Pool) publish(eventType events.EventType, sandboxID types.SandboxID, executionID types.ExecutionID) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(&events.Event{
		Type: eventType,
		Metadata: map[string]string{
			"sandbox_id":   string(sandboxID),
			"execution_id": string(executionID),
		},
	})
}

func (p *Pool) deliver(w Work, result WorkResult) {
	if w.ResultCh == nil {
		return
	}
	select {
	case w.ResultCh <- result:
	default:
	}
}

func (p *Pool) setBusy(id types.WorkerID, busy bool, workID types.WorkID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[id]
	if !ok {
		return
	}
	now := time.Now()
	w.busy = busy
	w.lastActivity = now
	w.worker.LastActivity = now
	w.worker.CurrentWorkID = workID
	if busy {
		w.worker.Status = types.WorkerStatusBusy
	} else {
		w.worker.Status = types.WorkerStatusIdle
		w.idleSince = now
	}
}

func (p *Pool) removeWorker(id types.WorkerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, id)
}
