package executor

import (
	"context"
	"sync"
	"time"

	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/registry"
	"github.com/forgelabs/fabric/pkg/results"
	"github.com/forgelabs/fabric/pkg/scheduler"
	"github.com/forgelabs/fabric/pkg/types"
	"github.com/forgelabs/fabric/pkg/worker"
)

// Config holds the façade's admission parameter, spec §6 default in
// parens.
type Config struct {
	MaxConcurrentExecutions int // 100
}

// Executor is the C11 component. It is the only collaborator that knows
// both an ExecutionID and the TaskID the scheduler tracks it under.
type Executor struct {
	cfg       Config
	registry  registry.Registry
	scheduler *scheduler.Scheduler
	pool      *worker.Pool
	results   *results.Store

	mu              sync.Mutex
	execToTask      map[types.ExecutionID]types.TaskID
	waiters         map[types.ExecutionID]chan *types.ExecutionResult
	parentOf        map[types.ExecutionID]types.ExecutionID
	childrenWaiting map[types.ExecutionID][]*types.ExecutionResult

	sem chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs an Executor. reg, sched, pool and store are assumed
// already constructed and otherwise unstarted; Start begins sched and the
// façade's own dispatch loop.
func New(cfg Config, reg registry.Registry, sched *scheduler.Scheduler, pool *worker.Pool, store *results.Store) *Executor {
	if cfg.MaxConcurrentExecutions <= 0 {
		cfg.MaxConcurrentExecutions = 100
	}
	return &Executor{
		cfg:             cfg,
		registry:        reg,
		scheduler:       sched,
		pool:            pool,
		results:         store,
		execToTask:      make(map[types.ExecutionID]types.TaskID),
		waiters:         make(map[types.ExecutionID]chan *types.ExecutionResult),
		parentOf:        make(map[types.ExecutionID]types.ExecutionID),
		childrenWaiting: make(map[types.ExecutionID][]*types.ExecutionResult),
		sem:             make(chan struct{}, cfg.MaxConcurrentExecutions),
		stopCh:          make(chan struct{}),
	}
}

// Start begins the scheduler and the dispatch loop that bridges its
// Out() channel to the worker pool.
func (e *Executor) Start() {
	e.scheduler.Start()
	e.wg.Add(1)
	go e.dispatchLoop()
}

// Stop halts the dispatch loop and the scheduler, and waits for
// in-flight tasks to finish being reported.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	e.scheduler.Stop()
}

// ExecuteAsync implements execute_async: look up the tool (fail fast on
// an unknown one rather than admitting a task that can never run), then
// schedule it and return the ExecutionID the caller tracks it by.
func (e *Executor) ExecuteAsync(ctx context.Context, req types.ExecutionRequest) (types.ExecutionID, error) {
	if _, err := e.registry.GetTool(ctx, req.ToolID, req.ToolVersion); err != nil {
		return "", err
	}

	executionID := types.NewExecutionID()
	taskID, err := e.scheduler.Schedule(req, executionID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.execToTask[executionID] = taskID
	if req.Context.ParentExecutionID != "" {
		e.parentOf[executionID] = req.Context.ParentExecutionID
	}
	e.mu.Unlock()

	return executionID, nil
}

// Execute implements sync execute: execute_async, then await the result
// or the caller's own cancellation.
func (e *Executor) Execute(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	executionID, err := e.ExecuteAsync(ctx, req)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	waitCh := make(chan *types.ExecutionResult, 1)
	e.mu.Lock()
	e.waiters[executionID] = waitCh
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.waiters, executionID)
		e.mu.Unlock()
	}()

	select {
	case result := <-waitCh:
		return *result, nil
	case <-ctx.Done():
		return types.ExecutionResult{}, ctx.Err()
	}
}

// Status returns the Task currently backing executionID.
func (e *Executor) Status(executionID types.ExecutionID) (*types.Task, error) {
	taskID, ok := e.taskFor(executionID)
	if !ok {
		return nil, types.ErrTaskNotFound
	}
	return e.scheduler.Status(taskID)
}

// Cancel requests abort of executionID, per the scheduler's Queued-removal
// or Running-signal semantics.
func (e *Executor) Cancel(executionID types.ExecutionID) error {
	taskID, ok := e.taskFor(executionID)
	if !ok {
		return types.ErrTaskNotFound
	}
	return e.scheduler.Cancel(taskID)
}

// List implements list(Filter) over stored results.
func (e *Executor) List(filter types.ResultFilter) ([]*types.ExecutionResult, error) {
	return e.results.List(filter)
}

// Result implements result(ExecutionId).
func (e *Executor) Result(executionID types.ExecutionID) (*types.ExecutionResult, error) {
	return e.results.Get(executionID)
}

// Metrics implements metrics(ExecutionId): the MetricSamples attached to
// the execution's stored result.
func (e *Executor) Metrics(executionID types.ExecutionID) ([]types.MetricSample, error) {
	result, err := e.results.Get(executionID)
	if err != nil {
		return nil, err
	}
	return result.Metrics, nil
}

func (e *Executor) taskFor(executionID types.ExecutionID) (types.TaskID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	taskID, ok := e.execToTask[executionID]
	return taskID, ok
}

// dispatchLoop reads dequeued Tasks off the scheduler and spawns one
// runTask goroutine per task; the semaphore in runTask, not this loop,
// is what bounds concurrent executions.
func (e *Executor) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case task, ok := <-e.scheduler.Out():
			if !ok {
				return
			}
			e.wg.Add(1)
			go e.runTask(task)
		}
	}
}

// runTask drives one Task through the worker pool under the concurrency
// semaphore and reports its outcome back to the scheduler and, once
// terminal, to the result store and any sync waiter.
func (e *Executor) runTask(task *types.Task) {
	defer e.wg.Done()

	select {
	case e.sem <- struct{}{}:
	case <-e.stopCh:
		e.scheduler.Cancel(task.TaskID)
		return
	}
	defer func() { <-e.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.scheduler.RegisterCancel(task.TaskID, cancel)

	resultCh := make(chan worker.WorkResult, 1)
	if err := e.pool.Submit(ctx, worker.Work{Task: task, ResultCh: resultCh}); err != nil {
		e.finish(task, worker.WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Err: err})
		return
	}

	select {
	case wr := <-resultCh:
		e.finish(task, wr)
	case <-ctx.Done():
		e.finish(task, worker.WorkResult{TaskID: task.TaskID, ExecutionID: task.ExecutionID, Err: types.ErrCancelled})
	}
}

// finish reports wr to the scheduler's retry/terminal bookkeeping. A
// retriable failure re-queues the task under the same TaskID, so nothing
// is delivered yet; only a genuinely terminal outcome produces a result.
func (e *Executor) finish(task *types.Task, wr worker.WorkResult) {
	e.scheduler.Complete(task.TaskID, wr.Err)

	if status, err := e.scheduler.Status(task.TaskID); err == nil && status.Status == types.TaskStatusQueued {
		return
	}

	result := wr.Result
	result.ExecutionID = task.ExecutionID
	if wr.Err != nil && result.Error == "" {
		result.Success = false
		result.Error = wr.Err.Error()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	e.deliver(task.ExecutionID, &result)
}

// deliver stores result, holding it back until its declared parent
// execution (if any) has itself been stored, per spec §4.7's ordering
// guarantee. Storing result then flushes any children that were waiting
// on it in turn.
func (e *Executor) deliver(executionID types.ExecutionID, result *types.ExecutionResult) {
	e.mu.Lock()
	parentID, hasParent := e.parentOf[executionID]
	e.mu.Unlock()

	if hasParent {
		if _, err := e.results.Get(parentID); err != nil {
			e.mu.Lock()
			e.childrenWaiting[parentID] = append(e.childrenWaiting[parentID], result)
			e.mu.Unlock()
			return
		}
	}

	e.store(result)

	e.mu.Lock()
	waiting := e.childrenWaiting[executionID]
	delete(e.childrenWaiting, executionID)
	e.mu.Unlock()

	for _, child := range waiting {
		e.store(child)
	}
}

func (e *Executor) store(result *types.ExecutionResult) {
	if err := e.results.Store(result); err != nil {
		log.WithComponent("executor").Warn().Err(err).Str("execution_id", string(result.ExecutionID)).Msg("failed to store execution result")
	}

	e.mu.Lock()
	waitCh, ok := e.waiters[result.ExecutionID]
	e.mu.Unlock()
	if ok {
		select {
		case waitCh <- result:
		default:
		}
	}
}
