package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
)

// Config holds the scheduler's queueing and restart parameters, spec §4.1
// defaults in parens.
type Config struct {
	QueueCapacity int           // 1000
	PollInterval  time.Duration // 100ms
	MaxRetryDelay time.Duration // 1m

	// MaxConcurrent caps how many Tasks the scheduler will have in flight
	// (popped off the priority queue but not yet Complete'd) at once. It
	// should match the worker pool's capacity so a task only ever leaves
	// the priority queue when there is a real worker free to run it; a
	// later-arriving higher-priority task can then still jump ahead of
	// anything still sitting in the queue. Zero means unbounded.
	MaxConcurrent int
}

// Scheduler is the C8 component: a bounded multi-level priority queue with
// weighted-fairness dequeue, retry-with-backoff, cancellation, and a
// crash-resistant restart that rebuilds from storage.Repository. It hands
// dequeued Tasks to its consumer over Out() rather than calling into the
// worker pool directly, so neither package imports the other.
type Scheduler struct {
	cfg    Config
	repo   storage.Repository
	broker *events.Broker

	mu       sync.Mutex
	queue    *priorityQueue
	running  map[types.TaskID]context.CancelFunc
	tasks    map[types.TaskID]*types.Task
	inFlight int

	out chan *types.Task

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Scheduler bound to repo for persistence. Call Restart
// before Start if the process may be resuming after a crash.
func New(cfg Config, repo storage.Repository, broker *events.Broker) *Scheduler {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Minute
	}
	return &Scheduler{
		cfg:     cfg,
		repo:    repo,
		broker:  broker,
		queue:   newPriorityQueue(cfg.QueueCapacity),
		running: make(map[types.TaskID]context.CancelFunc),
		tasks:   make(map[types.TaskID]*types.Task),
		out:     make(chan *types.Task),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the pump goroutine that drains the queue onto Out().
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.pump()
}

// Stop halts the pump goroutine. Queued and running tasks are left exactly
// as they are; a fresh process calling Restart will pick them back up.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Out is the pull-based handoff channel: the executor façade (or whatever
// wiring layer sits above the worker pool) reads Tasks from here and
// submits them to the pool, then calls RegisterCancel and eventually
// Complete for each one.
func (s *Scheduler) Out() <-chan *types.Task {
	return s.out
}

// Schedule admits req as a new Task at the back of its priority level's
// queue, persists it Queued, and returns the TaskID the caller should
// track it by.
func (s *Scheduler) Schedule(req types.ExecutionRequest, executionID types.ExecutionID) (types.TaskID, error) {
	s.mu.Lock()
	full := s.queue.Full()
	s.mu.Unlock()
	if full {
		return "", types.ErrQueueFull
	}

	task := &types.Task{
		TaskID:           types.NewTaskID(),
		ExecutionID:      executionID,
		ExecutionRequest: req,
		Priority:         req.Options.Priority,
		Status:           types.TaskStatusQueued,
		CreatedAt:        time.Now(),
	}

	if err := s.repo.SaveTask(task); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	s.mu.Lock()
	s.queue.Push(task)
	s.tasks[task.TaskID] = task
	s.mu.Unlock()

	s.publish(events.EventTaskScheduled, task, "")
	return task.TaskID, nil
}

// Status returns the Task's current, in-memory state.
func (s *Scheduler) Status(taskID types.TaskID) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, types.ErrTaskNotFound
	}
	return task, nil
}

// Cancel removes a Queued task outright, or signals abort to a Running
// one via its registered cancel func. A Task already in a terminal state
// is reported ErrAlreadyCancelled.
func (s *Scheduler) Cancel(taskID types.TaskID) error {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return types.ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		s.mu.Unlock()
		return types.ErrAlreadyCancelled
	}

	switch task.Status {
	case types.TaskStatusQueued:
		s.queue.Remove(taskID)
		task.Status = types.TaskStatusCancelled
	case types.TaskStatusRunning:
		cancel, running := s.running[taskID]
		task.Status = types.TaskStatusCancelled
		s.mu.Unlock()
		if running {
			cancel()
		}
		s.persist(task)
		s.publish(events.EventTaskCancelled, task, "")
		return nil
	}
	s.mu.Unlock()

	s.persist(task)
	s.publish(events.EventTaskCancelled, task, "")
	return nil
}

// RegisterCancel associates taskID with the context.CancelFunc that aborts
// its execution, so a later Cancel call on a Running task has something
// to signal. The task is already marked Running by the time the consumer
// receives it from Out(); the consumer calls this right before it submits
// the task's Work to the worker pool.
func (s *Scheduler) RegisterCancel(taskID types.TaskID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[taskID]; ok {
		task.Status = types.TaskStatusRunning
	}
	s.running[taskID] = cancel
}

// Complete reports the outcome of a Task the consumer finished running.
// A retriable failure is rescheduled after an exponential backoff delay;
// anything else is recorded terminal. A task already Cancelled keeps that
// status. Either way the task stops counting against MaxConcurrent,
// freeing drain() to pop another.
func (s *Scheduler) Complete(taskID types.TaskID, execErr error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	delete(s.running, taskID)
	if ok {
		s.inFlight--
	}
	cancelled := ok && task.Status == types.TaskStatusCancelled
	s.mu.Unlock()
	if !ok || cancelled {
		return
	}

	if execErr == nil {
		s.mu.Lock()
		task.Status = types.TaskStatusCompleted
		s.mu.Unlock()
		s.persist(task)
		s.publish(events.EventTaskCompleted, task, "")
		return
	}

	task.LastError = execErr.Error()

	if types.Retriable(execErr) && task.Attempts < maxAttempts(task) {
		s.retry(task)
		return
	}

	s.mu.Lock()
	task.Status = types.TaskStatusFailed
	s.mu.Unlock()
	s.persist(task)
	s.publish(events.EventTaskFailed, task, execErr.Error())
}

func maxAttempts(task *types.Task) int {
	if task.ExecutionRequest.Options.RetryCount > 0 {
		return task.ExecutionRequest.Options.RetryCount
	}
	return 0
}

// retry reschedules task after an exponential backoff delay:
// retry_delay * 2^(attempts-1), capped at cfg.MaxRetryDelay.
func (s *Scheduler) retry(task *types.Task) {
	s.mu.Lock()
	task.Attempts++
	attempts := task.Attempts
	s.mu.Unlock()

	base := task.ExecutionRequest.Options.RetryDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base * time.Duration(1<<uint(attempts-1))
	if delay > s.cfg.MaxRetryDelay {
		delay = s.cfg.MaxRetryDelay
	}

	task.ScheduledAt = time.Now().Add(delay)
	s.mu.Lock()
	task.Status = types.TaskStatusQueued
	s.mu.Unlock()
	s.persist(task)

	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case <-s.stopCh:
			return
		default:
		}
		if s.queue.Full() {
			log.WithComponent("scheduler").Warn().Str("task_id", string(task.TaskID)).Msg("queue full, dropping retry")
			return
		}
		s.queue.Push(task)
	})
}

// QueueStats reports queue occupancy in spec §3's QueueStats shape: how
// many tasks are Pending (still queued) versus Running (in flight), with
// a Pending breakdown by priority level.
func (s *Scheduler) QueueStats() types.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.QueueStats{
		Pending:    s.queue.Len(),
		Running:    len(s.running),
		ByPriority: s.queue.ByPriority(),
	}
}

// Capacity reports the queue's configured maximum size.
func (s *Scheduler) Capacity() int {
	return s.cfg.QueueCapacity
}

// Restart rebuilds in-memory queue state from storage after a crash: every
// persisted Queued task is re-enqueued, and every persisted Running task
// with no live registered cancel func (because the process that held it
// is gone) is marked Failed so it is never silently lost.
func (s *Scheduler) Restart(ctx context.Context) error {
	queued, err := s.repo.LoadTasksByStatus(types.TaskStatusQueued)
	if err != nil {
		return fmt.Errorf("load queued tasks: %w", err)
	}
	stale, err := s.repo.LoadTasksByStatus(types.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("load running tasks: %w", err)
	}

	s.mu.Lock()
	for _, task := range queued {
		s.tasks[task.TaskID] = task
		s.queue.Push(task)
	}
	s.mu.Unlock()

	for _, task := range stale {
		s.mu.Lock()
		_, live := s.running[task.TaskID]
		s.mu.Unlock()
		if live {
			continue
		}
		task.Status = types.TaskStatusFailed
		task.LastError = "stale worker: no live task owner found on restart"
		s.mu.Lock()
		s.tasks[task.TaskID] = task
		s.mu.Unlock()
		s.persist(task)
		s.publish(events.EventTaskFailed, task, task.LastError)
	}
	return nil
}

// pump drains the queue onto Out() at cfg.PollInterval, so a consumer
// blocked reading Out() applies backpressure all the way into Pop without
// the scheduler busy-spinning when the queue is empty.
func (s *Scheduler) pump() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain pops tasks onto Out() one at a time, but only while MaxConcurrent
// allows it: a task counts against that cap from the moment it leaves the
// priority queue until its Complete call, so a task that hasn't been
// handed to a free worker yet never gets a chance to pop ahead of a
// higher-priority task that arrives later. Without this check, popping
// the whole queue on every tick would let low-priority tasks pile up in
// the worker pool's dispatch buffer where nothing re-sorts them.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.cfg.MaxConcurrent > 0 && s.inFlight >= s.cfg.MaxConcurrent {
			s.mu.Unlock()
			return
		}
		task := s.queue.Pop()
		if task == nil {
			s.mu.Unlock()
			return
		}
		task.Status = types.TaskStatusRunning
		s.inFlight++
		s.mu.Unlock()

		select {
		case s.out <- task:
		case <-s.stopCh:
			s.mu.Lock()
			task.Status = types.TaskStatusQueued
			s.inFlight--
			s.queue.Push(task)
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) persist(task *types.Task) {
	if err := s.repo.SaveTask(task); err != nil {
		log.WithComponent("scheduler").Warn().Err(err).Str("task_id", string(task.TaskID)).Msg("failed to persist task")
	}
}

func (s *Scheduler) publish(eventType events.EventType, task *types.Task, message string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"task_id":      string(task.TaskID),
			"execution_id": string(task.ExecutionID),
		},
	})
}
