package scheduler

import (
	"container/list"

	"github.com/forgelabs/fabric/pkg/types"
)

// defaultWeight is how many consecutive dequeues a level gets before the
// scan returns to checking levels above it, when no explicit weight is
// configured for that level.
const defaultWeight = 1

// levelWeights gives Critical and High more consecutive dequeues per pass
// than Normal and Low, so a flood of low-priority work cannot starve
// higher levels without starving them outright either.
var levelWeights = map[types.Priority]int{
	types.PriorityCritical: 4,
	types.PriorityHigh:     3,
	types.PriorityNormal:   2,
	types.PriorityLow:      1,
}

// priorityQueue is a bounded multi-level FIFO queue. Each level is a plain
// list so cancellation can remove a task from the middle without disturbing
// order; capacity is enforced across all levels combined.
type priorityQueue struct {
	capacity int
	levels   map[types.Priority]*list.List
	index    map[types.TaskID]*list.Element
	size     int

	// scan state for weighted-fairness dequeue
	order    []types.Priority
	pos      int
	consumed int
}

func newPriorityQueue(capacity int) *priorityQueue {
	q := &priorityQueue{
		capacity: capacity,
		levels:   make(map[types.Priority]*list.List),
		index:    make(map[types.TaskID]*list.Element),
		order:    types.PriorityLevels(),
	}
	for _, p := range q.order {
		q.levels[p] = list.New()
	}
	return q
}

func (q *priorityQueue) Len() int { return q.size }

func (q *priorityQueue) Full() bool { return q.size >= q.capacity }

// ByPriority reports how many tasks currently sit at each priority level.
func (q *priorityQueue) ByPriority() map[types.Priority]int {
	out := make(map[types.Priority]int, len(q.levels))
	for level, lvl := range q.levels {
		out[level] = lvl.Len()
	}
	return out
}

// Push admits task at the back of its priority level's list.
func (q *priorityQueue) Push(task *types.Task) {
	lvl := q.levels[task.Priority]
	if lvl == nil {
		lvl = list.New()
		q.levels[task.Priority] = lvl
	}
	el := lvl.PushBack(task)
	q.index[task.TaskID] = el
	q.size++
}

// Remove drops task from wherever it sits in the queue, for cancellation
// of a still-Queued task. Reports whether it was found.
func (q *priorityQueue) Remove(taskID types.TaskID) bool {
	el, ok := q.index[taskID]
	if !ok {
		return false
	}
	task := el.Value.(*types.Task)
	q.levels[task.Priority].Remove(el)
	delete(q.index, taskID)
	q.size--
	return true
}

// Pop dequeues the next task by weighted fairness: the scan walks levels
// high to low, taking up to levelWeights[level] consecutive items from a
// non-empty level before moving to the next, and always restarts the scan
// from the top once it wraps so a burst of Critical work preempts a long
// Low-priority run immediately on the next call.
func (q *priorityQueue) Pop() *types.Task {
	if q.size == 0 {
		return nil
	}

	for attempts := 0; attempts < len(q.order)*2; attempts++ {
		level := q.order[q.pos]
		lvl := q.levels[level]

		weight := levelWeights[level]
		if weight <= 0 {
			weight = defaultWeight
		}

		if lvl.Len() > 0 && q.consumed < weight {
			front := lvl.Front()
			task := front.Value.(*types.Task)
			lvl.Remove(front)
			delete(q.index, task.TaskID)
			q.size--
			q.consumed++
			return task
		}

		q.pos = (q.pos + 1) % len(q.order)
		q.consumed = 0
	}
	return nil
}
