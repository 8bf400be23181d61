// Package worker implements the elastic bounded worker pool that sits
// between the scheduler and the sandbox lifecycle (spec §4.2). An
// unbuffered dispatch channel hands each Work item to a ready worker;
// Submit blocks until one receives it. A supervisor goroutine scales the live worker count to utilization every scale
// interval and retires any worker whose heartbeat has gone stale.
//
// Each worker goroutine owns one Work item at a time: it creates a
// sandbox, executes the command inside it, destroys the sandbox, and
// reports the result. A panic during any of that is recovered, reported
// as WorkerPanic, and the worker is replaced rather than left wedged.
package worker
