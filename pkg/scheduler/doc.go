// Package scheduler implements the C8 component (spec §4.1): a bounded
// multi-level priority queue that admits Tasks, dequeues them by weighted
// fairness across priority levels, and hands them off to a consumer (the
// worker pool, via the executor façade) over a pull channel. It also owns
// retry-with-backoff for retriable failures and the restart path that
// rebuilds queue state from storage after a crash.
package scheduler
