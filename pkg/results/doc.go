// Package results implements the C9 Result Manager (spec §4.8): a thin
// store/get/list/cleanup façade over storage.Repository's execution
// result bucket. At-most-once-per-ExecutionID is enforced by the
// Repository implementation itself (BoltStore rejects a second write with
// ErrAlreadyStored); this package adds a results-stored metric and a log
// line for each retention sweep that prunes results.
package results
