package results

import (
	"fmt"
	"time"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/metrics"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
)

// Store is the C9 component: store/get/list/cleanup over persisted
// ExecutionResults. Results must be durably persisted before the executor
// façade returns success to its caller (spec §4.8's invariant), so Store
// never buffers a write in memory; every call is a synchronous round trip
// to the Repository.
type Store struct {
	repo   storage.Repository
	broker *events.Broker
}

// New constructs a Store bound to repo.
func New(repo storage.Repository, broker *events.Broker) *Store {
	return &Store{repo: repo, broker: broker}
}

// Store persists result, rejecting a second write for the same
// ExecutionID with types.ErrAlreadyStored.
func (s *Store) Store(result *types.ExecutionResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	if err := s.repo.SaveExecutionResult(result); err != nil {
		return err
	}
	metrics.ResultsStoredTotal.Inc()
	return nil
}

// Get returns the stored result for id, or types.ErrTaskNotFound-shaped
// behavior from the Repository if none exists.
func (s *Store) Get(id types.ExecutionID) (*types.ExecutionResult, error) {
	result, err := s.repo.GetExecutionResult(id)
	if err != nil {
		return nil, fmt.Errorf("get execution result: %w", err)
	}
	return result, nil
}

// List returns results matching filter.
func (s *Store) List(filter types.ResultFilter) ([]*types.ExecutionResult, error) {
	results, err := s.repo.ListExecutionResults(filter)
	if err != nil {
		return nil, fmt.Errorf("list execution results: %w", err)
	}
	return results, nil
}

// Cleanup deletes results older than cutoff, for the retention sweep.
func (s *Store) Cleanup(cutoff time.Time) (int, error) {
	n, err := s.repo.DeleteExecutionResultsOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old execution results: %w", err)
	}
	if n > 0 {
		log.WithComponent("results").Info().Int("count", n).Msg("pruned stale execution results")
	}
	return n, nil
}
