package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
)

type memRepo struct {
	mu                 sync.Mutex
	audit              []*types.AuditRecord
	resourceViolations []*types.ResourceViolation
	securityViolations []*types.SecurityViolation
	prunedCutoff       time.Time
}

func (r *memRepo) SaveTask(*types.Task) error                                  { return nil }
func (r *memRepo) LoadTasksByStatus(types.TaskStatus) ([]*types.Task, error)    { return nil, nil }
func (r *memRepo) GetTask(types.TaskID) (*types.Task, error)                   { return nil, nil }
func (r *memRepo) DeleteTask(types.TaskID) error                               { return nil }
func (r *memRepo) SaveExecutionResult(*types.ExecutionResult) error            { return nil }
func (r *memRepo) GetExecutionResult(types.ExecutionID) (*types.ExecutionResult, error) {
	return nil, nil
}
func (r *memRepo) ListExecutionResults(types.ResultFilter) ([]*types.ExecutionResult, error) {
	return nil, nil
}
func (r *memRepo) DeleteExecutionResultsOlderThan(time.Time) (int, error) { return 0, nil }

func (r *memRepo) SaveAudit(record *types.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, record)
	return nil
}

func (r *memRepo) ListAudit(sandboxID types.SandboxID) ([]*types.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.AuditRecord
	for _, a := range r.audit {
		if a.SandboxID == sandboxID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) SaveSandboxMetric(types.SandboxID, string, float64, string, time.Time) error {
	return nil
}

func (r *memRepo) SaveViolation(v *types.ResourceViolation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resourceViolations = append(r.resourceViolations, v)
	return nil
}

func (r *memRepo) SaveSecurityViolation(v *types.SecurityViolation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.securityViolations = append(r.securityViolations, v)
	return nil
}

func (r *memRepo) ListViolations(sandboxID types.SandboxID) ([]*types.ResourceViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ResourceViolation
	for _, v := range r.resourceViolations {
		if v.SandboxID == sandboxID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memRepo) ListSecurityViolations(sandboxID types.SandboxID) ([]*types.SecurityViolation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.SecurityViolation
	for _, v := range r.securityViolations {
		if v.SandboxID == sandboxID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memRepo) PruneViolationsOlderThan(cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunedCutoff = cutoff
	return 0, nil
}

func (r *memRepo) Close() error { return nil }

var _ storage.Repository = (*memRepo)(nil)

func TestMonitor_RecordCreationSavesAudit(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{}, repo, events.NewBroker())
	sandboxID := types.NewSandboxID()

	require.NoError(t, m.RecordCreation(sandboxID, "tenant-a", "user-a", types.SandboxConfig{
		Command: []string{"/bin/echo", "hi"},
	}))

	audit, err := m.repo.ListAudit(sandboxID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, types.AuditKindCreation, audit[0].Kind)
	assert.False(t, audit[0].Suspicious)
	assert.NotEmpty(t, audit[0].ConfigDigest)
}

func TestMonitor_RecordExecutionFlagsDangerousProgram(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{}, repo, events.NewBroker())
	sandboxID := types.NewSandboxID()

	require.NoError(t, m.RecordExecution(sandboxID, "tenant-a", "user-a", []string{"/bin/rm", "-rf", "/"}, nil))

	audit, err := m.repo.ListAudit(sandboxID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].Suspicious)
	assert.NotEmpty(t, audit[0].SuspiciousReasons)
}

func TestMonitor_RecordExecutionFlagsSensitiveEnv(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{}, repo, events.NewBroker())
	sandboxID := types.NewSandboxID()

	require.NoError(t, m.RecordExecution(sandboxID, "tenant-a", "user-a", []string{"/usr/bin/env"}, map[string]string{
		"DB_PASSWORD": "hunter2",
	}))

	audit, err := m.repo.ListAudit(sandboxID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].Suspicious)
}

func TestMonitor_RecordExecutionFlagsPathTraversal(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{}, repo, events.NewBroker())
	sandboxID := types.NewSandboxID()

	require.NoError(t, m.RecordExecution(sandboxID, "tenant-a", "user-a", []string{"/bin/cat", "../../etc/shadow"}, nil))

	audit, err := m.repo.ListAudit(sandboxID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].Suspicious)
}

func TestMonitor_GetSandboxMetricsAggregates(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{MaxViolationsPerSandbox: 2}, repo, events.NewBroker())
	sandboxID := types.NewSandboxID()

	require.NoError(t, repo.SaveViolation(&types.ResourceViolation{SandboxID: sandboxID, ResourceType: types.ResourceMemory}))
	require.NoError(t, repo.SaveViolation(&types.ResourceViolation{SandboxID: sandboxID, ResourceType: types.ResourceCPU}))

	snapshot, err := m.GetSandboxMetrics(sandboxID)
	require.NoError(t, err)
	assert.Len(t, snapshot.ResourceViolations, 2)
	assert.True(t, snapshot.ViolationCapReached)
}

func TestMonitor_CleanupPrunesByRetention(t *testing.T) {
	repo := &memRepo{}
	m := New(Config{ViolationRetention: time.Hour}, repo, events.NewBroker())

	_, err := m.Cleanup()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), repo.prunedCutoff, time.Second)
}
