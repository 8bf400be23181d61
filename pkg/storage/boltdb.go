package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/forgelabs/fabric/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks      = []byte("tasks")
	bucketResults    = []byte("execution_results")
	bucketAudit      = []byte("audit")
	bucketMetrics    = []byte("sandbox_metrics")
	bucketViolations = []byte("sandbox_violations")
	bucketSecViolations = []byte("sandbox_security_violations")
)

// BoltStore implements Repository using BoltDB, one bucket per entity, the
// way the teacher's BoltStore lays out Warren's cluster state.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fabric.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTasks, bucketResults, bucketAudit, bucketMetrics,
			bucketViolations, bucketSecViolations,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// --- Tasks ---

func (s *BoltStore) SaveTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.TaskID), data)
	})
}

func (s *BoltStore) GetTask(id types.TaskID) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrTaskNotFound, id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) LoadTasksByStatus(status types.TaskStatus) ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.Status == status {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) DeleteTask(id types.TaskID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

// --- Execution results ---

func (s *BoltStore) SaveExecutionResult(result *types.ExecutionResult) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b.Get([]byte(result.ExecutionID)) != nil {
			return types.ErrAlreadyStored
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(result.ExecutionID), data)
	})
}

func (s *BoltStore) GetExecutionResult(id types.ExecutionID) (*types.ExecutionResult, error) {
	var result types.ExecutionResult
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResults).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("execution result not found: %s", id)
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BoltStore) ListExecutionResults(filter types.ResultFilter) ([]*types.ExecutionResult, error) {
	var results []*types.ExecutionResult
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).ForEach(func(k, v []byte) error {
			var r types.ExecutionResult
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if filter.Success != nil && r.Success != *filter.Success {
				return nil
			}
			if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
				return nil
			}
			if !filter.Until.IsZero() && r.CreatedAt.After(filter.Until) {
				return nil
			}
			results = append(results, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *BoltStore) DeleteExecutionResultsOlderThan(cutoff time.Time) (int, error) {
	var toDelete [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).ForEach(func(k, v []byte) error {
			var r types.ExecutionResult
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.CreatedAt.Before(cutoff) {
				key := append([]byte(nil), k...)
				toDelete = append(toDelete, key)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return len(toDelete), err
}

// --- Audit ---

func (s *BoltStore) SaveAudit(record *types.AuditRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s", record.SandboxID, record.ID)
		return tx.Bucket(bucketAudit).Put([]byte(key), data)
	})
}

func (s *BoltStore) ListAudit(sandboxID types.SandboxID) ([]*types.AuditRecord, error) {
	var records []*types.AuditRecord
	prefix := []byte(string(sandboxID) + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r types.AuditRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			records = append(records, &r)
		}
		return nil
	})
	return records, err
}

// --- Sandbox metrics ---

func (s *BoltStore) SaveSandboxMetric(sandboxID types.SandboxID, name string, value float64, unit string, ts time.Time) error {
	type metricRecord struct {
		Name  string
		Value float64
		Unit  string
		Time  time.Time
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(metricRecord{name, value, unit, ts})
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s/%d", sandboxID, name, ts.UnixNano())
		return tx.Bucket(bucketMetrics).Put([]byte(key), data)
	})
}

// --- Violations ---

func (s *BoltStore) SaveViolation(v *types.ResourceViolation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%d", v.SandboxID, v.Timestamp.UnixNano())
		return tx.Bucket(bucketViolations).Put([]byte(key), data)
	})
}

func (s *BoltStore) SaveSecurityViolation(v *types.SecurityViolation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%d", v.SandboxID, v.Timestamp.UnixNano())
		return tx.Bucket(bucketSecViolations).Put([]byte(key), data)
	})
}

func (s *BoltStore) ListViolations(sandboxID types.SandboxID) ([]*types.ResourceViolation, error) {
	var out []*types.ResourceViolation
	prefix := []byte(string(sandboxID) + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketViolations).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r types.ResourceViolation
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) ListSecurityViolations(sandboxID types.SandboxID) ([]*types.SecurityViolation, error) {
	var out []*types.SecurityViolation
	prefix := []byte(string(sandboxID) + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSecViolations).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r types.SecurityViolation
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) PruneViolationsOlderThan(cutoff time.Time) (int, error) {
	n := 0
	for _, bucket := range [][]byte{bucketViolations, bucketSecViolations} {
		var toDelete [][]byte
		err := s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
				var ts struct {
					Timestamp time.Time
				}
				if err := json.Unmarshal(v, &ts); err != nil {
					return err
				}
				if ts.Timestamp.Before(cutoff) {
					toDelete = append(toDelete, append([]byte(nil), k...))
				}
				return nil
			})
		})
		if err != nil {
			return n, err
		}
		err = s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucket)
			for _, k := range toDelete {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return n, err
		}
		n += len(toDelete)
	}
	return n, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
