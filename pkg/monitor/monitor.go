package monitor

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/metrics"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
)

// Config holds the monitor's retention parameters, spec §6 defaults in
// parens.
type Config struct {
	ViolationRetention      time.Duration // violation_retention_days(30)
	MaxViolationsPerSandbox int           // max_violations_per_sandbox(100)
}

// Monitor is the C10 component. It implements pkg/sandbox.Auditor without
// importing pkg/sandbox, records lifecycle events onto the shared broker,
// and answers the aggregate stats reads spec §4.9 names.
type Monitor struct {
	cfg    Config
	repo   storage.Repository
	broker *events.Broker
}

// New constructs a Monitor bound to repo for audit/violation persistence
// and broker for lifecycle event publication.
func New(cfg Config, repo storage.Repository, broker *events.Broker) *Monitor {
	if cfg.ViolationRetention <= 0 {
		cfg.ViolationRetention = 30 * 24 * time.Hour
	}
	if cfg.MaxViolationsPerSandbox <= 0 {
		cfg.MaxViolationsPerSandbox = 100
	}
	return &Monitor{cfg: cfg, repo: repo, broker: broker}
}

// RecordCreation audits a sandbox creation: a config digest, a
// suspicious-pattern check over the command and environment it carries,
// and an EventSandboxCreated publication.
func (m *Monitor) RecordCreation(sandboxID types.SandboxID, tenantID types.TenantID, userID types.UserID, config types.SandboxConfig) error {
	susp, reasons := suspicious(config.Command, config.Environment)
	record := &types.AuditRecord{
		ID:                types.NewExecutionID(),
		SandboxID:         sandboxID,
		UserID:            userID,
		TenantID:          tenantID,
		Timestamp:         time.Now(),
		Kind:              types.AuditKindCreation,
		ConfigDigest:      configDigest(config),
		Environment:       config.Environment,
		Suspicious:        susp,
		SuspiciousReasons: reasons,
	}
	if err := m.repo.SaveAudit(record); err != nil {
		return fmt.Errorf("save creation audit: %w", err)
	}
	if susp {
		log.WithComponent("monitor").Warn().
			Str("sandbox_id", string(sandboxID)).
			Strs("reasons", reasons).
			Msg("suspicious sandbox creation")
	}
	m.publish(events.EventSandboxCreated, sandboxID, "sandbox created")
	return nil
}

// RecordExecution audits one command execution inside an already-running
// sandbox: command, environment, a suspicious-pattern check, and an
// EventExecutionStarted publication.
func (m *Monitor) RecordExecution(sandboxID types.SandboxID, tenantID types.TenantID, userID types.UserID, command []string, env map[string]string) error {
	susp, reasons := suspicious(command, env)
	record := &types.AuditRecord{
		ID:                types.NewExecutionID(),
		SandboxID:         sandboxID,
		UserID:            userID,
		TenantID:          tenantID,
		Timestamp:         time.Now(),
		Kind:              types.AuditKindExecution,
		Command:           command,
		Environment:       env,
		Suspicious:        susp,
		SuspiciousReasons: reasons,
	}
	if err := m.repo.SaveAudit(record); err != nil {
		return fmt.Errorf("save execution audit: %w", err)
	}
	if susp {
		log.WithComponent("monitor").Warn().
			Str("sandbox_id", string(sandboxID)).
			Strs("reasons", reasons).
			Msg("suspicious command execution")
	}
	m.publish(events.EventExecutionStarted, sandboxID, "execution started")
	return nil
}

func (m *Monitor) publish(eventType events.EventType, sandboxID types.SandboxID, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: map[string]string{"sandbox_id": string(sandboxID)},
	})
}

// configDigest hashes the fields of config that determine its identity for
// audit purposes. Command and Environment are hashed too, even though
// they are also recorded in the clear on execution audits, so a creation
// record alone is enough to detect a later config drift.
func configDigest(config types.SandboxConfig) string {
	// json.Marshal errors are impossible here: every field is a plain
	// value type with no cycles, channels or funcs.
	blob, _ := json.Marshal(config)
	sum := sha256.Sum256(blob)
	return fmt.Sprintf("%x", sum)
}

// Cleanup prunes violation records older than the configured retention
// window. It should be called periodically (e.g. once a day) by whatever
// process owns the monitor's lifecycle.
func (m *Monitor) Cleanup() (int, error) {
	cutoff := time.Now().Add(-m.cfg.ViolationRetention)
	n, err := m.repo.PruneViolationsOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune violations: %w", err)
	}
	return n, nil
}

// SandboxMetrics aggregates everything known about one sandbox: its audit
// trail, and its resource and security violation history.
// ViolationCapReached is set once the combined count of resource and
// security violations reaches MaxViolationsPerSandbox; both lists are
// returned in full either way, since the Repository contract has no
// per-sandbox delete to enforce the cap on write.
type SandboxMetrics struct {
	SandboxID           types.SandboxID
	Audit               []*types.AuditRecord
	ResourceViolations  []*types.ResourceViolation
	SecurityViolations  []*types.SecurityViolation
	ViolationCapReached bool
}

// GetSandboxMetrics implements spec §4.9's get_sandbox_metrics.
func (m *Monitor) GetSandboxMetrics(sandboxID types.SandboxID) (SandboxMetrics, error) {
	audit, err := m.repo.ListAudit(sandboxID)
	if err != nil {
		return SandboxMetrics{}, fmt.Errorf("list audit: %w", err)
	}
	resourceViolations, err := m.repo.ListViolations(sandboxID)
	if err != nil {
		return SandboxMetrics{}, fmt.Errorf("list resource violations: %w", err)
	}
	securityViolations, err := m.repo.ListSecurityViolations(sandboxID)
	if err != nil {
		return SandboxMetrics{}, fmt.Errorf("list security violations: %w", err)
	}

	total := len(resourceViolations) + len(securityViolations)
	return SandboxMetrics{
		SandboxID:           sandboxID,
		Audit:               audit,
		ResourceViolations:  resourceViolations,
		SecurityViolations:  securityViolations,
		ViolationCapReached: total >= m.cfg.MaxViolationsPerSandbox,
	}, nil
}

// SystemMetrics is the process-wide snapshot get_system_metrics returns.
// Per-sandbox and per-task counters live in pkg/metrics's Prometheus
// registry (scraped over HTTP); this view covers what a caller asking
// in-process for "is the fabric itself healthy" needs without standing up
// a scrape.
type SystemMetrics struct {
	Uptime string
	Status string
}

// GetSystemMetrics implements spec §4.9's get_system_metrics.
func (m *Monitor) GetSystemMetrics() SystemMetrics {
	health := metrics.GetHealth()
	return SystemMetrics{Uptime: health.Uptime, Status: health.Status}
}
