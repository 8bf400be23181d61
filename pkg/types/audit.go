package types

import "time"

// AuditKind distinguishes the two events the spec requires an audit
// record for.
type AuditKind string

const (
	AuditKindCreation  AuditKind = "creation"
	AuditKindExecution AuditKind = "execution"
)

// AuditRecord is an immutable log entry describing a security-relevant
// event at the time it occurred. Audit is write-only from the core's
// perspective; Monitoring is the read path. The record is never redacted
// here — redaction, if needed, is a presentation concern for a downstream
// consumer.
type AuditRecord struct {
	ID                ExecutionID // reuses execution id space for uniqueness; unrelated to execution success
	SandboxID         SandboxID
	UserID            UserID
	TenantID          TenantID
	Timestamp         time.Time
	Kind              AuditKind
	ConfigDigest      string   // set for AuditKindCreation
	Command           []string // set for AuditKindExecution
	Environment       map[string]string
	Suspicious        bool
	SuspiciousReasons []string
}

// ToolDescriptor is what the external Registry collaborator returns for a
// ToolID lookup: everything the fabric needs to build a SandboxConfig and
// Command without knowing how the tool is catalogued.
type ToolDescriptor struct {
	ToolID                ToolID
	Version               string
	Image                 string // consulted when a tool allows Container isolation
	CommandTemplate       []string
	AllowedIsolationTypes []IsolationType
	DefaultResourceLimits ResourceLimits
	DefaultSecurityPolicy SecurityPolicy
}
