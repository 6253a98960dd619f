package agentmodel

import "time"

// AuditEventType enumerates the kinds of audit events this module records. New event
// types are added here as new components need to record something significant; the
// store itself treats the value as an opaque string.
type AuditEventType string

const (
	EventWebhookReceived  AuditEventType = "WebhookReceived"
	EventPlanGeneration   AuditEventType = "PlanGeneration"
	EventStepExecuted     AuditEventType = "StepExecuted"
	EventSandboxCreated   AuditEventType = "SandboxCreated"
	EventSandboxCleanedUp AuditEventType = "SandboxCleanedUp"
	EventCommitPushed     AuditEventType = "CommitPushed"
	EventJobRetried       AuditEventType = "JobRetried"
	EventTaskTransitioned AuditEventType = "TaskTransitioned"
	EventOrphanCleanup    AuditEventType = "OrphanCleanup"
)

// AuditResult is the outcome tag attached to an AuditLog entry.
type AuditResult string

const (
	ResultSuccess AuditResult = "Success"
	ResultFailure AuditResult = "Failure"
	ResultSkipped AuditResult = "Skipped"
)

// AuditLog is an immutable, queryable record of a significant runtime occurrence.
// Append-only; the only mutation path is DeleteOlderThan retention pruning.
type AuditLog struct {
	ID            string
	EventType     AuditEventType
	Timestamp     time.Time // always UTC
	CorrelationID string
	Initiator     string
	Target        string
	Description   string
	Data          map[string]string
	Result        AuditResult
	DurationMs    int64
	Error         string
}
