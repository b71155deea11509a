package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType names a lifecycle event worth keeping a structured record of.
type AuditEventType string

const (
	AuditGenerationStart    AuditEventType = "generation_start"
	AuditGenerationComplete AuditEventType = "generation_complete"
	AuditGenerationError    AuditEventType = "generation_error"
	AuditAgentComplete      AuditEventType = "agent_complete"
	AuditAgentError         AuditEventType = "agent_error"

	AuditApprovalRequested AuditEventType = "approval_requested"
	AuditApprovalDecided   AuditEventType = "approval_decided"
	AuditApprovalRepeated  AuditEventType = "approval_repeated"
	AuditApprovalSettled   AuditEventType = "approval_settled"
	AuditApprovalExpired   AuditEventType = "approval_expired"

	AuditWorkItemCreated AuditEventType = "work_item_created"
	AuditWorkItemFailed  AuditEventType = "work_item_failed"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Type     AuditEventType
	Subject  string // approval id, analysis id or work item title
	Success  bool
	Duration time.Duration
	Message  string
	Fields   map[string]interface{}
}

// Audit writes an event to the audit category as a structured entry.
func Audit(e AuditEvent) {
	l := Get(CategoryAudit).sugar.Desugar()
	fields := make([]zap.Field, 0, 4+len(e.Fields))
	fields = append(fields,
		zap.String("event", string(e.Type)),
		zap.String("subject", e.Subject),
		zap.Bool("success", e.Success),
	)
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Success {
		l.Info(msg, fields...)
	} else {
		l.Warn(msg, fields...)
	}
}
