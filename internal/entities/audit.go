package entities

import "time"

type AuditEventType string

const (
	AuditEventSyncRun  AuditEventType = "sync_run"
	AuditEventDelivery AuditEventType = "delivery"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
	AuditStatusSkipped AuditStatus = "skipped"
)

type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	RunID       string         `gorm:"index;size:36" json:"run_id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	BookID      string         `gorm:"index;size:64" json:"book_id,omitempty"`
	BookmarkID  string         `gorm:"index;size:128" json:"bookmark_id,omitempty"`
	Fingerprint string         `gorm:"size:40" json:"fingerprint,omitempty"`
	Description string         `gorm:"size:500" json:"description"` // Human-readable summary
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
