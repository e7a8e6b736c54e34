// Package audit journals sync runs and delivery attempts to the database.
package audit

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mrlokans/weread2flomo/internal/database/audit"
	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

const maxFieldLength = 500

// Service provides high-level audit logging functionality. It implements
// syncer.Journal.
type Service struct {
	repo *audit.Repository
	now  func() time.Time
}

var _ syncer.Journal = (*Service)(nil)

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordDelivery writes one delivery attempt. Writes are synchronous so the
// events of a run keep their order.
func (s *Service) RecordDelivery(ctx context.Context, event syncer.DeliveryEvent) error {
	record := &entities.AuditEvent{
		RunID:       event.RunID,
		EventType:   entities.AuditEventDelivery,
		BookID:      event.BookID,
		BookmarkID:  event.BookmarkID,
		Fingerprint: event.Fingerprint,
		Description: truncate("Highlight from 《"+event.BookTitle+"》", maxFieldLength),
		Status:      deliveryStatus(event.Result.Status),
		ErrorMsg:    truncate(event.Result.Reason, maxFieldLength),
		CreatedAt:   event.At,
	}
	return s.repo.LogEvent(ctx, record)
}

type runMetadata struct {
	TotalBooks     int   `json:"total_books"`
	ProcessedBooks int   `json:"processed_books"`
	FailedBooks    int   `json:"failed_books"`
	Synced         int   `json:"synced"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"skipped"`
	Deferred       int   `json:"deferred"`
	SinkCalls      int   `json:"sink_calls"`
	LedgerSize     int   `json:"ledger_size"`
	DurationMS     int64 `json:"duration_ms"`
	QuotaExhausted bool  `json:"quota_exhausted"`
	DailyCapHit    bool  `json:"daily_cap_hit"`
	Cancelled      bool  `json:"cancelled"`
}

// RecordRun writes the summary of a finished run.
func (s *Service) RecordRun(ctx context.Context, stats syncer.RunStatistics) error {
	event := &entities.AuditEvent{
		RunID:     stats.RunID,
		EventType: entities.AuditEventSyncRun,
		Description: fmt.Sprintf("Synced %d, failed %d, skipped %d across %d/%d books",
			stats.Synced, stats.Failed, stats.Skipped, stats.ProcessedBooks, stats.TotalBooks),
		Status:    entities.AuditStatusSuccess,
		CreatedAt: stats.FinishedAt,
	}

	metadata := runMetadata{
		TotalBooks:     stats.TotalBooks,
		ProcessedBooks: stats.ProcessedBooks,
		FailedBooks:    stats.FailedBooks,
		Synced:         stats.Synced,
		Failed:         stats.Failed,
		Skipped:        stats.Skipped,
		Deferred:       stats.Deferred,
		SinkCalls:      stats.SinkCalls,
		LedgerSize:     stats.LedgerSize,
		DurationMS:     stats.Duration().Milliseconds(),
		QuotaExhausted: stats.QuotaExhausted,
		DailyCapHit:    stats.DailyCapHit,
		Cancelled:      stats.Cancelled,
	}
	if mdBytes, err := json.Marshal(metadata); err == nil {
		event.Metadata = string(mdBytes)
	}

	if len(stats.Errors) > 0 {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(stats.Errors[0], maxFieldLength)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	return s.repo.LogEvent(ctx, event)
}

// GetEvents retrieves paginated audit events, optionally of one type.
func (s *Service) GetEvents(ctx context.Context, eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, eventType, limit, offset)
}

func (s *Service) GetRunEvents(ctx context.Context, runID string) ([]entities.AuditEvent, error) {
	return s.repo.GetRunEvents(ctx, runID)
}

// DeliveriesToday counts today's delivery attempts by status, in local time.
func (s *Service) DeliveriesToday(ctx context.Context) (map[entities.AuditStatus]int64, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.repo.CountDeliveries(ctx, midnight)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func deliveryStatus(status entities.DeliveryStatus) entities.AuditStatus {
	switch status {
	case entities.DeliveryDelivered:
		return entities.AuditStatusSuccess
	case entities.DeliveryQuotaExhausted:
		return entities.AuditStatusSkipped
	default:
		return entities.AuditStatusFailed
	}
}

// truncate shortens a string to max length, counted in characters.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
