package http

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/audit"
	"github.com/mrlokans/weread2flomo/internal/database"
	"github.com/mrlokans/weread2flomo/internal/scheduler"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

// SyncControl is the part of the scheduler the status endpoints use.
type SyncControl interface {
	RunNow() error
	IsRunning() bool
	IsSyncing() bool
	NextRunTime() *time.Time
	LastResult() *scheduler.RunResult
}

// ProgressSource reports statistics of the run in progress.
type ProgressSource interface {
	Progress() (syncer.RunStatistics, bool)
}

type LedgerInfo interface {
	Path() string
	Len() int
	FingerprintCount() int
	LastSync() time.Time
}

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	Scheduler SyncControl
	Progress  ProgressSource
	Ledger    LedgerInfo

	// Optional; endpoints backed by them report "not configured" when nil.
	Database     *database.Database
	AuditService *audit.Service

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	Logger  zerolog.Logger
	Version string
}
