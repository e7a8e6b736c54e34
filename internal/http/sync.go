package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/weread2flomo/internal/scheduler"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

type LedgerStatus struct {
	Path         string     `json:"path"`
	Bookmarks    int        `json:"bookmarks"`
	Fingerprints int        `json:"fingerprints"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
}

type SyncStatusResponse struct {
	Scheduled bool                  `json:"scheduled"`
	Syncing   bool                  `json:"syncing"`
	NextRun   *time.Time            `json:"next_run,omitempty"`
	Current   *syncer.RunStatistics `json:"current,omitempty"`
	LastRun   *scheduler.RunResult  `json:"last_run,omitempty"`
	Ledger    *LedgerStatus         `json:"ledger,omitempty"`
}

type SyncController struct {
	scheduler SyncControl
	progress  ProgressSource
	ledger    LedgerInfo
}

func NewSyncController(scheduler SyncControl, progress ProgressSource, ledger LedgerInfo) *SyncController {
	return &SyncController{
		scheduler: scheduler,
		progress:  progress,
		ledger:    ledger,
	}
}

// Status reports the scheduler state, the run in progress and the last run
// GET /api/sync/status
func (sc *SyncController) Status(c *gin.Context) {
	var resp SyncStatusResponse

	if sc.scheduler != nil {
		resp.Scheduled = sc.scheduler.IsRunning()
		resp.Syncing = sc.scheduler.IsSyncing()
		resp.NextRun = sc.scheduler.NextRunTime()
		resp.LastRun = sc.scheduler.LastResult()
	}
	if sc.progress != nil {
		if current, ok := sc.progress.Progress(); ok {
			resp.Current = &current
		}
	}
	if sc.ledger != nil {
		status := &LedgerStatus{
			Path:         sc.ledger.Path(),
			Bookmarks:    sc.ledger.Len(),
			Fingerprints: sc.ledger.FingerprintCount(),
		}
		if last := sc.ledger.LastSync(); !last.IsZero() {
			status.LastSync = &last
		}
		resp.Ledger = status
	}

	c.JSON(http.StatusOK, resp)
}

// Run starts a sync pass in the background
// POST /api/sync/run
func (sc *SyncController) Run(c *gin.Context) {
	if sc.scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}

	if err := sc.scheduler.RunNow(); err != nil {
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			respondError(c, http.StatusConflict, "sync already in progress")
			return
		}
		respondInternalError(c, err, "start sync")
		return
	}

	respondAccepted(c, "sync started", nil)
}
