package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/weread2flomo/internal/ai"
	"github.com/mrlokans/weread2flomo/internal/audit"
	"github.com/mrlokans/weread2flomo/internal/flomo"
	http_controllers "github.com/mrlokans/weread2flomo/internal/http"
	"github.com/mrlokans/weread2flomo/internal/ledger"
	"github.com/mrlokans/weread2flomo/internal/metrics"
	"github.com/mrlokans/weread2flomo/internal/render"
	"github.com/mrlokans/weread2flomo/internal/scheduler"
	"github.com/mrlokans/weread2flomo/internal/syncer"
	"github.com/mrlokans/weread2flomo/internal/weread"
)

// =============================================================================
// Sync Collaborators
// =============================================================================

var _ syncer.Source = (*weread.Client)(nil)
var _ syncer.Sink = (*flomo.Client)(nil)
var _ syncer.Ledger = (*ledger.Ledger)(nil)
var _ syncer.Renderer = (*render.Renderer)(nil)

// =============================================================================
// Enrichment
// =============================================================================

var _ ai.Completer = (*ai.OpenAIClient)(nil)
var _ ai.Completer = (*ai.AnthropicClient)(nil)
var _ syncer.TagGenerator = (*ai.TagGenerator)(nil)
var _ syncer.SummaryGenerator = (*ai.SummaryGenerator)(nil)

// =============================================================================
// Observability
// =============================================================================

var _ syncer.Journal = (*audit.Service)(nil)
var _ syncer.Metrics = (*metrics.Recorder)(nil)
var _ syncer.Metrics = metrics.Noop{}

// =============================================================================
// Scheduled Mode
// =============================================================================

var _ scheduler.Runner = (*syncer.Syncer)(nil)
var _ scheduler.AuditCleaner = (*audit.Service)(nil)
var _ http_controllers.SyncControl = (*scheduler.SyncScheduler)(nil)
var _ http_controllers.ProgressSource = (*syncer.Syncer)(nil)
var _ http_controllers.LedgerInfo = (*ledger.Ledger)(nil)
