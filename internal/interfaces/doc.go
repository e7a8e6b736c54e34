// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Sync Collaborators (internal/syncer/interfaces.go)
//
//   - Source: the reading platform (internal/weread)
//   - Sink: the note service with its daily call limit (internal/flomo)
//   - Ledger: delivered bookmark ids and fingerprints (internal/ledger)
//   - Renderer: note content from templates (internal/render)
//
// ## Enrichment
//
//   - Completer: one LLM prompt in, one answer out (internal/ai/completer.go)
//   - TagGenerator, SummaryGenerator: optional per-highlight enrichment (internal/ai)
//
// ## Observability
//
//   - Journal: audit trail of runs and deliveries (internal/audit)
//   - Metrics: prometheus counters (internal/metrics)
//
// ## Scheduled Mode
//
//   - Runner, AuditCleaner: what the cron scheduler drives (internal/scheduler)
//   - SyncControl, ProgressSource, LedgerInfo: what the status API reads (internal/http)
//
// # Adding a New Note Sink
//
// To deliver to another note service:
//
//  1. Implement Sink in a new package:
//
//     type Client struct {
//         httpClient *http.Client
//     }
//
//     func (c *Client) Deliver(ctx context.Context, content string) entities.DeliveryResult
//     func (c *Client) CallCount() int
//     func (c *Client) DailyLimit() int
//
//  2. Add a compile-time check to checks.go:
//
//     var _ syncer.Sink = (*Client)(nil)
//
//  3. Construct it in internal/entrypoint/app.go
//
// Deliver never returns an error. Transport failures, non-2xx statuses and
// application error codes all become DeliveryFailure results, and a call made
// after the daily limit is reached returns QuotaExhausted without any I/O.
//
// # Adding a New LLM Provider
//
//  1. Implement Completer in internal/ai/:
//
//     func (c *GeminiClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
//
//     var _ ai.Completer = (*GeminiClient)(nil)
//
//  2. Add the provider name to internal/config and pick it in newCompleter
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
