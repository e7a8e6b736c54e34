package syncer

import (
	"fmt"
	"sync"
	"time"
)

const (
	FeatureAITags    = "ai_tags"
	FeatureAISummary = "ai_summary"
	FeatureNotes     = "notes"
)

type BookOutcome string

const (
	BookOutcomeDone    BookOutcome = "done"
	BookOutcomeAborted BookOutcome = "aborted"
	BookOutcomeFailed  BookOutcome = "failed"
)

type FeatureStat struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate is a percentage, zero when nothing was attempted.
func (f FeatureStat) SuccessRate() float64 {
	if f.Attempts == 0 {
		return 0
	}
	return float64(f.Successes) / float64(f.Attempts) * 100
}

type BookResult struct {
	BookID      string      `json:"book_id"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Bookmarks   int         `json:"bookmarks"`
	Eligible    int         `json:"eligible"`
	Delivered   int         `json:"delivered"`
	Failed      int         `json:"failed"`
	Outcome     BookOutcome `json:"outcome"`
	AbortReason string      `json:"abort_reason,omitempty"`

	// SinkExhausted is set when the sink refused a delivery for lack of quota.
	SinkExhausted bool `json:"sink_exhausted,omitempty"`
}

// SyncedBook is recorded for every book that delivered at least one highlight.
type SyncedBook struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Count  int    `json:"count"`
}

type RunStatistics struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	TotalBooks     int `json:"total_books"`
	ProcessedBooks int `json:"processed_books"`
	FailedBooks    int `json:"failed_books"`

	Synced       int            `json:"synced"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Deferred     int            `json:"deferred"` // Eligible but cut by the run quota
	SkipByReason map[string]int `json:"skip_by_reason"`

	Features    map[string]FeatureStat `json:"features"`
	Books       []BookResult           `json:"books"`
	SyncedBooks []SyncedBook           `json:"synced_books"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	SinkCalls      int  `json:"sink_calls"`
	SinkLimit      int  `json:"sink_limit"`
	LedgerSize     int  `json:"ledger_size"`
	QuotaExhausted bool `json:"quota_exhausted"`
	DailyCapHit    bool `json:"daily_cap_hit"`
	Cancelled      bool `json:"cancelled"`
}

func (s RunStatistics) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s RunStatistics) Feature(name string) FeatureStat {
	return s.Features[name]
}

// clone returns a deep copy so the caller can read it while a run continues.
func (s RunStatistics) clone() RunStatistics {
	out := s
	out.SkipByReason = make(map[string]int, len(s.SkipByReason))
	for k, v := range s.SkipByReason {
		out.SkipByReason[k] = v
	}
	out.Features = make(map[string]FeatureStat, len(s.Features))
	for k, v := range s.Features {
		out.Features[k] = v
	}
	out.Books = append([]BookResult(nil), s.Books...)
	out.SyncedBooks = append([]SyncedBook(nil), s.SyncedBooks...)
	out.Errors = append([]string(nil), s.Errors...)
	out.Warnings = append([]string(nil), s.Warnings...)
	return out
}

// recorder guards the statistics of the run in progress.
type recorder struct {
	mu    sync.Mutex
	stats RunStatistics
}

func newRecorder(runID string, startedAt time.Time) *recorder {
	return &recorder{stats: RunStatistics{
		RunID:        runID,
		StartedAt:    startedAt,
		SkipByReason: map[string]int{},
		Features:     map[string]FeatureStat{},
	}}
}

func (r *recorder) update(fn func(s *RunStatistics)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

func (r *recorder) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.update(func(s *RunStatistics) { s.Errors = append(s.Errors, msg) })
}

func (r *recorder) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.update(func(s *RunStatistics) { s.Warnings = append(s.Warnings, msg) })
}

func (r *recorder) feature(name string, ok bool) {
	r.update(func(s *RunStatistics) {
		stat := s.Features[name]
		stat.Attempts++
		if ok {
			stat.Successes++
		}
		s.Features[name] = stat
	})
}

func (r *recorder) skipped(reason string) {
	r.update(func(s *RunStatistics) {
		s.Skipped++
		s.SkipByReason[reason]++
	})
}

func (r *recorder) snapshot() RunStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.clone()
}
