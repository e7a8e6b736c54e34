package syncer

import (
	"context"
	"time"

	"github.com/mrlokans/weread2flomo/internal/entities"
)

// Source is the reading platform. Chapters must be requested only after the
// bookmark list of the same book, the platform resets the session otherwise.
type Source interface {
	CheckSession(ctx context.Context) error
	Books(ctx context.Context) ([]entities.Book, error)
	BookInfo(ctx context.Context, bookID string) (*entities.BookInfo, error)
	Bookmarks(ctx context.Context, bookID string) ([]entities.Bookmark, error)
	Chapters(ctx context.Context, bookID string) ([]entities.Chapter, error)
	Reviews(ctx context.Context, bookID string) ([]entities.Review, error)
}

// Sink accepts rendered notes and tracks how many calls it has issued today.
type Sink interface {
	Deliver(ctx context.Context, content string) entities.DeliveryResult
	CallCount() int
	DailyLimit() int
}

type Ledger interface {
	Contains(id string) bool
	ContainsFingerprint(fp string) bool
	RecordDelivery(id, fp string)
	Persist() error
	Len() int
}

type TagGenerator interface {
	GenerateTags(ctx context.Context, title, author, text string) ([]string, error)
}

type SummaryGenerator interface {
	// ShouldSummarize reports whether text qualifies for a summary at all.
	ShouldSummarize(text string) bool
	Summarize(ctx context.Context, title, author, text string) (string, error)
}

type Renderer interface {
	Render(note entities.Note) (string, error)
}

// DeliveryEvent describes one delivery attempt for the journal.
type DeliveryEvent struct {
	RunID       string
	BookID      string
	BookTitle   string
	BookmarkID  string
	Fingerprint string
	Result      entities.DeliveryResult
	At          time.Time
}

// Journal keeps an audit trail. Its failures never affect a run.
type Journal interface {
	RecordDelivery(ctx context.Context, event DeliveryEvent) error
	RecordRun(ctx context.Context, stats RunStatistics) error
}

type Metrics interface {
	DeliveryCompleted(status entities.DeliveryStatus)
	BookmarkSkipped(reason string)
	FeatureAttempted(feature string, ok bool)
	BookProcessed(outcome string, duration time.Duration)
	RunCompleted(duration time.Duration, ledgerSize int)
}

type noopMetrics struct{}

func (noopMetrics) DeliveryCompleted(entities.DeliveryStatus) {}
func (noopMetrics) BookmarkSkipped(string)                    {}
func (noopMetrics) FeatureAttempted(string, bool)             {}
func (noopMetrics) BookProcessed(string, time.Duration)       {}
func (noopMetrics) RunCompleted(time.Duration, int)           {}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
