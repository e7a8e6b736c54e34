package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/fingerprint"
	"github.com/mrlokans/weread2flomo/internal/ledger"
)

func TestRun_IsIdempotentAcrossRuns(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "first passage", "second passage")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, DaysLimit: 7})

	first, err := h.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Synced)

	reloaded, err := ledger.Load(h.ledger.Path())
	require.NoError(t, err)
	sink := newFakeSink(100)
	second := newHarnessWithLedger(source, sink, reloaded, Options{MaxHighlights: 50, DaysLimit: 7})

	stats, err := second.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Synced)
	assert.Equal(t, 0, sink.CallCount())
	assert.Equal(t, 2, stats.SkipByReason[VerdictAlreadySynced.String()])
}

func TestRun_ContentDuplicatesDeliveredOnce(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "A", "B", "A ")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, 2, h.sink.CallCount())
	assert.Equal(t, 2, h.ledger.Len())
	assert.Equal(t, 2, h.ledger.FingerprintCount())
	assert.True(t, h.ledger.Contains("b1-1"))
	assert.True(t, h.ledger.Contains("b1-2"))
	assert.False(t, h.ledger.Contains("b1-3"))
	assert.Equal(t, 1, stats.SkipByReason[VerdictDuplicateContent.String()])
}

func TestRun_DuplicateAcrossRunsUnderNewID(t *testing.T) {
	l := ledger.New(t.TempDir() + "/l.json")
	l.RecordDelivery("old-id", fingerprint.Of("Same text."))

	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "same TEXT")
	h := newHarnessWithLedger(source, newFakeSink(100), l, Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Synced)
	assert.Equal(t, 1, stats.SkipByReason[VerdictDuplicateContent.String()])
}

func TestRun_QuotaStopsBeforeNextBook(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	source.bookmarks["b2"] = marks("b2", "three")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 1})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Deferred)
	assert.True(t, stats.QuotaExhausted)
	assert.False(t, source.called("bookmarks:b2"), "second book must not be fetched")
	assert.False(t, source.called("info:b2"))
}

func TestRun_QuotaSpansBooks(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"), book("b3"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	source.bookmarks["b2"] = marks("b2", "three", "four")
	source.bookmarks["b3"] = marks("b3", "five")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 3})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Synced)
	assert.Equal(t, []string{"one", "two", "three"}, h.sink.contents)
	assert.False(t, source.called("bookmarks:b3"))
	require.Len(t, stats.SyncedBooks, 2)
	assert.Equal(t, SyncedBook{Title: "Book b2", Author: "Author b2", Count: 1}, stats.SyncedBooks[1])
}

func TestRun_FailFastWithinBook(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "one", "two", "three")
	sink := newFakeSink(100)
	sink.failOn[2] = "HTTP 500"
	h := newHarness(t, source, sink, Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, sink.CallCount(), "third bookmark is never attempted")
	assert.True(t, h.ledger.Contains("b1-1"))
	assert.False(t, h.ledger.Contains("b1-2"))
	assert.False(t, h.ledger.Contains("b1-3"))

	require.Len(t, stats.Books, 1)
	assert.Equal(t, BookOutcomeAborted, stats.Books[0].Outcome)
	assert.Equal(t, 1, stats.ProcessedBooks)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "HTTP 500")
}

func TestRun_FailureMovesOnToNextBook(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	source.bookmarks["b2"] = marks("b2", "three")
	sink := newFakeSink(100)
	sink.failOn[1] = "timeout"
	h := newHarness(t, source, sink, Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, []string{"three"}, sink.contents)
}

func TestRun_DailyLimitStopsRun(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"))
	source.bookmarks["b1"] = marks("b1", "one", "two", "three")
	source.bookmarks["b2"] = marks("b2", "four")
	h := newHarness(t, source, newFakeSink(2), Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Synced)
	assert.True(t, stats.DailyCapHit)
	assert.Equal(t, 2, stats.SinkCalls)
	assert.Equal(t, 2, stats.SinkLimit)
	assert.False(t, source.called("bookmarks:b2"))
}

func TestRun_SinkRefusalStopsRunBelowLimit(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	source.bookmarks["b2"] = marks("b2", "three")
	sink := newFakeSink(100)
	sink.refuseAfter = 1
	h := newHarness(t, source, sink, Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.True(t, stats.DailyCapHit)
	assert.Less(t, sink.CallCount(), sink.DailyLimit())
	assert.False(t, source.called("bookmarks:b2"), "run must stop once the sink refuses")
	require.Len(t, stats.Books, 1)
	assert.True(t, stats.Books[0].SinkExhausted)
	assert.False(t, h.ledger.Contains("b1-2"))
}

func TestRun_SessionFailureIsFatal(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.sessionErr = errors.New("cookie expired")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	require.NotNil(t, stats)
	assert.Equal(t, []string{"session"}, source.Calls())
	assert.Equal(t, 0, h.sink.CallCount())
}

func TestRun_BookErrorsAreIsolated(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"), book("b3"))
	source.bookmarkErr["b1"] = errors.New("HTTP 502")
	source.panicOn = "b2"
	source.bookmarks["b3"] = marks("b3", "survivor")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 2, stats.FailedBooks)
	assert.Equal(t, 1, stats.ProcessedBooks)
	assert.Equal(t, 3, stats.TotalBooks)
	require.Len(t, stats.Errors, 2)
	assert.Contains(t, stats.Errors[0], "HTTP 502")
	assert.Contains(t, stats.Errors[1], "panic")
}

func TestRun_PanicAfterDeliveryKeepsPerBookCount(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	l := ledger.New(t.TempDir() + "/l.json")
	s := New(source, newFakeSink(100), l, &panickingRenderer{panicAt: 2}, zeroLogger(), Options{MaxHighlights: 50})
	s.SetSleeper((&sleepRecorder{}).sleep)
	s.SetClock(func() time.Time { return fixedNow })

	stats, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.FailedBooks)
	require.Len(t, stats.SyncedBooks, 1)
	assert.Equal(t, SyncedBook{Title: "Book b1", Author: "Author b1", Count: 1}, stats.SyncedBooks[0])
	assert.True(t, l.Contains("b1-1"))
}

func TestRun_StartupWarningReportedOnce(t *testing.T) {
	source := newFakeSource(book("b1"))
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50})
	h.syncer.AddStartupWarning("ledger unreadable, starting empty: bad json")

	first, err := h.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, first.Warnings, "ledger unreadable, starting empty: bad json")

	second, err := h.syncer.Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, second.Warnings, "ledger unreadable, starting empty: bad json")
}

func TestRun_FetchOrdering(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "one")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, SyncNotes: true})

	_, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"session", "books", "info:b1", "bookmarks:b1", "chapters:b1", "reviews:b1"}, source.Calls())
}

func TestRun_NoBookmarksSkipsChapterFetch(t *testing.T) {
	source := newFakeSource(book("b1"))
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, SyncNotes: true})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Synced)
	assert.Equal(t, 1, stats.ProcessedBooks)
	assert.False(t, source.called("chapters:b1"))
}

func TestRun_DaysWindow(t *testing.T) {
	source := newFakeSource(book("b1"))
	bookmarks := marks("b1", "recent", "ancient", "undated")
	bookmarks[1].CreatedAt = fixedNow.AddDate(0, 0, -30).Unix()
	bookmarks[2].CreatedAt = 0
	source.bookmarks["b1"] = bookmarks
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, DaysLimit: 7})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, []string{"recent", "undated"}, h.sink.contents)
	assert.Equal(t, 1, stats.SkipByReason[VerdictOutsideWindow.String()])
}

func TestRun_Enrichment(t *testing.T) {
	idx := 3
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "a long enough passage")
	source.chapters["b1"] = []entities.Chapter{{UID: 1, Index: &idx, Title: "Habits"}}
	source.reviews["b1"] = []entities.Review{{BookmarkID: "b1-1", Content: "my thought"}}

	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, SyncNotes: true})
	h.syncer.SetTagGenerator(fakeTags{tags: []string{"#habit"}})
	h.syncer.SetSummaryGenerator(fakeSummaries{minLength: 5, summary: "short"})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.sink.contents, 1)
	assert.Equal(t, "a long enough passage | chapter=Chapter 3 - Habits | note=my thought | tags=#habit | summary=short", h.sink.contents[0])
	assert.Equal(t, FeatureStat{Attempts: 1, Successes: 1}, stats.Feature(FeatureAITags))
	assert.Equal(t, FeatureStat{Attempts: 1, Successes: 1}, stats.Feature(FeatureAISummary))
	assert.Equal(t, FeatureStat{Attempts: 1, Successes: 1}, stats.Feature(FeatureNotes))
}

func TestRun_EnrichmentFailuresDegrade(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "passage", "tiny")

	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50})
	h.syncer.SetTagGenerator(fakeTags{err: errors.New("rate limited")})
	h.syncer.SetSummaryGenerator(fakeSummaries{minLength: 5, err: errors.New("model offline")})

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, []string{"passage", "tiny"}, h.sink.contents)
	assert.Equal(t, FeatureStat{Attempts: 2, Successes: 0}, stats.Feature(FeatureAITags))
	assert.Equal(t, FeatureStat{Attempts: 1, Successes: 0}, stats.Feature(FeatureAISummary), "short text is not summarized")
	assert.Len(t, stats.Warnings, 3)
	assert.Empty(t, stats.Errors)
}

func TestRun_BookDelayOnlyAfterDeliveries(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"), book("b3"))
	source.bookmarks["b1"] = marks("b1", "one")
	source.bookmarks["b3"] = marks("b3", "three")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, BookDelay: 2 * time.Second, ItemDelay: time.Second})

	_, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeper.slept)
}

func TestRun_PersistsEachDelivery(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "one", "two", "three")
	sink := newFakeSink(100)
	sink.failOn[3] = "boom"
	h := newHarness(t, source, sink, Options{MaxHighlights: 50, PersistEachDelivery: true})

	_, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	reloaded, err := ledger.Load(h.ledger.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestRun_Cancelled(t *testing.T) {
	source := newFakeSource(book("b1"), book("b2"))
	source.bookmarks["b1"] = marks("b1", "one")
	source.bookmarks["b2"] = marks("b2", "two")
	h := newHarness(t, source, newFakeSink(100), Options{MaxHighlights: 50, BookDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	h.syncer.SetSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	stats, err := h.syncer.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 1, stats.Synced)
	assert.False(t, source.called("bookmarks:b2"))

	reloaded, err := ledger.Load(h.ledger.Path())
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("b1-1"), "ledger is persisted on cancellation")
}

func TestRun_JournalFailuresIgnored(t *testing.T) {
	source := newFakeSource(book("b1"))
	source.bookmarks["b1"] = marks("b1", "one", "two")
	sink := newFakeSink(100)
	sink.failOn[2] = "bad gateway"
	h := newHarness(t, source, sink, Options{MaxHighlights: 50})
	journal := &recordingJournal{}
	h.syncer.SetJournal(journal)

	stats, err := h.syncer.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, journal.deliveries, 2)
	assert.Equal(t, entities.DeliveryDelivered, journal.deliveries[0].Result.Status)
	assert.Equal(t, entities.DeliveryFailed, journal.deliveries[1].Result.Status)
	assert.Equal(t, stats.RunID, journal.deliveries[0].RunID)
	assert.NotEmpty(t, journal.deliveries[0].Fingerprint)
	require.Len(t, journal.runs, 1)
	assert.Equal(t, 1, journal.runs[0].Synced)
}

func TestChapterName(t *testing.T) {
	idx := 2
	chapters := []entities.Chapter{
		{UID: 10, Index: &idx, Title: "Intro"},
		{UID: 11, Title: "Untitled index"},
		{UID: 12, Index: &idx},
	}

	assert.Equal(t, "Chapter 2 - Intro", ChapterName(chapters, 10))
	assert.Equal(t, "Untitled index", ChapterName(chapters, 11))
	assert.Equal(t, "", ChapterName(chapters, 12))
	assert.Equal(t, "", ChapterName(chapters, 99))
}

func TestProgress(t *testing.T) {
	s := New(newFakeSource(), newFakeSink(1), ledger.New(t.TempDir()+"/l.json"), textRenderer{}, zeroLogger(), Options{})
	_, running := s.Progress()
	assert.False(t, running)
}
