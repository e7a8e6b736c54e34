package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/ledger"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     []string
	books     []entities.Book
	bookmarks map[string][]entities.Bookmark
	chapters  map[string][]entities.Chapter
	reviews   map[string][]entities.Review

	sessionErr  error
	bookmarkErr map[string]error
	panicOn     string
}

func newFakeSource(books ...entities.Book) *fakeSource {
	return &fakeSource{
		books:       books,
		bookmarks:   map[string][]entities.Bookmark{},
		chapters:    map[string][]entities.Chapter{},
		reviews:     map[string][]entities.Review{},
		bookmarkErr: map[string]error{},
	}
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) called(call string) bool {
	for _, c := range f.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeSource) CheckSession(ctx context.Context) error {
	f.record("session")
	return f.sessionErr
}

func (f *fakeSource) Books(ctx context.Context) ([]entities.Book, error) {
	f.record("books")
	return f.books, nil
}

func (f *fakeSource) BookInfo(ctx context.Context, bookID string) (*entities.BookInfo, error) {
	f.record("info:" + bookID)
	return &entities.BookInfo{ID: bookID}, nil
}

func (f *fakeSource) Bookmarks(ctx context.Context, bookID string) ([]entities.Bookmark, error) {
	f.record("bookmarks:" + bookID)
	if bookID == f.panicOn {
		panic("malformed payload")
	}
	if err := f.bookmarkErr[bookID]; err != nil {
		return nil, err
	}
	return f.bookmarks[bookID], nil
}

func (f *fakeSource) Chapters(ctx context.Context, bookID string) ([]entities.Chapter, error) {
	f.record("chapters:" + bookID)
	return f.chapters[bookID], nil
}

func (f *fakeSource) Reviews(ctx context.Context, bookID string) ([]entities.Review, error) {
	f.record("reviews:" + bookID)
	return f.reviews[bookID], nil
}

type fakeSink struct {
	limit    int
	calls    int
	failOn   map[int]string // 1-based call number -> failure reason
	contents []string

	// refuseAfter makes the sink report exhaustion once that many notes
	// were accepted, regardless of limit.
	refuseAfter int
}

func newFakeSink(limit int) *fakeSink {
	return &fakeSink{limit: limit, failOn: map[int]string{}}
}

func (s *fakeSink) Deliver(ctx context.Context, content string) entities.DeliveryResult {
	if s.calls >= s.limit || (s.refuseAfter > 0 && len(s.contents) >= s.refuseAfter) {
		return entities.QuotaExhausted()
	}
	s.calls++
	if reason, ok := s.failOn[s.calls]; ok {
		return entities.DeliveryFailure(reason)
	}
	s.contents = append(s.contents, content)
	return entities.Delivered()
}

func (s *fakeSink) CallCount() int  { return s.calls }
func (s *fakeSink) DailyLimit() int { return s.limit }

type textRenderer struct{}

func (textRenderer) Render(note entities.Note) (string, error) {
	parts := []string{note.Highlight}
	if note.Chapter != "" {
		parts = append(parts, "chapter="+note.Chapter)
	}
	if note.NoteText != "" {
		parts = append(parts, "note="+note.NoteText)
	}
	if len(note.AITags) > 0 {
		parts = append(parts, "tags="+strings.Join(note.AITags, ","))
	}
	if note.Summary != "" {
		parts = append(parts, "summary="+note.Summary)
	}
	return strings.Join(parts, " | "), nil
}

// panickingRenderer renders normally until the panicAt-th call.
type panickingRenderer struct {
	calls   int
	panicAt int
}

func (r *panickingRenderer) Render(note entities.Note) (string, error) {
	r.calls++
	if r.calls == r.panicAt {
		panic("template exploded")
	}
	return textRenderer{}.Render(note)
}

type fakeTags struct {
	tags []string
	err  error
}

func (f fakeTags) GenerateTags(ctx context.Context, title, author, text string) ([]string, error) {
	return f.tags, f.err
}

type fakeSummaries struct {
	minLength int
	summary   string
	err       error
}

func (f fakeSummaries) ShouldSummarize(text string) bool {
	return len([]rune(text)) >= f.minLength
}

func (f fakeSummaries) Summarize(ctx context.Context, title, author, text string) (string, error) {
	return f.summary, f.err
}

type recordingJournal struct {
	deliveries []DeliveryEvent
	runs       []RunStatistics
}

func (j *recordingJournal) RecordDelivery(ctx context.Context, event DeliveryEvent) error {
	j.deliveries = append(j.deliveries, event)
	return nil
}

func (j *recordingJournal) RecordRun(ctx context.Context, stats RunStatistics) error {
	j.runs = append(j.runs, stats)
	return errors.New("journal offline")
}

type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func book(id string) entities.Book {
	return entities.Book{ID: id, Title: "Book " + id, Author: "Author " + id}
}

func marks(bookID string, texts ...string) []entities.Bookmark {
	out := make([]entities.Bookmark, 0, len(texts))
	for i, text := range texts {
		out = append(out, entities.Bookmark{
			ID:         fmt.Sprintf("%s-%d", bookID, i+1),
			BookID:     bookID,
			ChapterUID: 1,
			Text:       text,
			CreatedAt:  fixedNow.Add(-time.Hour).Unix(),
		})
	}
	return out
}

type harness struct {
	source  *fakeSource
	sink    *fakeSink
	ledger  *ledger.Ledger
	sleeper *sleepRecorder
	syncer  *Syncer
}

func newHarness(t *testing.T, source *fakeSource, sink *fakeSink, opts Options) *harness {
	t.Helper()
	l, err := ledger.Load(filepath.Join(t.TempDir(), "synced_bookmarks.json"))
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	return newHarnessWithLedger(source, sink, l, opts)
}

func newHarnessWithLedger(source *fakeSource, sink *fakeSink, l *ledger.Ledger, opts Options) *harness {
	sleeper := &sleepRecorder{}
	s := New(source, sink, l, textRenderer{}, zerolog.Nop(), opts)
	s.SetSleeper(sleeper.sleep)
	s.SetClock(func() time.Time { return fixedNow })
	return &harness{source: source, sink: sink, ledger: l, sleeper: sleeper, syncer: s}
}

func zeroLogger() zerolog.Logger {
	return zerolog.Nop()
}
