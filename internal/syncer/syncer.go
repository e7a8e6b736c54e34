// Package syncer delivers new reading highlights to the note service.
//
// A run walks the books of the reading platform in order, filters each
// book's bookmarks against the sync ledger, enriches the survivors with
// chapter names, notes, tags and summaries, renders them and hands them to
// the sink one by one. The run stops once the per-run quota or the sink's
// daily limit is reached.
//
// # Usage
//
//	s := syncer.New(source, sink, ledger, renderer, logger, syncer.Options{
//		MaxHighlights: 50,
//		DaysLimit:     7,
//	})
//	s.SetTagGenerator(tags)
//	stats, err := s.Run(ctx)
//	_ = syncer.WriteReport(os.Stdout, *stats)
//
// Failures are isolated per book: an error or panic while processing one
// book is recorded and the next book is attempted. Only an unusable source
// session aborts the whole run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/fingerprint"
)

var (
	ErrSourceUnavailable = errors.New("source session unavailable")
	ErrRunInProgress     = errors.New("sync run already in progress")
)

const (
	BookURLPrefix = "https://weread.qq.com/web/reader/"

	maxErrorLength = 500
)

type Options struct {
	MaxHighlights int
	DaysLimit     int
	SyncNotes     bool

	// PersistEachDelivery saves the ledger after every delivered highlight
	// instead of only at the end of the run.
	PersistEachDelivery bool

	BookDelay time.Duration
	ItemDelay time.Duration
}

type Syncer struct {
	source   Source
	sink     Sink
	ledger   Ledger
	renderer Renderer
	logger   zerolog.Logger
	opts     Options

	tags      TagGenerator
	summaries SummaryGenerator
	journal   Journal
	metrics   Metrics

	sleep       Sleeper
	now         func() time.Time
	fingerprint fingerprint.Func

	mu       sync.Mutex
	running  bool
	current  *recorder
	warnings []string
}

func New(source Source, sink Sink, ledger Ledger, renderer Renderer, logger zerolog.Logger, opts Options) *Syncer {
	return &Syncer{
		source:      source,
		sink:        sink,
		ledger:      ledger,
		renderer:    renderer,
		logger:      logger.With().Str("component", "syncer").Logger(),
		opts:        opts,
		metrics:     noopMetrics{},
		sleep:       contextSleep,
		now:         time.Now,
		fingerprint: fingerprint.Of,
	}
}

// SetTagGenerator enables generated tags. Nil disables them.
func (s *Syncer) SetTagGenerator(g TagGenerator) {
	s.tags = g
}

// SetSummaryGenerator enables generated summaries. Nil disables them.
func (s *Syncer) SetSummaryGenerator(g SummaryGenerator) {
	s.summaries = g
}

func (s *Syncer) SetJournal(j Journal) {
	s.journal = j
}

func (s *Syncer) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

func (s *Syncer) SetSleeper(fn Sleeper) {
	s.sleep = fn
}

func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Syncer) SetFingerprintFunc(fn fingerprint.Func) {
	s.fingerprint = fn
}

// AddStartupWarning queues a warning for the report of the next run.
func (s *Syncer) AddStartupWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Progress returns a copy of the statistics of the run in progress.
func (s *Syncer) Progress() (RunStatistics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RunStatistics{}, false
	}
	return s.current.snapshot(), true
}

// Run performs one sync run. The returned statistics are never nil, even
// when the run fails or is cancelled, so a report can always be printed.
func (s *Syncer) Run(ctx context.Context) (*RunStatistics, error) {
	rec := newRecorder(uuid.NewString(), s.now())

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		stats := rec.snapshot()
		return &stats, ErrRunInProgress
	}
	s.running = true
	s.current = rec
	pending := s.warnings
	s.warnings = nil
	s.mu.Unlock()

	for _, msg := range pending {
		rec.warnf("%s", msg)
	}

	defer func() {
		s.mu.Lock()
		s.running = false
		s.current = nil
		s.mu.Unlock()
	}()

	runLog := s.logger.With().Str("run_id", rec.stats.RunID).Logger()
	runErr := s.run(ctx, rec, runLog)

	if err := s.ledger.Persist(); err != nil {
		runLog.Warn().Err(err).Msg("Failed to persist ledger")
		rec.warnf("persist ledger: %v", err)
	}

	rec.update(func(st *RunStatistics) {
		st.FinishedAt = s.now()
		st.SinkCalls = s.sink.CallCount()
		st.SinkLimit = s.sink.DailyLimit()
		st.LedgerSize = s.ledger.Len()
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			st.Cancelled = true
		}
	})

	stats := rec.snapshot()
	s.metrics.RunCompleted(stats.Duration(), stats.LedgerSize)

	if s.journal != nil {
		if err := s.journal.RecordRun(context.WithoutCancel(ctx), stats); err != nil {
			runLog.Warn().Err(err).Msg("Failed to journal run")
		}
	}

	runLog.Info().
		Int("synced", stats.Synced).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("books_processed", stats.ProcessedBooks).
		Int("books_total", stats.TotalBooks).
		Dur("duration", stats.Duration()).
		Msg("Sync run finished")

	return &stats, runErr
}

func (s *Syncer) run(ctx context.Context, rec *recorder, log zerolog.Logger) error {
	if err := s.source.CheckSession(ctx); err != nil {
		rec.errorf("source session check: %v", err)
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	books, err := s.source.Books(ctx)
	if err != nil {
		rec.errorf("list books: %v", err)
		return fmt.Errorf("list books: %w", err)
	}
	rec.update(func(st *RunStatistics) { st.TotalBooks = len(books) })

	if len(books) == 0 {
		log.Warn().Msg("No books with highlights found")
		rec.warnf("no books with highlights found")
		return nil
	}
	log.Info().Int("books", len(books)).Int("quota", s.opts.MaxHighlights).Msg("Sync run started")

	quota := NewQuota(s.opts.MaxHighlights)

	for i, book := range books {
		if err := ctx.Err(); err != nil {
			return err
		}
		if quota.Exhausted() {
			log.Info().Int("max", quota.Max()).Msg("Run quota reached, stopping")
			rec.update(func(st *RunStatistics) { st.QuotaExhausted = true })
			break
		}

		started := s.now()
		result, err := s.syncBookIsolated(ctx, rec, book, quota.Remaining())
		delivered := result.Delivered
		quota.Consume(delivered)

		switch {
		case err != nil && ctx.Err() != nil:
			rec.update(func(st *RunStatistics) { st.Books = append(st.Books, result) })
			return ctx.Err()
		case err != nil:
			result.Outcome = BookOutcomeFailed
			result.AbortReason = truncate(err.Error())
			log.Error().Err(err).Str("book_id", book.ID).Str("title", book.Title).Msg("Book failed, continuing with next book")
			rec.errorf("book 《%s》: %v", book.Title, err)
			rec.update(func(st *RunStatistics) {
				st.FailedBooks++
				st.Books = append(st.Books, result)
				if delivered > 0 {
					st.SyncedBooks = append(st.SyncedBooks, SyncedBook{Title: book.Title, Author: book.Author, Count: delivered})
				}
			})
		default:
			rec.update(func(st *RunStatistics) {
				st.ProcessedBooks++
				st.Books = append(st.Books, result)
				if delivered > 0 {
					st.SyncedBooks = append(st.SyncedBooks, SyncedBook{Title: book.Title, Author: book.Author, Count: delivered})
				}
			})
		}
		s.metrics.BookProcessed(string(result.Outcome), s.now().Sub(started))

		if s.sinkCapReached() || result.SinkExhausted {
			log.Warn().Int("calls", s.sink.CallCount()).Int("limit", s.sink.DailyLimit()).Msg("Daily sink limit reached, stopping")
			rec.update(func(st *RunStatistics) { st.DailyCapHit = true })
			break
		}
		if quota.Exhausted() {
			rec.update(func(st *RunStatistics) { st.QuotaExhausted = true })
			break
		}

		if delivered > 0 && i < len(books)-1 {
			if err := s.sleep(ctx, s.opts.BookDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

// syncBookIsolated converts a panic inside one book into an error so the
// remaining books still run.
// Deliveries made before the panic stay counted.
func (s *Syncer) syncBookIsolated(ctx context.Context, rec *recorder, book entities.Book, limit int) (result BookResult, err error) {
	b := s.newBookRun(rec, book)
	defer func() {
		if r := recover(); r != nil {
			result = b.result
			err = fmt.Errorf("panic in state %s: %v", b.state, r)
		}
	}()
	return b.run(ctx, limit)
}

func (s *Syncer) sinkCapReached() bool {
	limit := s.sink.DailyLimit()
	return limit > 0 && s.sink.CallCount() >= limit
}

func truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) > maxErrorLength {
		return string(runes[:maxErrorLength])
	}
	return msg
}
