package syncer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/entities"
)

type bookState int

const (
	stateFetching bookState = iota
	stateFiltering
	stateEnriching
	stateRendering
	stateDelivering
	stateRecording
	stateDone
	stateAborted
)

func (s bookState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateFiltering:
		return "filtering"
	case stateEnriching:
		return "enriching"
	case stateRendering:
		return "rendering"
	case stateDelivering:
		return "delivering"
	case stateRecording:
		return "recording"
	case stateDone:
		return "done"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// candidate is a bookmark that passed the filter, with its fingerprint.
type candidate struct {
	bookmark    entities.Bookmark
	fingerprint string
}

type bookRun struct {
	s      *Syncer
	rec    *recorder
	book   entities.Book
	log    zerolog.Logger
	state  bookState
	result BookResult

	url      string
	chapters []entities.Chapter
	notes    map[string]string
}

func (b *bookRun) enter(state bookState) {
	b.log.Debug().Str("from", b.state.String()).Str("to", state.String()).Msg("Book state")
	b.state = state
}

func (s *Syncer) newBookRun(rec *recorder, book entities.Book) *bookRun {
	return &bookRun{
		s:      s,
		rec:    rec,
		book:   book,
		log:    s.logger.With().Str("book_id", book.ID).Str("title", book.Title).Logger(),
		state:  stateFetching,
		result: BookResult{BookID: book.ID, Title: book.Title, Author: book.Author, Outcome: BookOutcomeDone},
		url:    BookURLPrefix + book.ID,
	}
}

// run processes the book and returns what it delivered. limit is the share
// of the run quota still available.
func (b *bookRun) run(ctx context.Context, limit int) (BookResult, error) {
	rec := b.rec
	b.log.Info().Str("author", b.book.Author).Msg("Processing book")

	bookmarks, err := b.fetch(ctx)
	if err != nil {
		b.result.Outcome = BookOutcomeAborted
		return b.result, err
	}
	b.result.Bookmarks = len(bookmarks)
	if len(bookmarks) == 0 {
		b.log.Info().Msg("Book has no highlights")
		b.enter(stateDone)
		return b.result, nil
	}

	b.enter(stateFiltering)
	eligible := b.filter(bookmarks)
	b.result.Eligible = len(eligible)
	if len(eligible) == 0 {
		b.log.Info().Int("bookmarks", len(bookmarks)).Msg("No new highlights")
		b.enter(stateDone)
		return b.result, nil
	}

	batch := Clamp(eligible, limit)
	if deferred := len(eligible) - len(batch); deferred > 0 {
		b.log.Info().Int("eligible", len(eligible)).Int("limit", limit).Msg("Clamped to remaining run quota")
		rec.update(func(st *RunStatistics) { st.Deferred += deferred })
	}

	if err := b.deliverAll(ctx, batch); err != nil {
		b.result.Outcome = BookOutcomeAborted
		return b.result, err
	}

	b.enter(stateRecording)
	if b.result.Delivered > 0 {
		b.log.Info().Int("delivered", b.result.Delivered).Msg("Book synced")
	}
	if b.result.Outcome == BookOutcomeDone {
		b.enter(stateDone)
	}
	return b.result, nil
}

// fetch loads book metadata and bookmarks, then chapters and notes. Chapters
// are requested strictly after the bookmark list.
func (b *bookRun) fetch(ctx context.Context) ([]entities.Bookmark, error) {
	if info, err := b.s.source.BookInfo(ctx, b.book.ID); err != nil {
		b.log.Debug().Err(err).Msg("Book info unavailable")
	} else if info != nil && info.ID != "" {
		b.url = BookURLPrefix + info.ID
	}

	bookmarks, err := b.s.source.Bookmarks(ctx, b.book.ID)
	if err != nil {
		return nil, fmt.Errorf("get bookmarks: %w", err)
	}
	if len(bookmarks) == 0 {
		return nil, nil
	}

	chapters, err := b.s.source.Chapters(ctx, b.book.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Warn().Err(err).Msg("Chapter info unavailable, continuing without chapter names")
		b.rec.warnf("chapters of 《%s》: %v", b.book.Title, err)
	}
	b.chapters = chapters

	if b.s.opts.SyncNotes {
		reviews, err := b.s.source.Reviews(ctx, b.book.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.log.Warn().Err(err).Msg("Notes unavailable, continuing without notes")
			b.rec.warnf("notes of 《%s》: %v", b.book.Title, err)
		}
		b.notes = make(map[string]string, len(reviews))
		for _, review := range reviews {
			if review.BookmarkID != "" && review.Content != "" {
				b.notes[review.BookmarkID] = review.Content
			}
		}
	}

	return bookmarks, nil
}

func (b *bookRun) filter(bookmarks []entities.Bookmark) []candidate {
	filter := NewFilter(b.s.ledger, b.s.opts.DaysLimit, WithFingerprintFunc(b.s.fingerprint), WithClock(b.s.now))

	// Identical passages inside one batch are delivered once.
	seen := make(map[string]struct{})
	eligible := make([]candidate, 0, len(bookmarks))
	for _, bm := range bookmarks {
		verdict, fp := filter.Check(bm)
		if verdict == VerdictEligible && fp != "" {
			if _, dup := seen[fp]; dup {
				verdict = VerdictDuplicateContent
			}
		}
		if verdict != VerdictEligible {
			b.rec.skipped(verdict.String())
			b.s.metrics.BookmarkSkipped(verdict.String())
			continue
		}
		if fp != "" {
			seen[fp] = struct{}{}
		}
		eligible = append(eligible, candidate{bookmark: bm, fingerprint: fp})
	}

	if filtered := len(bookmarks) - len(eligible); filtered > 0 {
		b.log.Info().Int("filtered", filtered).Int("eligible", len(eligible)).Msg("Filtered highlights")
	}
	return eligible
}

// deliverAll sends the batch in order and stops at the first failure or when
// the sink runs out of quota.
func (b *bookRun) deliverAll(ctx context.Context, batch []candidate) error {
	for i, c := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.enter(stateEnriching)
		note := b.enrich(ctx, c.bookmark)

		b.enter(stateRendering)
		content, err := b.s.renderer.Render(note)
		if err != nil {
			b.result.Failed++
			b.rec.update(func(st *RunStatistics) { st.Failed++ })
			b.rec.errorf("render %s from 《%s》: %v", c.bookmark.ID, b.book.Title, err)
			b.abort(fmt.Sprintf("render failed: %v", err), len(batch)-i-1)
			return nil
		}

		b.enter(stateDelivering)
		result := b.s.sink.Deliver(ctx, content)
		b.s.metrics.DeliveryCompleted(result.Status)
		b.journal(ctx, c, result)

		switch result.Status {
		case entities.DeliveryDelivered:
			b.s.ledger.RecordDelivery(c.bookmark.ID, c.fingerprint)
			b.result.Delivered++
			b.rec.update(func(st *RunStatistics) { st.Synced++ })
			b.log.Debug().Str("bookmark_id", c.bookmark.ID).Msg("Highlight delivered")

			if b.s.opts.PersistEachDelivery {
				if err := b.s.ledger.Persist(); err != nil {
					b.log.Warn().Err(err).Msg("Failed to persist ledger")
					b.rec.warnf("persist ledger: %v", err)
				}
			}
		case entities.DeliveryQuotaExhausted:
			b.result.SinkExhausted = true
			b.abort("sink quota exhausted", len(batch)-i-1)
			b.rec.update(func(st *RunStatistics) { st.DailyCapHit = true })
			return nil
		default:
			b.result.Failed++
			b.rec.update(func(st *RunStatistics) { st.Failed++ })
			b.rec.errorf("deliver %s from 《%s》: %s", c.bookmark.ID, b.book.Title, result.Reason)
			b.abort("delivery failed: "+result.Reason, len(batch)-i-1)
			return nil
		}

		if b.s.sinkCapReached() {
			if remaining := len(batch) - i - 1; remaining > 0 {
				b.abort("daily sink limit reached", remaining)
			}
			return nil
		}

		if i < len(batch)-1 {
			if err := b.s.sleep(ctx, b.s.opts.ItemDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *bookRun) abort(reason string, remaining int) {
	b.log.Warn().Str("reason", reason).Int("not_attempted", remaining).Msg("Aborting rest of book")
	b.result.Outcome = BookOutcomeAborted
	b.result.AbortReason = truncate(reason)
	b.enter(stateAborted)
}

func (b *bookRun) enrich(ctx context.Context, bm entities.Bookmark) entities.Note {
	note := entities.Note{
		BookTitle:  b.book.Title,
		Author:     b.book.Author,
		Highlight:  bm.Text,
		Chapter:    ChapterName(b.chapters, bm.ChapterUID),
		BookURL:    b.url,
		CreateTime: bm.CreatedTime(b.s.now()).Format("2006-01-02"),
	}

	if b.s.opts.SyncNotes {
		text, ok := b.notes[bm.ID]
		b.rec.feature(FeatureNotes, ok)
		b.s.metrics.FeatureAttempted(FeatureNotes, ok)
		note.NoteText = text
	}

	if b.s.tags != nil {
		tags, err := b.s.tags.GenerateTags(ctx, b.book.Title, b.book.Author, bm.Text)
		ok := err == nil && len(tags) > 0
		if err != nil {
			b.log.Warn().Err(err).Str("bookmark_id", bm.ID).Msg("Tag generation failed")
			b.rec.warnf("tags for %s: %v", bm.ID, err)
			tags = nil
		}
		b.rec.feature(FeatureAITags, ok)
		b.s.metrics.FeatureAttempted(FeatureAITags, ok)
		note.AITags = tags
	}

	if b.s.summaries != nil && b.s.summaries.ShouldSummarize(bm.Text) {
		summary, err := b.s.summaries.Summarize(ctx, b.book.Title, b.book.Author, bm.Text)
		ok := err == nil && summary != ""
		if err != nil {
			b.log.Warn().Err(err).Str("bookmark_id", bm.ID).Msg("Summary generation failed")
			b.rec.warnf("summary for %s: %v", bm.ID, err)
			summary = ""
		}
		b.rec.feature(FeatureAISummary, ok)
		b.s.metrics.FeatureAttempted(FeatureAISummary, ok)
		note.Summary = summary
	}

	return note
}

func (b *bookRun) journal(ctx context.Context, c candidate, result entities.DeliveryResult) {
	if b.s.journal == nil {
		return
	}
	event := DeliveryEvent{
		RunID:       b.rec.stats.RunID,
		BookID:      b.book.ID,
		BookTitle:   b.book.Title,
		BookmarkID:  c.bookmark.ID,
		Fingerprint: c.fingerprint,
		Result:      result,
		At:          b.s.now(),
	}
	if err := b.s.journal.RecordDelivery(context.WithoutCancel(ctx), event); err != nil {
		b.log.Warn().Err(err).Msg("Failed to journal delivery")
	}
}

// ChapterName resolves the display name of a chapter: "Chapter {idx} - {title}"
// when the platform reports an index, the bare title otherwise.
func ChapterName(chapters []entities.Chapter, uid int) string {
	for _, ch := range chapters {
		if ch.UID != uid {
			continue
		}
		if ch.Title != "" && ch.Index != nil {
			return fmt.Sprintf("Chapter %d - %s", *ch.Index, ch.Title)
		}
		return ch.Title
	}
	return ""
}
