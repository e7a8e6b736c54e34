package syncer

import (
	"time"

	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/fingerprint"
)

type Verdict int

const (
	VerdictEligible Verdict = iota
	VerdictAlreadySynced
	VerdictDuplicateContent
	VerdictOutsideWindow
)

func (v Verdict) String() string {
	switch v {
	case VerdictEligible:
		return "eligible"
	case VerdictAlreadySynced:
		return "already_synced"
	case VerdictDuplicateContent:
		return "duplicate_content"
	case VerdictOutsideWindow:
		return "outside_window"
	default:
		return "unknown"
	}
}

// KnownSet is the read side of the ledger the filter consults.
type KnownSet interface {
	Contains(id string) bool
	ContainsFingerprint(fp string) bool
}

// Filter decides whether a bookmark still needs delivery. Checks run in a
// fixed order and stop at the first rejection: identifier, content
// fingerprint, then the creation-time window.
type Filter struct {
	known       KnownSet
	daysLimit   int
	fingerprint fingerprint.Func
	now         func() time.Time
}

type FilterOption func(*Filter)

func WithFingerprintFunc(fn fingerprint.Func) FilterOption {
	return func(f *Filter) {
		f.fingerprint = fn
	}
}

func WithClock(now func() time.Time) FilterOption {
	return func(f *Filter) {
		f.now = now
	}
}

// NewFilter builds a filter over known. A daysLimit of zero or less disables
// the time window.
func NewFilter(known KnownSet, daysLimit int, opts ...FilterOption) *Filter {
	f := &Filter{
		known:       known,
		daysLimit:   daysLimit,
		fingerprint: fingerprint.Of,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check returns the verdict and, when it was computed, the fingerprint of the
// bookmark text. The fingerprint is empty for already-synced identifiers.
func (f *Filter) Check(b entities.Bookmark) (Verdict, string) {
	if f.known.Contains(b.ID) {
		return VerdictAlreadySynced, ""
	}

	fp := f.fingerprint(b.Text)
	if fp != "" && f.known.ContainsFingerprint(fp) {
		return VerdictDuplicateContent, fp
	}

	if f.daysLimit > 0 && b.CreatedAt > 0 {
		cutoff := f.now().Add(-time.Duration(f.daysLimit) * 24 * time.Hour)
		if time.Unix(b.CreatedAt, 0).Before(cutoff) {
			return VerdictOutsideWindow, fp
		}
	}

	return VerdictEligible, fp
}

func (f *Filter) IsEligible(b entities.Bookmark) bool {
	verdict, _ := f.Check(b)
	return verdict == VerdictEligible
}
