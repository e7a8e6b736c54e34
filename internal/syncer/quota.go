package syncer

// Quota is the number of highlights a run may still deliver across all books.
// It only ever decreases.
type Quota struct {
	max       int
	remaining int
}

func NewQuota(limit int) *Quota {
	if limit < 0 {
		limit = 0
	}
	return &Quota{max: limit, remaining: limit}
}

func (q *Quota) Max() int {
	return q.max
}

func (q *Quota) Remaining() int {
	return q.remaining
}

func (q *Quota) Exhausted() bool {
	return q.remaining <= 0
}

// Consume subtracts delivered items. Negative counts are ignored and the
// remaining amount never drops below zero.
func (q *Quota) Consume(delivered int) {
	if delivered <= 0 {
		return
	}
	q.remaining -= delivered
	if q.remaining < 0 {
		q.remaining = 0
	}
}

// Clamp truncates items to the remaining quota, keeping order.
func Clamp[T any](items []T, limit int) []T {
	if limit < 0 {
		limit = 0
	}
	if len(items) <= limit {
		return items
	}
	return items[:limit]
}
