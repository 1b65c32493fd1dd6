package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/namelens/guildrest/internal/core"
	"github.com/namelens/guildrest/internal/core/route"
)

// bucket holds the rate limit state for one route key. Every field is
// guarded by mu.
type bucket struct {
	key route.Key
	mu  sync.Mutex

	// limit is zero until the first response carrying limits.
	limit     int
	remaining int
	// resetAt is zero when the end of the current window is unknown.
	resetAt   time.Time
	last429At time.Time
	hash      string

	// queue stays sorted by entry.order.
	queue    []*entry
	inFlight int

	// submitted numbers arrivals. Requeued entries keep their number.
	submitted uint64
	// dispatched hands out start slots in pop order; started is the next
	// slot allowed to reach the executor.
	dispatched uint64
	started    uint64
	turn       *sync.Cond
	// penalties counts 429 exhaustions.
	penalties int

	timer   *time.Timer
	timerAt time.Time
}

func newBucket(key route.Key, seed *core.BucketState, now time.Time) *bucket {
	b := &bucket{key: key}
	b.turn = sync.NewCond(&b.mu)
	if seed != nil && seed.ResetAt.After(now) {
		b.limit = seed.Limit
		b.remaining = seed.Remaining
		b.resetAt = seed.ResetAt
		b.hash = seed.Bucket
	}
	return b
}

// refill opens a new window once resetAt has passed.
func (b *bucket) refill(now time.Time) {
	if b.resetAt.IsZero() || now.Before(b.resetAt) {
		return
	}
	b.resetAt = time.Time{}
	b.remaining = 0
	if b.limit > 0 {
		b.remaining = max(b.limit-b.inFlight, 0)
	}
}

// available reports whether one more request may be dispatched at now.
func (b *bucket) available(now time.Time) bool {
	b.refill(now)

	switch {
	case !b.resetAt.IsZero() && b.remaining <= 0:
		return false
	case b.limit == 0:
		// Fresh: one probe at a time until limits are known.
		return b.inFlight == 0
	case b.remaining > 0:
		return true
	default:
		// Allowance spent with no known reset; let a single probe learn it.
		return b.inFlight == 0
	}
}

// reserve accounts for one dispatched request and assigns its start slot.
func (b *bucket) reserve(e *entry) {
	b.inFlight++
	e.slot = b.dispatched
	b.dispatched++
	e.penalties = b.penalties
	e.reserved = b.remaining > 0
	if e.reserved {
		b.remaining--
	}
}

// unreserve undoes reserve for an attempt that got no response. The unit
// stays spent if a 429 exhausted the bucket in the meantime.
func (b *bucket) unreserve(e *entry) {
	b.inFlight--
	if e.reserved && e.penalties == b.penalties && b.limit > 0 {
		b.remaining = min(b.remaining+1, max(b.limit-b.inFlight, 0))
	}
	e.reserved = false
}

// awaitTurn blocks until every entry dispatched before e has started.
// Caller holds mu.
func (b *bucket) awaitTurn(e *entry) {
	for b.started != e.slot {
		b.turn.Wait()
	}
}

// passTurn lets the next dispatched entry start. Caller holds mu.
func (b *bucket) passTurn() {
	b.started++
	b.turn.Broadcast()
}

// apply folds response headers into the bucket. The completed request must
// already be removed from inFlight.
func (b *bucket) apply(info RateLimitInfo, now time.Time) bool {
	if info.Bucket != "" {
		b.hash = info.Bucket
	}
	if !info.Known {
		return false
	}

	b.limit = info.Limit
	if b.resetAt.IsZero() || !now.Before(b.resetAt) {
		// New window: siblings still in flight will count against it.
		b.remaining = max(info.Remaining-b.inFlight, 0)
	} else {
		b.remaining = min(info.Remaining, b.remaining)
	}
	b.resetAt = info.ResetAt
	return true
}

// exhaust blocks the bucket for retryAfter after a 429.
func (b *bucket) exhaust(now time.Time, retryAfter time.Duration) {
	b.remaining = 0
	b.last429At = now
	b.penalties++
	if until := now.Add(retryAfter); until.After(b.resetAt) {
		b.resetAt = until
	}
}

// wakeAt returns when a blocked bucket may next dispatch, or zero when only
// a sibling completion can unblock it.
func (b *bucket) wakeAt() time.Time {
	if b.remaining <= 0 {
		return b.resetAt
	}
	return time.Time{}
}

func (b *bucket) enqueue(e *entry) {
	e.order = b.submitted
	b.submitted++
	b.queue = append(b.queue, e)
}

// requeue puts e back ahead of every entry submitted after it.
func (b *bucket) requeue(e *entry) {
	i := sort.Search(len(b.queue), func(i int) bool { return b.queue[i].order > e.order })
	b.queue = append(b.queue, nil)
	copy(b.queue[i+1:], b.queue[i:])
	b.queue[i] = e
}

// queuedBefore reports whether an entry submitted before e is queued.
func (b *bucket) queuedBefore(e *entry) bool {
	return len(b.queue) > 0 && b.queue[0].order < e.order
}

func (b *bucket) popFront() *entry {
	e := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return e
}

// remove drops e from the queue keeping sibling order.
func (b *bucket) remove(e *entry) bool {
	for i, queued := range b.queue {
		if queued != e {
			continue
		}
		copy(b.queue[i:], b.queue[i+1:])
		b.queue[len(b.queue)-1] = nil
		b.queue = b.queue[:len(b.queue)-1]
		return true
	}
	return false
}

func (b *bucket) phase(now time.Time) core.BucketPhase {
	switch {
	case !b.resetAt.IsZero() && b.remaining <= 0 && now.Before(b.resetAt):
		return core.BucketExhausted
	case b.limit == 0:
		return core.BucketFresh
	default:
		return core.BucketKnown
	}
}

func (b *bucket) snapshot(now time.Time) core.BucketSnapshot {
	snap := core.BucketSnapshot{
		Key:       b.key.String(),
		Method:    b.key.Method,
		Template:  b.key.Template,
		Major:     b.key.Major,
		Phase:     b.phase(now),
		Limit:     b.limit,
		Remaining: b.remaining,
		InFlight:  b.inFlight,
		Queued:    len(b.queue),
	}
	if !b.resetAt.IsZero() {
		reset := b.resetAt
		snap.ResetAt = &reset
	}
	return snap
}

func (b *bucket) state(now time.Time) *core.BucketState {
	state := &core.BucketState{
		Limit:     b.limit,
		Remaining: b.remaining,
		ResetAt:   b.resetAt,
		Bucket:    b.hash,
		UpdatedAt: now,
	}
	if !b.last429At.IsZero() {
		last := b.last429At
		state.Last429At = &last
	}
	return state
}
