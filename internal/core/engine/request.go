package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/namelens/guildrest/internal/core/route"
)

// Request is an immutable description of one call.
type Request struct {
	ID         string
	Key        route.Key
	Method     string
	URL        string
	Header     http.Header
	Body       []byte
	EnqueuedAt time.Time
}

// Result is delivered exactly once per submission.
type Result struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	// RateLimited reports whether the request was held back by a rate limit
	// or answered with a 429 at any point.
	RateLimited bool
	Err         error
}

type entryState int

const (
	stateQueued entryState = iota
	stateInFlight
	stateDone
)

// entry tracks one submission through the scheduler. Every field below
// callback is guarded by the owning bucket's mutex.
type entry struct {
	req      *Request
	ctx      context.Context
	release  context.CancelFunc
	callback func(Result)

	state     entryState
	retries   int
	throttled bool
	stopWatch func() bool

	order     uint64
	slot      uint64
	reserved  bool
	penalties int

	once sync.Once
}

// settle delivers the result; later calls are no-ops.
func (e *entry) settle(res Result) {
	e.once.Do(func() {
		if e.throttled {
			res.RateLimited = true
		}
		if e.callback != nil {
			e.callback(res)
		}
		if e.release != nil {
			e.release()
		}
	})
}

// contextErr maps a finished context to ErrTimeout or ErrCancelled.
func contextErr(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCancelled
}

// Ticket lets a caller cancel a submission.
type Ticket struct {
	id     string
	cancel context.CancelCauseFunc
}

// ID returns the request ID assigned at submission.
func (t *Ticket) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// Cancel removes the request if still queued; for an in-flight request it
// cancels the transport call on a best-effort basis.
func (t *Ticket) Cancel() {
	if t == nil || t.cancel == nil {
		return
	}
	t.cancel(ErrCancelled)
}
