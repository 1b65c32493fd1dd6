package engine

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/namelens/guildrest/internal/core"
	"github.com/namelens/guildrest/internal/core/route"
)

const (
	// DefaultMaxRetries is how many times a request answered with 429 is
	// re-queued before the 429 reaches the caller.
	DefaultMaxRetries = 1

	// DefaultGlobalRate caps process-wide request starts per second.
	DefaultGlobalRate = 50.0

	// fallbackRetryAfter applies when a 429 carries no usable hint.
	fallbackRetryAfter = time.Second

	storeTimeout = 2 * time.Second
)

// BucketStore persists bucket state between processes.
type BucketStore interface {
	LoadBucket(ctx context.Context, key string) (*core.BucketState, error)
	SaveBucket(ctx context.Context, key string, state *core.BucketState) error
}

// Observer receives dispatch events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ObserveDispatch(key route.Key, queueWait time.Duration)
	ObserveResult(key route.Key, statusCode int, err error)
	ObserveRateLimit(key route.Key, global bool, retryAfter time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(route.Key, time.Duration)        {}
func (nopObserver) ObserveResult(route.Key, int, error)             {}
func (nopObserver) ObserveRateLimit(route.Key, bool, time.Duration) {}

// Logger is the structured logging surface the scheduler writes to. Both
// *zap.Logger and the gofulmen logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Options configures a Scheduler.
type Options struct {
	Executor Executor
	Clock    func() time.Time

	// MaxRetries is the 429 retry budget per request. Zero disables retries.
	MaxRetries int

	// GlobalRate paces request starts across all buckets. Zero disables pacing.
	GlobalRate  float64
	GlobalBurst int

	Store    BucketStore
	Observer Observer
	Logger   Logger
}

// DefaultOptions returns options with the default retry budget and pacing.
func DefaultOptions() Options {
	return Options{
		MaxRetries:  DefaultMaxRetries,
		GlobalRate:  DefaultGlobalRate,
		GlobalBurst: int(DefaultGlobalRate),
	}
}

// Scheduler queues requests per bucket and releases them as rate limits
// allow. Buckets never block each other.
type Scheduler struct {
	exec       Executor
	clock      func() time.Time
	maxRetries int
	pacer      *rate.Limiter
	store      BucketStore
	observer   Observer
	logger     Logger

	mu      sync.RWMutex
	buckets map[route.Key]*bucket
	closed  bool

	global globalLock
}

// NewScheduler constructs an isolated scheduler.
func NewScheduler(opts Options) *Scheduler {
	s := &Scheduler{
		exec:       opts.Executor,
		clock:      opts.Clock,
		maxRetries: max(opts.MaxRetries, 0),
		store:      opts.Store,
		observer:   opts.Observer,
		logger:     opts.Logger,
		buckets:    make(map[route.Key]*bucket),
	}
	if s.exec == nil {
		s.exec = &HTTPExecutor{Clock: opts.Clock}
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.GlobalRate > 0 {
		burst := opts.GlobalBurst
		if burst <= 0 {
			burst = max(int(opts.GlobalRate), 1)
		}
		s.pacer = rate.NewLimiter(rate.Limit(opts.GlobalRate), burst)
	}
	return s
}

// Submit queues req and returns immediately. callback runs exactly once on
// a scheduler goroutine. A non-zero deadline bounds the whole submission.
func (s *Scheduler) Submit(ctx context.Context, req *Request, deadline time.Time, callback func(Result)) *Ticket {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = s.now()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	release := func() { cancel(nil) }
	if !deadline.IsZero() {
		dctx, dcancel := context.WithDeadlineCause(ctx, deadline, ErrTimeout)
		ctx = dctx
		release = func() {
			dcancel()
			cancel(nil)
		}
	}

	e := &entry{req: req, ctx: ctx, release: release, callback: callback}
	ticket := &Ticket{id: req.ID, cancel: cancel}

	if ctx.Err() != nil {
		go e.settle(Result{Err: contextErr(ctx)})
		return ticket
	}
	if s.isClosed() {
		go e.settle(Result{Err: ErrCancelled})
		return ticket
	}

	b := s.bucket(ctx, req.Key)
	b.mu.Lock()
	b.enqueue(e)
	s.watch(b, e)
	s.pump(b)
	b.mu.Unlock()

	return ticket
}

// Buckets returns snapshots of every bucket ordered by key.
func (s *Scheduler) Buckets() []core.BucketSnapshot {
	s.mu.RLock()
	all := make([]*bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		all = append(all, b)
	}
	s.mu.RUnlock()

	now := s.now()
	out := make([]core.BucketSnapshot, 0, len(all))
	for _, b := range all {
		b.mu.Lock()
		b.refill(now)
		out = append(out, b.snapshot(now))
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Bucket returns the snapshot for key when the bucket exists.
func (s *Scheduler) Bucket(key route.Key) (core.BucketSnapshot, bool) {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if !ok {
		return core.BucketSnapshot{}, false
	}
	now := s.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return b.snapshot(now), true
}

// GlobalLock reports whether the global lock currently holds.
func (s *Scheduler) GlobalLock() core.GlobalLockSnapshot {
	return s.global.snapshot(s.now())
}

// Reset forgets learned limits for the bucket identified by its string key
// and releases any queued requests it was holding back.
func (s *Scheduler) Reset(key string) bool {
	var b *bucket
	s.mu.RLock()
	for k, candidate := range s.buckets {
		if k.String() == key {
			b = candidate
			break
		}
	}
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	b.mu.Lock()
	b.limit = 0
	b.remaining = 0
	b.resetAt = time.Time{}
	s.pump(b)
	b.mu.Unlock()
	return true
}

// Close settles every queued request with ErrCancelled and rejects new
// submissions. In-flight requests complete normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	all := make([]*bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		all = append(all, b)
	}
	s.mu.Unlock()

	for _, b := range all {
		b.mu.Lock()
		drained := b.queue
		b.queue = nil
		for _, e := range drained {
			e.state = stateDone
			if e.stopWatch != nil {
				e.stopWatch()
			}
		}
		s.disarm(b)
		b.mu.Unlock()

		for _, e := range drained {
			e.settle(Result{Err: ErrCancelled})
		}
	}
}

func (s *Scheduler) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Scheduler) now() time.Time {
	return s.clock()
}

// bucket returns the bucket for key, creating and seeding it on first use.
func (s *Scheduler) bucket(ctx context.Context, key route.Key) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	seed := s.load(ctx, key.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	b = newBucket(key, seed, s.now())
	s.buckets[key] = b
	return b
}

func (s *Scheduler) load(ctx context.Context, id string) *core.BucketState {
	if s.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	state, err := s.store.LoadBucket(ctx, id)
	if err != nil {
		s.logger.Warn("bucket state load failed", zap.String("bucket", id), zap.Error(err))
		return nil
	}
	return state
}

func (s *Scheduler) save(id string, state *core.BucketState) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.SaveBucket(ctx, id, state); err != nil {
		s.logger.Warn("bucket state save failed", zap.String("bucket", id), zap.Error(err))
	}
}

// watch arranges for a queued entry to leave the queue when its context
// ends. Caller holds b.mu.
func (s *Scheduler) watch(b *bucket, e *entry) {
	e.state = stateQueued
	e.stopWatch = context.AfterFunc(e.ctx, func() { s.expire(b, e) })
}

// expire removes a still-queued entry whose context ended.
func (s *Scheduler) expire(b *bucket, e *entry) {
	b.mu.Lock()
	if e.state != stateQueued {
		b.mu.Unlock()
		return
	}
	b.remove(e)
	e.state = stateDone
	s.pump(b)
	b.mu.Unlock()

	err := contextErr(e.ctx)
	s.logger.Debug("queued request expired",
		zap.String("request_id", e.req.ID),
		zap.String("bucket", b.key.String()),
		zap.Error(err))
	s.observer.ObserveResult(b.key, 0, err)
	e.settle(Result{Err: err})
}

// pump releases queued entries oldest first while the bucket and the global
// lock allow, and otherwise arms a single timer. Caller holds b.mu.
func (s *Scheduler) pump(b *bucket) {
	for len(b.queue) > 0 {
		now := s.now()

		if resumeAt, locked := s.global.active(now); locked {
			s.throttle(b)
			s.arm(b, resumeAt)
			return
		}

		if !b.available(now) {
			if wake := b.wakeAt(); !wake.IsZero() {
				s.throttle(b)
				s.arm(b, wake)
			} else {
				// A completion in flight will pump again.
				s.disarm(b)
			}
			return
		}

		e := b.popFront()
		b.reserve(e)
		e.state = stateInFlight
		if e.stopWatch != nil {
			e.stopWatch()
		}
		go s.run(b, e, now.Sub(e.req.EnqueuedAt))
	}
	s.disarm(b)
}

// throttle marks every queued entry as held back by a rate limit.
func (s *Scheduler) throttle(b *bucket) {
	for _, e := range b.queue {
		e.throttled = true
	}
}

// arm schedules a pump at at. Caller holds b.mu.
func (s *Scheduler) arm(b *bucket, at time.Time) {
	if b.timer != nil && b.timerAt.Equal(at) {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(max(at.Sub(s.now()), 0), func() { s.fire(b, t) })
	b.timer = t
	b.timerAt = at
}

func (s *Scheduler) disarm(b *bucket) {
	if b.timer == nil {
		return
	}
	b.timer.Stop()
	b.timer = nil
	b.timerAt = time.Time{}
}

func (s *Scheduler) fire(b *bucket, t *time.Timer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != t {
		return
	}
	b.timer = nil
	b.timerAt = time.Time{}
	s.pump(b)
}

// run performs one attempt off the submitter's goroutine. Attempts of one
// bucket reach the executor in the order pump released them.
func (s *Scheduler) run(b *bucket, e *entry, queueWait time.Duration) {
	b.mu.Lock()
	b.awaitTurn(e)
	b.mu.Unlock()

	if s.pacer != nil {
		if err := s.pacer.Wait(e.ctx); err != nil {
			if e.ctx.Err() == nil {
				// The pacer refuses waits that would overrun the deadline.
				err = ErrTimeout
			} else {
				err = contextErr(e.ctx)
			}
			b.mu.Lock()
			b.passTurn()
			b.mu.Unlock()
			s.complete(b, e, Outcome{Err: err})
			return
		}
	}

	b.mu.Lock()
	_, locked := s.global.active(s.now())
	if locked || b.queuedBefore(e) {
		// A global 429 landed while this attempt was paced, or an earlier
		// submission went back to the queue.
		b.unreserve(e)
		b.passTurn()
		b.requeue(e)
		e.throttled = true
		s.watch(b, e)
		s.pump(b)
		b.mu.Unlock()
		return
	}
	b.passTurn()
	b.mu.Unlock()

	s.observer.ObserveDispatch(b.key, queueWait)
	s.complete(b, e, s.exec.Execute(e.ctx, e.req))
}

// complete folds an attempt's outcome into the bucket, then either
// re-queues the entry or settles it.
func (s *Scheduler) complete(b *bucket, e *entry, out Outcome) {
	now := s.now()

	var (
		res        Result
		settle     = true
		persist    bool
		limited    bool
		retryAfter time.Duration
	)

	b.mu.Lock()
	if out.Err != nil {
		b.unreserve(e)
	} else {
		b.inFlight--
		persist = b.apply(out.Info, now)
	}

	switch {
	case out.Err != nil:
		res = Result{Err: s.failure(e, out.Err)}

	case out.StatusCode == http.StatusTooManyRequests:
		limited = true
		retryAfter = out.Info.RetryAfter
		if retryAfter <= 0 {
			retryAfter = fallbackRetryAfter
		}
		e.throttled = true
		if out.Info.Global {
			s.global.lock(now.Add(retryAfter))
		} else {
			b.exhaust(now, retryAfter)
			persist = true
		}

		if e.retries < s.maxRetries && e.ctx.Err() == nil {
			e.retries++
			b.requeue(e)
			s.watch(b, e)
			settle = false
		} else {
			res = Result{
				Body:       out.Body,
				StatusCode: out.StatusCode,
				Header:     out.Header,
				Err: &RateLimitError{
					Global:     out.Info.Global,
					Scope:      out.Info.Scope,
					RetryAfter: retryAfter,
					StatusCode: out.StatusCode,
					Body:       out.Body,
				},
			}
		}

	case out.StatusCode < 200 || out.StatusCode > 299:
		res = Result{
			Body:       out.Body,
			StatusCode: out.StatusCode,
			Header:     out.Header,
			Err:        &HTTPError{StatusCode: out.StatusCode, Body: out.Body},
		}

	default:
		res = Result{Body: out.Body, StatusCode: out.StatusCode, Header: out.Header}
	}

	if settle {
		e.state = stateDone
	}
	s.pump(b)

	var state *core.BucketState
	if persist && s.store != nil {
		state = b.state(now)
	}
	b.mu.Unlock()

	if out.Info.DecodeErr != nil {
		s.logger.Debug("rate limit headers ignored",
			zap.String("bucket", b.key.String()),
			zap.Error(out.Info.DecodeErr))
	}
	if limited {
		s.logger.Info("rate limited",
			zap.String("request_id", e.req.ID),
			zap.String("bucket", b.key.String()),
			zap.Bool("global", out.Info.Global),
			zap.Duration("retry_after", retryAfter),
			zap.Bool("requeued", !settle))
		s.observer.ObserveRateLimit(b.key, out.Info.Global, retryAfter)
	}

	if settle {
		s.observer.ObserveResult(b.key, res.StatusCode, res.Err)
		e.settle(res)
	}
	if state != nil {
		s.save(b.key.String(), state)
	}
}

// failure classifies an error that produced no response.
func (s *Scheduler) failure(e *entry, err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) {
		return err
	}
	if e.ctx.Err() != nil {
		return contextErr(e.ctx)
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return err
	}
	return &TransportError{Err: err}
}
