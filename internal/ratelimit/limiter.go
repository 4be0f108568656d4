// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/types"
)

// Class selects which bucket a call is budgeted against. Tiers without a
// separate price bucket route everything through the general one.
type Class string

const (
	ClassGeneral Class = "general"
	ClassPrice   Class = "price"
)

// Tier is one rate-limit preset for the upstream aggregator API.
type Tier struct {
	Name                string
	RequestsPerMinute   int
	PriceRequestsPerMin int
	Burst               int
	SeparatePriceBucket bool
	Hostname            string
	MaxConcurrent       int
}

const (
	defaultMaxRetries = 3
	idleRecheck       = 10 * time.Millisecond
	queueDepth        = 256
)

type job struct {
	ctx      context.Context
	class    Class
	fn       func(ctx context.Context) (interface{}, error)
	resultCh chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// Limiter budgets calls against an upstream API. All calls funnel through one
// queue consumed by a single processor goroutine; the processor dispatches a
// job only when a token and a concurrency slot are both free.
type Limiter struct {
	mu       sync.RWMutex
	tier     Tier
	general  *Bucket
	price    *Bucket
	hostname string

	queue      chan *job
	active     int32
	maxRetries int
	logger     *zap.Logger
	closed     chan struct{}
	closeOnce  sync.Once

	// sleepFn is swapped in tests to record backoff growth.
	sleepFn func(time.Duration)
}

// Status is the caller-visible limiter snapshot.
type Status struct {
	Tier            string
	TokensAvailable float64
	QueuedRequests  int
}

// New creates a limiter for the given tier preset and starts its processor.
func New(tier Tier, logger *zap.Logger) *Limiter {
	l := &Limiter{
		queue:      make(chan *job, queueDepth),
		maxRetries: defaultMaxRetries,
		logger:     logger.Named("ratelimit"),
		closed:     make(chan struct{}),
		sleepFn:    time.Sleep,
	}
	l.applyTier(tier)
	go l.process()
	return l
}

func buckets(tier Tier) (general, price *Bucket) {
	general = NewBucket(float64(tier.Burst), float64(tier.RequestsPerMinute)/60.0)
	if tier.SeparatePriceBucket {
		perMin := tier.PriceRequestsPerMin
		if perMin <= 0 {
			perMin = tier.RequestsPerMinute
		}
		price = NewBucket(float64(tier.Burst), float64(perMin)/60.0)
	}
	return general, price
}

func (l *Limiter) applyTier(tier Tier) {
	if tier.Burst <= 0 {
		tier.Burst = 10
	}
	if tier.MaxConcurrent <= 0 {
		tier.MaxConcurrent = 2
	}
	general, price := buckets(tier)

	l.mu.Lock()
	l.tier = tier
	l.general = general
	l.price = price
	l.hostname = tier.Hostname
	l.mu.Unlock()
}

// SetTier atomically replaces both buckets. In-flight calls may complete
// against the old tier's hostname; no stronger guarantee is made.
func (l *Limiter) SetTier(tier Tier) {
	l.applyTier(tier)
	l.logger.Info("rate limiter tier changed",
		zap.String("tier", tier.Name),
		zap.Int("requests_per_minute", tier.RequestsPerMinute),
		zap.String("hostname", tier.Hostname))
}

// Hostname returns the API host for the current tier.
func (l *Limiter) Hostname() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hostname
}

func (l *Limiter) bucketFor(class Class) *Bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if class == ClassPrice && l.price != nil {
		return l.price
	}
	return l.general
}

// TryConsume takes one token from the class bucket without queueing.
func (l *Limiter) TryConsume(class Class) bool {
	return l.bucketFor(class).TryConsume()
}

// WaitTime reports how long a caller of class would wait for a token.
func (l *Limiter) WaitTime(class Class) time.Duration {
	return l.bucketFor(class).WaitTime()
}

// Status returns the limiter snapshot exposed to callers.
func (l *Limiter) Status() Status {
	l.mu.RLock()
	tierName := l.tier.Name
	l.mu.RUnlock()
	return Status{
		Tier:            tierName,
		TokensAvailable: l.bucketFor(ClassGeneral).Tokens(),
		QueuedRequests:  len(l.queue) + int(atomic.LoadInt32(&l.active)),
	}
}

// Do enqueues fn and blocks until it has run (with retries) or ctx is done.
func (l *Limiter) Do(ctx context.Context, class Class, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	j := &job{
		ctx:      ctx,
		class:    class,
		fn:       fn,
		resultCh: make(chan jobResult, 1),
	}
	select {
	case l.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, fmt.Errorf("rate limiter closed")
	}

	select {
	case res := <-j.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute is the typed convenience wrapper around Do.
func Execute[T any](ctx context.Context, l *Limiter, class Class, fn func(ctx context.Context) (T, error)) (T, error) {
	value, err := l.Do(ctx, class, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// process is the single-flight queue consumer.
func (l *Limiter) process() {
	for {
		select {
		case <-l.closed:
			return
		case j := <-l.queue:
			l.dispatch(j)
		}
	}
}

func (l *Limiter) dispatch(j *job) {
	for {
		if j.ctx.Err() != nil {
			j.resultCh <- jobResult{err: j.ctx.Err()}
			return
		}

		l.mu.RLock()
		maxConcurrent := int32(l.tier.MaxConcurrent)
		l.mu.RUnlock()

		if atomic.LoadInt32(&l.active) >= maxConcurrent {
			l.sleepFn(idleRecheck)
			continue
		}
		if l.bucketFor(j.class).TryConsume() {
			break
		}
		wait := l.bucketFor(j.class).WaitTime()
		if wait < idleRecheck {
			wait = idleRecheck
		}
		l.logger.Debug("rate limited, waiting for token",
			zap.String("class", string(j.class)),
			zap.Duration("wait", wait))
		l.sleepFn(wait)
	}

	atomic.AddInt32(&l.active, 1)
	go func() {
		defer atomic.AddInt32(&l.active, -1)
		j.resultCh <- l.run(j)
	}()
}

// run executes the job with class-specific retry backoff. Rate-limit signals
// back off exponentially with jitter, transient network errors linearly;
// everything else fails immediately.
func (l *Limiter) run(j *job) jobResult {
	var lastErr error
	for retries := 0; retries <= l.maxRetries; retries++ {
		value, err := j.fn(j.ctx)
		if err == nil {
			return jobResult{value: value}
		}
		lastErr = err

		kind := types.KindOf(err)
		var delay time.Duration
		switch kind {
		case types.KindRateLimited:
			delay = time.Duration(1<<uint(retries))*time.Second +
				time.Duration(rand.Int63n(int64(time.Second)))
		case types.KindTimeout, types.KindNetwork:
			delay = time.Duration(retries+1)*time.Second +
				time.Duration(rand.Int63n(int64(500*time.Millisecond)))
		default:
			return jobResult{err: err}
		}

		if retries == l.maxRetries {
			break
		}
		l.logger.Warn("upstream call failed, backing off",
			zap.String("class", string(j.class)),
			zap.String("kind", kind.String()),
			zap.Int("retries", retries),
			zap.Duration("delay", delay),
			zap.Error(err))
		l.sleepFn(delay)

		if j.ctx.Err() != nil {
			return jobResult{err: j.ctx.Err()}
		}
	}
	return jobResult{err: fmt.Errorf("retry budget exhausted: %w", lastErr)}
}

// Close stops the processor. Queued jobs that never dispatched are abandoned
// to their contexts.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
}
