// internal/rpc/scheduler.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solpulse/memebot/internal/config"
	"github.com/solpulse/memebot/internal/metrics"
	"github.com/solpulse/memebot/internal/types"
)

const (
	retryBackoffBase = 1 * time.Second
	retryBackoffCap  = 30 * time.Second
	windowSpan       = 10 * time.Second
)

// RetryState is the explicit retry bookkeeping threaded through the
// scheduler loop for one queued request.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	LastErr     error
}

type schedResult struct {
	value interface{}
	err   error
}

type pending struct {
	id         uuid.UUID
	ctx        context.Context
	op         Operation
	retry      RetryState
	resultCh   chan schedResult
	enqueuedAt time.Time
}

// Scheduler funnels every outbound RPC call through one FIFO queue processed
// one request at a time. Retried requests re-enter at the front of the queue,
// trading strict fairness for faster recovery.
type Scheduler struct {
	registry *Registry
	cfg      config.SchedulerConfig
	spacing  *rate.Limiter
	logger   *zap.Logger

	mu     sync.Mutex
	queue  []*pending
	wake   chan struct{}
	closed bool

	windowMu    sync.Mutex
	globalTimes []time.Time
	methodTimes map[string][]time.Time

	nowFn     func() time.Time
	sleepFn   func(time.Duration)
	collector *metrics.Collector
}

// NewScheduler creates a scheduler and starts its processor goroutine.
func NewScheduler(registry *Registry, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	spacing := time.Duration(cfg.SpacingMs) * time.Millisecond
	s := &Scheduler{
		registry:    registry,
		cfg:         cfg,
		spacing:     rate.NewLimiter(rate.Every(spacing), 1),
		logger:      logger.Named("rpc-scheduler"),
		wake:        make(chan struct{}, 1),
		methodTimes: make(map[string][]time.Time),
		nowFn:       time.Now,
		sleepFn:     time.Sleep,
	}
	go s.process()
	return s
}

// SetMetrics attaches the prometheus collector. Optional; nil is fine.
func (s *Scheduler) SetMetrics(c *metrics.Collector) {
	s.collector = c
}

// Call enqueues op and blocks until it resolves or ctx is done.
func (s *Scheduler) Call(ctx context.Context, op Operation) (interface{}, error) {
	req := &pending{
		id:         uuid.New(),
		ctx:        ctx,
		op:         op,
		retry:      RetryState{MaxAttempts: s.cfg.MaxRetries},
		resultCh:   make(chan schedResult, 1),
		enqueuedAt: s.nowFn(),
	}
	if err := s.push(req, false); err != nil {
		return nil, err
	}

	select {
	case res := <-req.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueDepth reports how many requests are waiting.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the processor; waiting requests resolve with an error.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	waiting := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, req := range waiting {
		req.resultCh <- schedResult{err: errors.New("scheduler closed")}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) push(req *pending, front bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("scheduler closed")
	}
	if front {
		s.queue = append([]*pending{req}, s.queue...)
	} else {
		s.queue = append(s.queue, req)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Scheduler) pop() (*pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	if len(s.queue) == 0 {
		return nil, true
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	return req, true
}

func (s *Scheduler) process() {
	for {
		req, open := s.pop()
		if !open {
			return
		}
		if req == nil {
			<-s.wake
			continue
		}
		s.dispatch(req)
	}
}

// dispatch runs one request against the current endpoint and either resolves
// it or requeues it at the front with backoff.
func (s *Scheduler) dispatch(req *pending) {
	if req.ctx.Err() != nil {
		req.resultCh <- schedResult{err: req.ctx.Err()}
		return
	}

	s.maybeRotate()
	s.throttle(req.ctx, req.op.Method())

	if err := s.spacing.Wait(req.ctx); err != nil {
		req.resultCh <- schedResult{err: err}
		return
	}

	endpoint := s.registry.Current()
	now := s.nowFn()
	endpoint.TrackRequest(now)
	s.trackCall(req.op.Method(), now)

	callCtx, cancel := context.WithTimeout(req.ctx,
		time.Duration(s.cfg.CallTimeoutSec)*time.Second)
	start := s.nowFn()
	value, err := req.op.Run(callCtx, endpoint.Client)
	latency := s.nowFn().Sub(start)
	cancel()

	// A hard timeout counts as a retryable network-class failure.
	if err == nil && callCtx.Err() != nil {
		err = types.ErrTimeout
	}
	endpoint.RecordResult(err == nil, latency)
	if s.collector != nil {
		s.collector.RecordRPCLatency(req.op.Method(), endpoint.URL, latency)
	}

	if err == nil {
		req.resultCh <- schedResult{value: value}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) && req.ctx.Err() == nil {
		err = fmt.Errorf("%w: %s after %s", types.ErrTimeout, req.op.Method(), latency)
	}
	kind := types.KindOf(err)
	wrapped := NewError(err, endpoint.URL, req.op.Method())

	// Every failure feeds endpoint knowledge before anything is surfaced.
	// Invalid arguments are a programmer error, not the endpoint's fault.
	if kind != types.KindInvalidArg {
		s.registry.MarkFailed(endpoint, CooldownForKind(kind))
		s.registry.Rotate()
	}

	if !types.IsRetryable(kind) {
		s.logger.Warn("non-retryable RPC failure",
			zap.String("id", req.id.String()),
			zap.String("method", req.op.Method()),
			zap.String("kind", kind.String()),
			zap.Error(err))
		req.resultCh <- schedResult{err: wrapped}
		return
	}

	req.retry.Attempt++
	req.retry.LastErr = wrapped
	if req.retry.Attempt > req.retry.MaxAttempts {
		req.resultCh <- schedResult{
			err: fmt.Errorf("%w after %d attempts: %w",
				ErrRetryBudgetExhausted, req.retry.Attempt, wrapped),
		}
		return
	}

	delay := s.retryDelay(req.retry.Attempt)
	s.logger.Warn("retryable RPC failure, requeueing at front",
		zap.String("id", req.id.String()),
		zap.String("method", req.op.Method()),
		zap.String("kind", kind.String()),
		zap.Int("attempt", req.retry.Attempt),
		zap.Duration("backoff", delay),
		zap.Error(err))

	s.sleepFn(delay)
	if err := s.push(req, true); err != nil {
		req.resultCh <- schedResult{err: err}
	}
}

// retryDelay grows exponentially from the base with jitter, capped.
func (s *Scheduler) retryDelay(attempt int) time.Duration {
	delay := retryBackoffBase << uint(attempt-1)
	if delay > retryBackoffCap {
		delay = retryBackoffCap
	}
	return delay + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
}

// maybeRotate evaluates the rotation triggers before the next dispatch.
func (s *Scheduler) maybeRotate() {
	endpoint := s.registry.Current()
	now := s.nowFn()

	var reason string
	switch {
	case endpoint.CoolingDown(now):
		reason = "current endpoint cooling down"
	case s.globalWindowCount(now) > s.cfg.GlobalPer10Sec*8/10:
		reason = "approaching global rate ceiling"
	case endpoint.RequestsInLastMinute(now) >= s.cfg.PerEndpointPerMinute:
		reason = "per-endpoint minute cap reached"
	case s.registry.RotationDue():
		reason = "load spreading interval elapsed"
	case s.registry.HigherTierAvailable():
		reason = "higher tier endpoint available"
	default:
		return
	}

	s.logger.Debug("rotating endpoint", zap.String("reason", reason))
	s.registry.Rotate()
}

// throttle blocks while the per-method 10-second window is saturated.
func (s *Scheduler) throttle(ctx context.Context, method string) {
	for ctx.Err() == nil {
		now := s.nowFn()
		if s.methodWindowCount(method, now) < s.cfg.PerMethodPer10Sec {
			return
		}
		s.sleepFn(100 * time.Millisecond)
	}
}

func (s *Scheduler) trackCall(method string, now time.Time) {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	s.globalTimes = pruneWindow(append(s.globalTimes, now), now)
	s.methodTimes[method] = pruneWindow(append(s.methodTimes[method], now), now)
}

func (s *Scheduler) globalWindowCount(now time.Time) int {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	s.globalTimes = pruneWindow(s.globalTimes, now)
	return len(s.globalTimes)
}

func (s *Scheduler) methodWindowCount(method string, now time.Time) int {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	s.methodTimes[method] = pruneWindow(s.methodTimes[method], now)
	return len(s.methodTimes[method])
}

func pruneWindow(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-windowSpan)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
