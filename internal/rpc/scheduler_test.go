// internal/rpc/scheduler_test.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/config"
	"github.com/solpulse/memebot/internal/types"
)

// fakeOp is a scheduler operation whose behavior is controlled by the test.
type fakeOp struct {
	method string
	run    func(ctx context.Context) (interface{}, error)
}

func (o fakeOp) Method() string { return o.method }

func (o fakeOp) Run(ctx context.Context, _ *solanarpc.Client) (interface{}, error) {
	return o.run(ctx)
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		SpacingMs:            1,
		CallTimeoutSec:       1,
		MaxRetries:           2,
		PerEndpointPerMinute: 1000,
		GlobalPer10Sec:       1000,
		PerMethodPer10Sec:    1000,
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *Registry, *testClock) {
	t.Helper()
	registry, clk := newTestRegistry(t, 2, 1)
	s := NewScheduler(registry, testSchedulerConfig(), zap.NewNop())
	s.sleepFn = func(time.Duration) {}
	t.Cleanup(s.Close)
	return s, registry, clk
}

func TestSchedulerResolvesSuccess(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	got, err := s.Call(context.Background(), fakeOp{
		method: "getBalance",
		run:    func(context.Context) (interface{}, error) { return uint64(42), nil },
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
}

func TestSchedulerRetriesTransientAndRotates(t *testing.T) {
	s, registry, clk := newTestScheduler(t)
	first := registry.Current()

	var calls int32
	got, err := s.Call(context.Background(), fakeOp{
		method: "getLatestBlockhash",
		run: func(context.Context) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, types.ErrNetwork
			}
			return "blockhash", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "blockhash", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// The failure cooled the first endpoint and rotated away from it.
	assert.NotEqual(t, first, registry.Current())
	assert.True(t, first.CoolingDown(clk.now.Add(time.Second)))
}

func TestSchedulerNonRetryableFailsImmediately(t *testing.T) {
	s, registry, _ := newTestScheduler(t)
	first := registry.Current()

	var calls int32
	_, err := s.Call(context.Background(), fakeOp{
		method: "sendTransaction",
		run: func(context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, fmt.Errorf("%w: bad signature", types.ErrInvalidArg)
		},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "invalid arguments are never retried")
	assert.True(t, errors.Is(err, types.ErrInvalidArg))

	// Programmer errors are not the endpoint's fault: no cooldown, no rotation.
	assert.Equal(t, first, registry.Current())
	assert.False(t, first.CoolingDown(time.Now()))

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "sendTransaction", rpcErr.Method)
	assert.Equal(t, first.URL, rpcErr.NodeURL)
}

func TestSchedulerRetryBudgetExhausted(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	var calls int32
	_, err := s.Call(context.Background(), fakeOp{
		method: "getAccountInfo",
		run: func(context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, types.ErrNetwork
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetryBudgetExhausted))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus MaxRetries")
}

func TestSchedulerRequeuePutsRetryAtFront(t *testing.T) {
	// Exercise the queue discipline directly, without the processor.
	s := &Scheduler{
		wake:        make(chan struct{}, 1),
		methodTimes: make(map[string][]time.Time),
		nowFn:       time.Now,
	}

	a := &pending{resultCh: make(chan schedResult, 1)}
	b := &pending{resultCh: make(chan schedResult, 1)}
	require.NoError(t, s.push(a, false))
	require.NoError(t, s.push(b, true))

	got, open := s.pop()
	require.True(t, open)
	assert.Equal(t, b, got, "front-pushed request dispatches before older work")

	got, _ = s.pop()
	assert.Equal(t, a, got)
}

func TestSchedulerCallTimeoutClassified(t *testing.T) {
	registry, _ := newTestRegistry(t, 1)
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 0
	s := NewScheduler(registry, cfg, zap.NewNop())
	s.sleepFn = func(time.Duration) {}
	defer s.Close()

	_, err := s.Call(context.Background(), fakeOp{
		method: "getProgramAccounts",
		run: func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindTimeout, types.KindOf(err))
}

func TestSchedulerClosedRejectsWork(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.Close()

	_, err := s.Call(context.Background(), fakeOp{
		method: "getBalance",
		run:    func(context.Context) (interface{}, error) { return nil, nil },
	})
	assert.Error(t, err)
}
