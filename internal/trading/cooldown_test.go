// ======================================
// File: internal/trading/cooldown_test.go
// ======================================
package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgpmp"

type testClock struct {
	now time.Time
}

func (c *testClock) fn() func() time.Time {
	return func() time.Time { return c.now }
}

func newTestTracker(threshold int, window time.Duration) (*CooldownTracker, *testClock) {
	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	tracker := NewCooldownTracker(threshold, window, nil, zap.NewNop())
	tracker.nowFn = clk.fn()
	return tracker, clk
}

func TestCooldownBenchesAtThreshold(t *testing.T) {
	tracker, clk := newTestTracker(3, 10*time.Minute)

	assert.False(t, tracker.RecordFailure(testMint))
	assert.False(t, tracker.RecordFailure(testMint))
	benched, _ := tracker.OnCooldown(testMint)
	assert.False(t, benched, "below threshold, still tradable")

	assert.True(t, tracker.RecordFailure(testMint), "third failure benches")
	benched, until := tracker.OnCooldown(testMint)
	assert.True(t, benched)
	assert.Equal(t, clk.now.Add(10*time.Minute), until)
	assert.Equal(t, 1, tracker.ActiveCount())
}

func TestCooldownExpiryClearsCounter(t *testing.T) {
	tracker, clk := newTestTracker(3, 10*time.Minute)

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(testMint)
	}
	benched, _ := tracker.OnCooldown(testMint)
	require.True(t, benched)

	clk.now = clk.now.Add(10*time.Minute + time.Second)
	benched, _ = tracker.OnCooldown(testMint)
	assert.False(t, benched, "cooldown expired")
	assert.Equal(t, 0, tracker.ActiveCount())

	// Expiry resets the failure count: the token gets a fresh threshold.
	assert.False(t, tracker.RecordFailure(testMint))
	assert.False(t, tracker.RecordFailure(testMint))
	assert.True(t, tracker.RecordFailure(testMint))
}

func TestCooldownSuccessResetsCounter(t *testing.T) {
	tracker, _ := newTestTracker(3, 10*time.Minute)

	tracker.RecordFailure(testMint)
	tracker.RecordFailure(testMint)
	tracker.RecordSuccess(testMint)

	assert.False(t, tracker.RecordFailure(testMint))
	assert.False(t, tracker.RecordFailure(testMint))
	benched, _ := tracker.OnCooldown(testMint)
	assert.False(t, benched, "success wiped the earlier failures")
}

func TestCooldownFurtherFailuresDontExtend(t *testing.T) {
	tracker, clk := newTestTracker(2, 5*time.Minute)

	tracker.RecordFailure(testMint)
	require.True(t, tracker.RecordFailure(testMint))
	_, until := tracker.OnCooldown(testMint)

	clk.now = clk.now.Add(time.Minute)
	assert.False(t, tracker.RecordFailure(testMint), "already benched, no re-bench")
	_, stillUntil := tracker.OnCooldown(testMint)
	assert.Equal(t, until, stillUntil, "bench window is fixed once set")
}

func TestCooldownStaleFailuresPruned(t *testing.T) {
	tracker, clk := newTestTracker(3, 10*time.Minute)
	other := "So11111111111111111111111111111111111111112"

	tracker.RecordFailure(testMint)
	tracker.RecordFailure(testMint)
	tracker.RecordFailure(other)

	// A window without further failures wipes sub-threshold history: the old
	// counts must not contribute to a later bench.
	clk.now = clk.now.Add(10*time.Minute + time.Second)
	assert.False(t, tracker.RecordFailure(testMint), "stale count restarted, not third failure")

	tracker.mu.Lock()
	_, stale := tracker.entries[other]
	entry := tracker.entries[testMint]
	tracker.mu.Unlock()
	assert.False(t, stale, "untouched stale entries are dropped from the map")
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.failures)
}

func TestCooldownTracksTokensIndependently(t *testing.T) {
	tracker, _ := newTestTracker(2, 5*time.Minute)
	other := "So11111111111111111111111111111111111111112"

	tracker.RecordFailure(testMint)
	tracker.RecordFailure(testMint)
	benched, _ := tracker.OnCooldown(testMint)
	assert.True(t, benched)

	benched, _ = tracker.OnCooldown(other)
	assert.False(t, benched)
	assert.Equal(t, 1, tracker.ActiveCount())
}
