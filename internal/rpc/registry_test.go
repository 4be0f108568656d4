// internal/rpc/registry_test.go
package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/config"
	"github.com/solpulse/memebot/internal/types"
)

type testClock struct {
	now time.Time
}

func (c *testClock) fn() func() time.Time {
	return func() time.Time { return c.now }
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, tiers ...int) (*Registry, *testClock) {
	t.Helper()
	cfgs := make([]config.EndpointConfig, 0, len(tiers))
	for i, tier := range tiers {
		cfgs = append(cfgs, config.EndpointConfig{
			URL:  "https://rpc-" + string(rune('a'+i)) + ".example.test",
			Tier: tier,
		})
	}
	r, err := NewRegistry(cfgs, time.Minute, zap.NewNop())
	require.NoError(t, err)

	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	r.nowFn = clk.fn()
	r.lastRotation = clk.now
	return r, clk
}

func TestRegistryRejectsEmptyConfig(t *testing.T) {
	_, err := NewRegistry(nil, time.Minute, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoActiveEndpoints)
}

func TestRegistrySelectsHighestTierFirst(t *testing.T) {
	r, _ := newTestRegistry(t, 1, 3, 2)
	assert.Equal(t, 3, r.Current().Tier)

	// Selection order is tier-descending regardless of config order.
	tiers := make([]int, 0, 3)
	for _, ep := range r.Endpoints() {
		tiers = append(tiers, ep.Tier)
	}
	assert.Equal(t, []int{3, 2, 1}, tiers)
}

func TestRotateSkipsCoolingEndpoints(t *testing.T) {
	r, _ := newTestRegistry(t, 3, 2, 1)

	best := r.Current()
	r.MarkFailed(best, time.Minute)
	rotated := r.Rotate()

	assert.Equal(t, 2, rotated.Tier, "rotation must pick the best non-cooling endpoint")
	assert.Equal(t, rotated, r.Current())
}

func TestMarkFailedEscalatesDoubling(t *testing.T) {
	r, clk := newTestRegistry(t, 1)
	ep := r.Current()

	r.MarkFailed(ep, time.Minute)
	assert.Equal(t, clk.now.Add(time.Minute), ep.CooldownUntil())

	// A repeat failure while cooling doubles the remaining time.
	r.MarkFailed(ep, time.Minute)
	assert.Equal(t, clk.now.Add(2*time.Minute), ep.CooldownUntil())

	r.MarkFailed(ep, time.Minute)
	assert.Equal(t, clk.now.Add(4*time.Minute), ep.CooldownUntil())

	// Escalation is capped.
	r.MarkFailed(ep, time.Minute)
	r.MarkFailed(ep, time.Minute)
	assert.Equal(t, clk.now.Add(10*time.Minute), ep.CooldownUntil())
}

func TestMarkFailedBaseDependsOnKind(t *testing.T) {
	r, clk := newTestRegistry(t, 2, 1)
	ep := r.Current()

	r.MarkFailed(ep, CooldownForKind(types.KindAuth))
	assert.Equal(t, clk.now.Add(60*time.Minute), ep.CooldownUntil())

	ep2 := r.Endpoints()[1]
	r.MarkFailed(ep2, CooldownForKind(types.KindRateLimited))
	assert.Equal(t, clk.now.Add(2*time.Minute), ep2.CooldownUntil())
}

func TestForceSelectWhenAllCooling(t *testing.T) {
	r, clk := newTestRegistry(t, 3, 2, 1)

	endpoints := r.Endpoints()
	endpoints[0].SetCooldown(clk.now.Add(5 * time.Minute))
	endpoints[1].SetCooldown(clk.now.Add(1 * time.Minute)) // soonest expiry
	endpoints[2].SetCooldown(clk.now.Add(3 * time.Minute))

	forced := r.Rotate()
	assert.Equal(t, endpoints[1], forced, "soonest-expiring endpoint wins")
	assert.False(t, forced.CoolingDown(clk.now), "forced selection clears its cooldown")
}

func TestHigherTierAvailable(t *testing.T) {
	r, clk := newTestRegistry(t, 3, 1)
	endpoints := r.Endpoints()

	// Force current down to the low tier.
	r.MarkFailed(endpoints[0], 2*time.Minute)
	r.Rotate()
	require.Equal(t, 1, r.Current().Tier)
	assert.False(t, r.HigherTierAvailable(), "tier-3 still cooling")

	clk.advance(3 * time.Minute)
	assert.True(t, r.HigherTierAvailable(), "tier-3 cooled off")
}

func TestRotationDueAfterInterval(t *testing.T) {
	r, clk := newTestRegistry(t, 1)

	assert.False(t, r.RotationDue())
	clk.advance(3 * time.Minute)
	assert.True(t, r.RotationDue())

	r.Rotate()
	assert.False(t, r.RotationDue(), "rotation resets the interval")
}
