// internal/types/slippage_test.go
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinAmountOut(t *testing.T) {
	tests := []struct {
		name        string
		expected    uint64
		slippageBps uint64
		want        uint64
	}{
		{"5 percent", 1_000_000, 500, 950_000},
		{"1 percent", 1_000_000, 100, 990_000},
		{"zero slippage", 1_000_000, 0, 1_000_000},
		{"full slippage", 1_000_000, 10_000, 0},
		{"rounds down", 999, 100, 989},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinAmountOut(tt.expected, tt.slippageBps))
		})
	}
}

func TestWidenSlippage(t *testing.T) {
	// 1.5x dominates once the original tolerance exceeds 200 bps.
	assert.Equal(t, uint64(750), WidenSlippage(500))
	assert.Equal(t, uint64(1500), WidenSlippage(1000))

	// Tight tolerances get at least +100 bps.
	assert.Equal(t, uint64(150), WidenSlippage(50))
	assert.Equal(t, uint64(110), WidenSlippage(10))

	// Capped at 100%.
	assert.Equal(t, uint64(10_000), WidenSlippage(9_000))
	assert.Equal(t, uint64(10_000), WidenSlippage(10_000))
}
