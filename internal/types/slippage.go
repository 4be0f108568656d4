// internal/types/slippage.go
package types

import "math"

// MinAmountOut applies a slippage tolerance in basis points to an expected
// output amount.
func MinAmountOut(expected uint64, slippageBps uint64) uint64 {
	multiplier := 1.0 - float64(slippageBps)/10_000.0
	if multiplier < 0 {
		multiplier = 0
	}
	return uint64(math.Floor(float64(expected) * multiplier))
}

// WidenSlippage returns a loosened tolerance for the single no-route retry:
// 1.5x the original, but at least +100 bps, capped at 100%.
func WidenSlippage(slippageBps uint64) uint64 {
	widened := slippageBps + slippageBps/2
	if widened < slippageBps+100 {
		widened = slippageBps + 100
	}
	if widened > 10_000 {
		widened = 10_000
	}
	return widened
}
