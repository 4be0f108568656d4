// =============================
// File: internal/dex/raydium/math.go
// =============================
package raydium

import "math/big"

// SwapFee is the constant-product pool trade fee (0.25%).
const SwapFee = 0.0025

// CalculateOutput computes the constant-product output amount:
// amountOut = reserveOut * a / (reserveIn + a), with a = amountIn * (1 - fee).
// big.Float keeps the intermediate product exact for large reserves.
func CalculateOutput(reserveIn, reserveOut, amountIn uint64, feeFactor float64) uint64 {
	x := new(big.Float).SetUint64(reserveIn)
	y := new(big.Float).SetUint64(reserveOut)
	a := new(big.Float).SetUint64(amountIn)

	a.Mul(a, big.NewFloat(feeFactor))

	numerator := new(big.Float).Mul(y, a)
	denominator := new(big.Float).Add(x, a)
	result := new(big.Float).Quo(numerator, denominator)

	output, _ := result.Uint64()
	return output
}

// PriceImpact returns the relative deviation between spot and execution
// price, in percent, scaled by the pool's volatility factor. Thin or
// volatile pools carry a factor above 1.0 so their impact estimates are
// amplified rather than special-casing token addresses.
func PriceImpact(reserveIn, reserveOut, amountIn, amountOut uint64, volatilityFactor float64) float64 {
	if reserveIn == 0 || reserveOut == 0 || amountIn == 0 || amountOut == 0 {
		return 0
	}
	spot := float64(reserveOut) / float64(reserveIn)
	execution := float64(amountOut) / float64(amountIn)
	if spot == 0 {
		return 0
	}
	impact := (spot - execution) / spot * 100
	if impact < 0 {
		impact = -impact
	}
	if volatilityFactor <= 0 {
		volatilityFactor = 1.0
	}
	return impact * volatilityFactor
}

// ReserveProduct compares pool depth; the pool with the highest product wins
// when a pair has several pools.
func ReserveProduct(baseReserve, quoteReserve uint64) *big.Int {
	product := new(big.Int).SetUint64(baseReserve)
	return product.Mul(product, new(big.Int).SetUint64(quoteReserve))
}
