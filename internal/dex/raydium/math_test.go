// =============================
// File: internal/dex/raydium/math_test.go
// =============================
package raydium

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateOutputConstantProduct(t *testing.T) {
	// Balanced pool, 0.25% fee: a = 1000 * 0.9975 = 997.5,
	// out = 1_000_000 * 997.5 / (1_000_000 + 997.5) ≈ 996.5.
	out := CalculateOutput(1_000_000, 1_000_000, 1_000, 1-SwapFee)
	assert.Equal(t, uint64(996), out)

	// Without a fee the full input trades.
	out = CalculateOutput(1_000_000, 1_000_000, 1_000, 1.0)
	assert.Equal(t, uint64(999), out, "x*y=k rounding, floor of 999.0009...")
}

func TestCalculateOutputLargeReserves(t *testing.T) {
	// Reserves near uint64 range must not lose precision.
	reserveIn := uint64(1 << 60)
	reserveOut := uint64(1 << 61)
	amountIn := uint64(1 << 30)

	out := CalculateOutput(reserveIn, reserveOut, amountIn, 1-SwapFee)
	assert.Greater(t, out, uint64(0))
	assert.Less(t, out, reserveOut)

	// Output scales roughly 2:1 with the reserve ratio minus the fee.
	expected := float64(amountIn) * 0.9975 * 2
	assert.InEpsilon(t, expected, float64(out), 0.001)
}

func TestCalculateOutputMonotonic(t *testing.T) {
	prev := uint64(0)
	for _, amount := range []uint64{100, 1_000, 10_000, 100_000} {
		out := CalculateOutput(1_000_000, 2_000_000, amount, 1-SwapFee)
		assert.Greater(t, out, prev)
		prev = out
	}
}

func TestPriceImpactGrowsWithSize(t *testing.T) {
	small := CalculateOutput(1_000_000, 1_000_000, 1_000, 1.0)
	large := CalculateOutput(1_000_000, 1_000_000, 100_000, 1.0)

	impactSmall := PriceImpact(1_000_000, 1_000_000, 1_000, small, 1.0)
	impactLarge := PriceImpact(1_000_000, 1_000_000, 100_000, large, 1.0)

	assert.Greater(t, impactLarge, impactSmall)
	// Trading 10% of the pool moves the execution price close to 10%.
	assert.InDelta(t, 9.1, impactLarge, 0.5)
}

func TestPriceImpactVolatilityScaling(t *testing.T) {
	out := CalculateOutput(1_000_000, 1_000_000, 50_000, 1.0)

	base := PriceImpact(1_000_000, 1_000_000, 50_000, out, 1.0)
	doubled := PriceImpact(1_000_000, 1_000_000, 50_000, out, 2.0)
	assert.InDelta(t, base*2, doubled, 1e-9)

	// Non-positive factors fall back to neutral scaling.
	neutral := PriceImpact(1_000_000, 1_000_000, 50_000, out, 0)
	assert.InDelta(t, base, neutral, 1e-9)
}

func TestPriceImpactDegenerateInputs(t *testing.T) {
	assert.Zero(t, PriceImpact(0, 1_000_000, 1_000, 999, 1.0))
	assert.Zero(t, PriceImpact(1_000_000, 0, 1_000, 999, 1.0))
	assert.Zero(t, PriceImpact(1_000_000, 1_000_000, 0, 0, 1.0))
}

func TestReserveProductOrdering(t *testing.T) {
	deep := ReserveProduct(1<<62, 1<<62)
	shallow := ReserveProduct(1<<40, 1<<40)
	assert.Equal(t, 1, deep.Cmp(shallow), "deeper pool must compare greater")
}

func TestPoolFeeFactor(t *testing.T) {
	pool := &Pool{SwapFeeNumerator: 25, SwapFeeDenominator: 10_000}
	assert.InDelta(t, 0.9975, pool.FeeFactor(), 1e-9)

	// Missing on-chain fee fields fall back to the venue default.
	pool = &Pool{}
	assert.InDelta(t, 1-SwapFee, pool.FeeFactor(), 1e-9)
}

func TestPoolReservesFor(t *testing.T) {
	base := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	quote := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	pool := &Pool{BaseMint: base, QuoteMint: quote, BaseReserve: 100, QuoteReserve: 200}

	in, out, ok := pool.ReservesFor(base)
	require.True(t, ok)
	assert.Equal(t, uint64(100), in)
	assert.Equal(t, uint64(200), out)

	in, out, ok = pool.ReservesFor(quote)
	require.True(t, ok)
	assert.Equal(t, uint64(200), in)
	assert.Equal(t, uint64(100), out)

	_, _, ok = pool.ReservesFor(solana.MustPublicKeyFromBase58("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"))
	assert.False(t, ok)
}

func TestDecodePool(t *testing.T) {
	ammID := solana.NewWallet().PublicKey()
	baseVault := solana.NewWallet().PublicKey()
	quoteVault := solana.NewWallet().PublicKey()
	baseMint := solana.NewWallet().PublicKey()
	quoteMint := solana.NewWallet().PublicKey()
	openOrders := solana.NewWallet().PublicKey()
	marketID := solana.NewWallet().PublicKey()
	marketProgram := solana.NewWallet().PublicKey()
	targetOrders := solana.NewWallet().PublicKey()

	data := make([]byte, ammStateSize)
	binary.LittleEndian.PutUint64(data[offSwapFeeNumerator:], 25)
	binary.LittleEndian.PutUint64(data[offSwapFeeDenominator:], 10_000)
	copy(data[offBaseVault:], baseVault.Bytes())
	copy(data[offQuoteVault:], quoteVault.Bytes())
	copy(data[offBaseMint:], baseMint.Bytes())
	copy(data[offQuoteMint:], quoteMint.Bytes())
	copy(data[offOpenOrders:], openOrders.Bytes())
	copy(data[offMarketID:], marketID.Bytes())
	copy(data[offMarketProgram:], marketProgram.Bytes())
	copy(data[offTargetOrders:], targetOrders.Bytes())

	pool, err := decodePool(ammID, data)
	require.NoError(t, err)
	assert.Equal(t, ammID, pool.AmmID)
	assert.Equal(t, AmmAuthority, pool.Authority)
	assert.Equal(t, baseVault, pool.BaseVault)
	assert.Equal(t, quoteVault, pool.QuoteVault)
	assert.Equal(t, baseMint, pool.BaseMint)
	assert.Equal(t, quoteMint, pool.QuoteMint)
	assert.Equal(t, openOrders, pool.OpenOrders)
	assert.Equal(t, marketID, pool.MarketID)
	assert.Equal(t, marketProgram, pool.MarketProgram)
	assert.Equal(t, targetOrders, pool.TargetOrders)
	assert.Equal(t, uint64(25), pool.SwapFeeNumerator)
	assert.Equal(t, uint64(10_000), pool.SwapFeeDenominator)

	_, err = decodePool(ammID, data[:100])
	assert.Error(t, err, "truncated account must be rejected")
}

func TestSwapInstructionLayout(t *testing.T) {
	pool := &Pool{
		AmmID:             solana.NewWallet().PublicKey(),
		Authority:         AmmAuthority,
		OpenOrders:        solana.NewWallet().PublicKey(),
		TargetOrders:      solana.NewWallet().PublicKey(),
		BaseVault:         solana.NewWallet().PublicKey(),
		QuoteVault:        solana.NewWallet().PublicKey(),
		MarketProgram:     solana.NewWallet().PublicKey(),
		MarketID:          solana.NewWallet().PublicKey(),
		MarketBids:        solana.NewWallet().PublicKey(),
		MarketAsks:        solana.NewWallet().PublicKey(),
		MarketEventQueue:  solana.NewWallet().PublicKey(),
		MarketBaseVault:   solana.NewWallet().PublicKey(),
		MarketQuoteVault:  solana.NewWallet().PublicKey(),
		MarketVaultSigner: solana.NewWallet().PublicKey(),
	}
	owner := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	destination := solana.NewWallet().PublicKey()

	ix := swapInstruction(pool, source, destination, owner, 1_000_000, 990_000)
	assert.Equal(t, AmmProgramID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 18)
	assert.Equal(t, solana.TokenProgramID, accounts[0].PublicKey)
	assert.Equal(t, pool.AmmID, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.Equal(t, owner, accounts[17].PublicKey)
	assert.True(t, accounts[17].IsSigner)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 17)
	assert.Equal(t, byte(swapBaseIn), data[0])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint64(990_000), binary.LittleEndian.Uint64(data[9:17]))
}
