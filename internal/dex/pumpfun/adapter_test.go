// ==============================================
// File: internal/dex/pumpfun/adapter_test.go
// ==============================================
package pumpfun

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/types"
)

func TestLikelyBondingCurve(t *testing.T) {
	assert.True(t, LikelyBondingCurve("G7sVhxdRKxAXNrEPTzxRmDgvURkegY2nrwWEJDejpump"))
	assert.False(t, LikelyBondingCurve("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	assert.False(t, LikelyBondingCurve(""))
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(srv.URL, nil, zap.NewNop())
}

func curveQuoteRequest() dex.QuoteRequest {
	return dex.QuoteRequest{
		InputMint:   solana.MustPublicKeyFromBase58(wsolMint),
		OutputMint:  solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		AmountIn:    500_000_000,
		SlippageBps: 1000,
	}
}

func TestQuoteRequiresSolInput(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not hit the trade service for a non-SOL pair")
	})

	req := curveQuoteRequest()
	req.InputMint = req.OutputMint
	_, err := adapter.Quote(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.KindNoRoute, types.KindOf(err))
}

func TestQuoteParsesCurveResponse(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buy", body["action"])
		assert.Equal(t, float64(10), body["slippage"], "basis points convert to percent")

		w.Write([]byte(`{"outAmount": 42000000, "priceImpactPct": 2.5, "curveProgress": 0.37}`))
	})

	quote, err := adapter.Quote(context.Background(), curveQuoteRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), quote.AmountOut)
	assert.InDelta(t, 2.5, quote.PriceImpactPct, 1e-9)
	assert.Equal(t, []string{"bonding-curve"}, quote.Route)
}

func TestQuoteServiceRefusalIsNoRoute(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token graduated", http.StatusBadRequest)
	})

	_, err := adapter.Quote(context.Background(), curveQuoteRequest())
	require.Error(t, err)
	assert.Equal(t, types.KindNoRoute, types.KindOf(err),
		"any refusal means the cascade should move to the next venue")
}

func TestQuoteEmptyPayloadIsNoRoute(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outAmount": 0}`))
	})

	_, err := adapter.Quote(context.Background(), curveQuoteRequest())
	require.Error(t, err)
	assert.Equal(t, types.KindNoRoute, types.KindOf(err))
}
