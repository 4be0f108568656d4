// =============================
// File: internal/dex/jupiter/client_test.go
// =============================
package jupiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/ratelimit"
	"github.com/solpulse/memebot/internal/types"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := ratelimit.New(ratelimit.Tier{
		Name:              "test",
		RequestsPerMinute: 6000,
		Burst:             100,
		Hostname:          srv.URL,
		MaxConcurrent:     4,
	}, zap.NewNop())
	t.Cleanup(limiter.Close)

	return NewClient(limiter, zap.NewNop())
}

func TestGetQuoteParsesResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, quotePath, r.URL.Path)
		assert.Equal(t, solMint, r.URL.Query().Get("inputMint"))
		assert.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		w.Write([]byte(`{
			"inputMint": "` + solMint + `",
			"outputMint": "` + usdcMint + `",
			"inAmount": "1000000000",
			"outAmount": "150000000",
			"priceImpactPct": "0.0042",
			"routePlan": [{"swapInfo": {"label": "Whirlpool"}}, {"swapInfo": {"label": "Meteora"}}]
		}`))
	})

	quote, raw, err := client.GetQuote(context.Background(), solMint, usdcMint, 1_000_000_000, 500)
	require.NoError(t, err)
	assert.Equal(t, "150000000", quote.OutAmount)
	assert.Equal(t, "0.0042", quote.PriceImpactPct)
	assert.Len(t, quote.RoutePlan, 2)
	assert.NotEmpty(t, raw, "raw payload is kept for the swap request")
}

func TestGetQuoteMissingRouteIsNoRoute(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outAmount": ""}`))
	})

	_, _, err := client.GetQuote(context.Background(), solMint, usdcMint, 1_000_000_000, 500)
	require.Error(t, err)
	assert.Equal(t, types.KindNoRoute, types.KindOf(err))
}

func TestClientClassifiesBadRequest(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"invalid param: inputMint"}`, http.StatusBadRequest)
	})

	_, _, err := client.GetQuote(context.Background(), "not-a-mint", usdcMint, 1, 500)
	require.Error(t, err)
	assert.Equal(t, types.KindInvalidArg, types.KindOf(err))
	assert.Equal(t, 1, calls, "invalid arguments must not burn retry budget")
}

func TestPostSwapRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, swapPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"swapTransaction": "AQAB", "lastValidBlockHeight": 12345}`))
	})

	swap, err := client.PostSwap(context.Background(), []byte(`{"outAmount":"1"}`), "wallet", 5000)
	require.NoError(t, err)
	assert.Equal(t, "AQAB", swap.SwapTransaction)
	assert.Equal(t, uint64(12345), swap.LastValidBlockHeight)
}

func TestGetPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pricePath, r.URL.Path)
		w.Write([]byte(`{"data": {"` + usdcMint + `": {"price": "0.9998"}}}`))
	})

	price, err := client.GetPrice(context.Background(), usdcMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.9998, price, 1e-9)
}
