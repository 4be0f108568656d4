// =============================
// File: internal/dex/raydium/dsapi.go
// =============================
package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solpulse/memebot/internal/types"
)

const (
	screenerBaseURL = "https://api.dexscreener.com/latest/dex"
	screenerChain   = "solana"
	screenerDex     = "raydium"

	// The listing API allows 300 requests per minute.
	screenerRPM = 300
)

type screenerResponse struct {
	SchemaVersion string         `json:"schemaVersion"`
	Pairs         []screenerPair `json:"pairs"`
}

type screenerPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	Liquidity   struct {
		USD   float64 `json:"usd"`
		Base  float64 `json:"base"`
		Quote float64 `json:"quote"`
	} `json:"liquidity"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// screenerClient is the listing-API fallback for pool discovery. It is only
// consulted when the on-chain program scan comes back empty, so a plain
// token-paced limiter is enough.
type screenerClient struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newScreenerClient(logger *zap.Logger) *screenerClient {
	return &screenerClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/screenerRPM), 1),
		logger:  logger.Named("dexscreener"),
	}
}

// bestPair returns the deepest pool pairing the two mints on this venue, or
// ErrNoRoute when the listing API knows of none.
func (s *screenerClient) bestPair(ctx context.Context, tokenMint, counterMint solana.PublicKey) (*screenerPair, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tokens/%s", screenerBaseURL, tokenMint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, types.NewTradeError(types.ClassifyStatus(resp.StatusCode), "",
			fmt.Errorf("listing api status %d: %s", resp.StatusCode, body))
	}

	var payload screenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode listing response: %w", err)
	}

	counter := counterMint.String()
	var best *screenerPair
	maxLiquidity := 0.0
	for i := range payload.Pairs {
		pair := &payload.Pairs[i]
		if pair.ChainID != screenerChain || pair.DexID != screenerDex {
			continue
		}
		if pair.BaseToken.Address != counter && pair.QuoteToken.Address != counter {
			continue
		}
		if pair.Liquidity.USD > maxLiquidity {
			maxLiquidity = pair.Liquidity.USD
			best = pair
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no pool listed for %s", types.ErrNoRoute, tokenMint)
	}

	s.logger.Info("pool found via listing api",
		zap.String("pair_address", best.PairAddress),
		zap.String("base", best.BaseToken.Symbol),
		zap.String("quote", best.QuoteToken.Symbol),
		zap.Float64("liquidity_usd", maxLiquidity))

	return best, nil
}
