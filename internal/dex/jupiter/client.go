// =============================
// File: internal/dex/jupiter/client.go
// =============================
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/ratelimit"
	"github.com/solpulse/memebot/internal/types"
)

const (
	quotePath = "/swap/v1/quote"
	swapPath  = "/swap/v1/swap"
	pricePath = "/price/v2"

	requestTimeout = 10 * time.Second
)

// Client talks to the aggregator HTTP API. Every call is budgeted through
// the shared rate limiter; price lookups use the separate price bucket when
// the tier provides one. The hostname is resolved from the limiter per call,
// so a tier change atomically moves new calls to the new host while in-flight
// calls finish against the old one.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewClient creates an aggregator API client bound to the limiter.
func NewClient(limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		logger:  logger.Named("jupiter-client"),
	}
}

// quoteResponse mirrors the aggregator's quote payload. Amounts come back as
// strings.
type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// swapResponse carries the serialized unsigned transaction.
type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// GetQuote fetches a quote through the general rate bucket.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount, slippageBps uint64) (*quoteResponse, []byte, error) {
	type result struct {
		quote *quoteResponse
		raw   []byte
	}
	res, err := ratelimit.Execute(ctx, c.limiter, ratelimit.ClassGeneral, func(ctx context.Context) (result, error) {
		url := fmt.Sprintf("%s%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
			c.limiter.Hostname(), quotePath, inputMint, outputMint, amount, slippageBps)
		raw, err := c.get(ctx, url)
		if err != nil {
			return result{}, err
		}
		var quote quoteResponse
		if err := json.Unmarshal(raw, &quote); err != nil {
			return result{}, fmt.Errorf("decode quote: %w", err)
		}
		if quote.OutAmount == "" {
			return result{}, fmt.Errorf("%w: quote missing outAmount", types.ErrNoRoute)
		}
		return result{quote: &quote, raw: raw}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.quote, res.raw, nil
}

// PostSwap exchanges a raw quote payload for an unsigned swap transaction.
func (c *Client) PostSwap(ctx context.Context, rawQuote []byte, userPublicKey string, priorityFeeLamports uint64) (*swapResponse, error) {
	return ratelimit.Execute(ctx, c.limiter, ratelimit.ClassGeneral, func(ctx context.Context) (*swapResponse, error) {
		body, err := json.Marshal(map[string]interface{}{
			"quoteResponse":             json.RawMessage(rawQuote),
			"userPublicKey":             userPublicKey,
			"prioritizationFeeLamports": priorityFeeLamports,
			"dynamicComputeUnitLimit":   true,
		})
		if err != nil {
			return nil, err
		}
		raw, err := c.post(ctx, c.limiter.Hostname()+swapPath, body)
		if err != nil {
			return nil, err
		}
		var swap swapResponse
		if err := json.Unmarshal(raw, &swap); err != nil {
			return nil, fmt.Errorf("decode swap response: %w", err)
		}
		if swap.SwapTransaction == "" {
			return nil, fmt.Errorf("%w: swap response missing transaction", types.ErrNoRoute)
		}
		return &swap, nil
	})
}

// GetPrice fetches a token price through the price bucket.
func (c *Client) GetPrice(ctx context.Context, mint string) (float64, error) {
	return ratelimit.Execute(ctx, c.limiter, ratelimit.ClassPrice, func(ctx context.Context) (float64, error) {
		url := fmt.Sprintf("%s%s?ids=%s", c.limiter.Hostname(), pricePath, mint)
		raw, err := c.get(ctx, url)
		if err != nil {
			return 0, err
		}
		var payload struct {
			Data map[string]struct {
				Price string `json:"price"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return 0, fmt.Errorf("decode price: %w", err)
		}
		entry, ok := payload.Data[mint]
		if !ok {
			return 0, fmt.Errorf("no price data for %s", mint)
		}
		var price float64
		if _, err := fmt.Sscanf(entry.Price, "%f", &price); err != nil {
			return 0, fmt.Errorf("parse price %q: %w", entry.Price, err)
		}
		return price, nil
	})
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", types.ErrNetwork, err)
	}

	c.logger.Debug("aggregator request completed",
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		kind := types.ClassifyStatus(resp.StatusCode)
		return nil, types.NewTradeError(kind, "jupiter",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
