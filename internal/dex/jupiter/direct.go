// =============================
// File: internal/dex/jupiter/direct.go
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

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

const DirectAdapterName = "jupiter-direct"

// DirectAdapter hits the aggregator HTTP API without going through the rate
// limiter queue. It is the cascade's second rung: when the budgeted client is
// saturated or misbehaving, a direct attempt against the public host may
// still get a fill. Retries use plain exponential backoff.
type DirectAdapter struct {
	hostname  string
	http      *http.Client
	scheduler *rpc.Scheduler
	logger    *zap.Logger
}

// NewDirectAdapter creates the unbudgeted aggregator adapter.
func NewDirectAdapter(hostname string, scheduler *rpc.Scheduler, logger *zap.Logger) *DirectAdapter {
	return &DirectAdapter{
		hostname:  hostname,
		http:      &http.Client{Timeout: requestTimeout},
		scheduler: scheduler,
		logger:    logger.Named("jupiter-direct"),
	}
}

func (a *DirectAdapter) Name() string { return DirectAdapterName }

func (a *DirectAdapter) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	url := fmt.Sprintf("%s%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		a.hostname, quotePath, req.InputMint, req.OutputMint, req.AmountIn, req.SlippageBps)

	raw, err := a.getWithRetry(ctx, url)
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), DirectAdapterName, err)
	}
	var quote quoteResponse
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, DirectAdapterName,
			fmt.Errorf("decode quote: %w", err))
	}
	if quote.OutAmount == "" {
		return nil, types.NewTradeError(types.KindNoRoute, DirectAdapterName,
			fmt.Errorf("quote missing outAmount"))
	}
	return toQuote(DirectAdapterName, req, &quote, raw)
}

func (a *DirectAdapter) BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, fee types.PriorityFee) (*types.SwapBundle, error) {
	body, err := json.Marshal(map[string]interface{}{
		"quoteResponse":             json.RawMessage(quote.Raw),
		"userPublicKey":             w.PublicKey.String(),
		"prioritizationFeeLamports": priorityLamports(fee),
		"dynamicComputeUnitLimit":   true,
	})
	if err != nil {
		return nil, err
	}

	operation := func() (*swapResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.hostname+swapPath, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		raw, err := a.do(req)
		if err != nil {
			if !types.IsRetryable(types.KindOf(err)) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		var swap swapResponse
		if err := json.Unmarshal(raw, &swap); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode swap response: %w", err))
		}
		if swap.SwapTransaction == "" {
			return nil, backoff.Permanent(fmt.Errorf("%w: swap response missing transaction", types.ErrNoRoute))
		}
		return &swap, nil
	}

	swap, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), DirectAdapterName, err)
	}
	return toBundle(DirectAdapterName, swap)
}

func (a *DirectAdapter) ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*types.SwapExecution, error) {
	quote, err := a.Quote(ctx, req.QuoteRequest)
	if err != nil {
		return nil, err
	}
	bundle, err := a.BuildSwap(ctx, quote, req.Wallet, req.PriorityFee)
	if err != nil {
		return nil, err
	}
	return submitBundle(ctx, a.scheduler, DirectAdapterName, bundle, req.Wallet, quote, a.logger)
}

func (a *DirectAdapter) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		raw, err := a.do(req)
		if err != nil && !types.IsRetryable(types.KindOf(err)) {
			return nil, backoff.Permanent(err)
		}
		return raw, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
}

func (a *DirectAdapter) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", types.ErrNetwork, err)
	}

	a.logger.Debug("direct aggregator request completed",
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		kind := types.ClassifyStatus(resp.StatusCode)
		return nil, types.NewTradeError(kind, DirectAdapterName,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}
	return raw, nil
}
