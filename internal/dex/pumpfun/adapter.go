// ==============================================
// File: internal/dex/pumpfun/adapter.go
// ==============================================
package pumpfun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

const AdapterName = "pumpfun"

const (
	requestTimeout = 10 * time.Second

	// Native SOL mint; the bonding curve only trades against SOL.
	wsolMint = "So11111111111111111111111111111111111111112"
)

// LikelyBondingCurve reports whether a mint address looks like it was
// created on the bonding-curve venue, which vanity-suffixes its mints.
// Such tokens are tried on this adapter first.
func LikelyBondingCurve(mint string) bool {
	return strings.HasSuffix(mint, "pump")
}

// Adapter trades tokens still on their bonding curve. Quote, build and
// execute are all delegated to an external trade service over HTTP; any
// non-2xx or missing-field response is treated as no-route so the cascade
// moves on. The service is wrapped in a circuit breaker.
type Adapter struct {
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	scheduler *rpc.Scheduler
	logger    *zap.Logger
}

// NewAdapter creates the bonding-curve adapter against the trade service.
func NewAdapter(baseURL string, scheduler *rpc.Scheduler, logger *zap.Logger) *Adapter {
	log := logger.Named("pumpfun")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pumpfun-trade-service",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Adapter{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: requestTimeout},
		breaker:   breaker,
		scheduler: scheduler,
		logger:    log,
	}
}

func (a *Adapter) Name() string { return AdapterName }

// quotePayload is the trade service's quote response.
type quotePayload struct {
	OutAmount      uint64  `json:"outAmount"`
	PriceImpactPct float64 `json:"priceImpactPct"`
	CurveProgress  float64 `json:"curveProgress"`
}

func (a *Adapter) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	if req.InputMint.String() != wsolMint {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("bonding curve only trades SOL pairs"))
	}

	body, _ := json.Marshal(map[string]interface{}{
		"action":           "buy",
		"mint":             req.OutputMint.String(),
		"amount":           req.AmountIn,
		"denominatedInSol": "true",
		"slippage":         float64(req.SlippageBps) / 100.0,
	})
	raw, err := a.post(ctx, a.baseURL+"/quote", body)
	if err != nil {
		return nil, err
	}

	var quote quotePayload
	if err := json.Unmarshal(raw, &quote); err != nil || quote.OutAmount == 0 {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("trade service returned no quote for %s", req.OutputMint))
	}

	return &types.Quote{
		Adapter:        AdapterName,
		InputMint:      req.InputMint,
		OutputMint:     req.OutputMint,
		AmountIn:       req.AmountIn,
		AmountOut:      quote.OutAmount,
		PriceImpactPct: quote.PriceImpactPct,
		SlippageBps:    req.SlippageBps,
		Route:          []string{"bonding-curve"},
		Raw:            raw,
	}, nil
}

func (a *Adapter) BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, fee types.PriorityFee) (*types.SwapBundle, error) {
	priorityFeeSol := float64(fee.MicroLamports) * float64(fee.ComputeUnits) / 1e15

	body, _ := json.Marshal(map[string]interface{}{
		"publicKey":        w.PublicKey.String(),
		"action":           "buy",
		"mint":             quote.OutputMint.String(),
		"amount":           quote.AmountIn,
		"denominatedInSol": "true",
		"slippage":         float64(quote.SlippageBps) / 100.0,
		"priorityFee":      priorityFeeSol,
		"pool":             "pump",
	})
	raw, err := a.post(ctx, a.baseURL+"/trade-local", body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("trade service returned empty transaction"))
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("deserialize transaction: %w", err))
	}
	return &types.SwapBundle{Adapter: AdapterName, Transaction: tx}, nil
}

func (a *Adapter) ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*types.SwapExecution, error) {
	quote, err := a.Quote(ctx, req.QuoteRequest)
	if err != nil {
		return nil, err
	}
	bundle, err := a.BuildSwap(ctx, quote, req.Wallet, req.PriorityFee)
	if err != nil {
		return nil, err
	}

	if err := req.Wallet.SignTransaction(bundle.Transaction); err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, AdapterName,
			fmt.Errorf("sign transaction: %w", err))
	}
	result, err := a.scheduler.Call(ctx, rpc.SendTransactionOp{
		Transaction:   bundle.Transaction,
		SkipPreflight: true,
	})
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	sig := result.(solana.Signature)

	a.logger.Info("bonding curve swap submitted",
		zap.String("mint", req.OutputMint.String()),
		zap.String("signature", sig.String()))

	return &types.SwapExecution{
		Success:      true,
		TxHash:       sig.String(),
		OutputAmount: quote.AmountOut,
	}, nil
}

// post sends a request through the circuit breaker and normalizes failures.
func (a *Adapter) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	value, err := a.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", types.ErrNetwork, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Non-2xx from the trade service means it will not serve this
			// token; the cascade should move on.
			return nil, fmt.Errorf("%w: trade service status %d", types.ErrNoRoute, resp.StatusCode)
		}
		return raw, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, types.NewTradeError(types.KindNetwork, AdapterName,
				fmt.Errorf("circuit breaker open: %w", err))
		}
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	return value.([]byte), nil
}
