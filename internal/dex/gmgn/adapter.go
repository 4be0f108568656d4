// =============================
// File: internal/dex/gmgn/adapter.go
// =============================
package gmgn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
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

const AdapterName = "gmgn"

const requestTimeout = 10 * time.Second

// Adapter routes swaps through the alternate aggregator's router API. The
// service is flaky under load, so every call goes through a circuit breaker:
// once it trips, the cascade skips this rung cheaply instead of waiting on
// timeouts.
type Adapter struct {
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	scheduler *rpc.Scheduler
	logger    *zap.Logger
}

// routeResponse mirrors the router payload: a quote plus the prebuilt
// unsigned transaction in one response.
type routeResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Quote struct {
			InAmount       string `json:"inAmount"`
			OutAmount      string `json:"outAmount"`
			PriceImpactPct string `json:"priceImpactPct"`
		} `json:"quote"`
		RawTx struct {
			SwapTransaction      string `json:"swapTransaction"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"raw_tx"`
	} `json:"data"`
}

// NewAdapter creates the alternate aggregator adapter.
func NewAdapter(baseURL string, scheduler *rpc.Scheduler, logger *zap.Logger) *Adapter {
	log := logger.Named("gmgn")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmgn-router",
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

func (a *Adapter) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	route, raw, err := a.getRoute(ctx, req, solana.PublicKey{})
	if err != nil {
		return nil, err
	}
	return a.toQuote(req, route, raw)
}

// BuildSwap re-requests the route for the signing wallet; the router only
// returns a transaction when it knows the sender.
func (a *Adapter) BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, _ types.PriorityFee) (*types.SwapBundle, error) {
	req := dex.QuoteRequest{
		InputMint:   quote.InputMint,
		OutputMint:  quote.OutputMint,
		AmountIn:    quote.AmountIn,
		SlippageBps: quote.SlippageBps,
	}
	route, _, err := a.getRoute(ctx, req, w.PublicKey)
	if err != nil {
		return nil, err
	}
	if route.Data.RawTx.SwapTransaction == "" {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("router returned no transaction"))
	}

	txBytes, err := base64.StdEncoding.DecodeString(route.Data.RawTx.SwapTransaction)
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("decode swap transaction: %w", err))
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("deserialize swap transaction: %w", err))
	}
	return &types.SwapBundle{
		Adapter:              AdapterName,
		Transaction:          tx,
		LastValidBlockHeight: route.Data.RawTx.LastValidBlockHeight,
	}, nil
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

	a.logger.Info("swap submitted",
		zap.String("signature", sig.String()),
		zap.Uint64("amount_out", quote.AmountOut))

	return &types.SwapExecution{
		Success:      true,
		TxHash:       sig.String(),
		OutputAmount: quote.AmountOut,
	}, nil
}

func (a *Adapter) getRoute(ctx context.Context, req dex.QuoteRequest, from solana.PublicKey) (*routeResponse, []byte, error) {
	url := fmt.Sprintf("%s/tx/get_swap_route?token_in_address=%s&token_out_address=%s&in_amount=%d&slippage=%s",
		a.baseURL, req.InputMint, req.OutputMint, req.AmountIn,
		strconv.FormatFloat(float64(req.SlippageBps)/100.0, 'f', 2, 64))
	if !from.IsZero() {
		url += "&from_address=" + from.String()
	}

	value, err := a.breaker.Execute(func() (interface{}, error) {
		return a.fetch(ctx, url)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, nil, types.NewTradeError(types.KindNetwork, AdapterName,
				fmt.Errorf("circuit breaker open: %w", err))
		}
		return nil, nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	raw := value.([]byte)

	var route routeResponse
	if err := json.Unmarshal(raw, &route); err != nil {
		return nil, nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("decode route: %w", err))
	}
	if route.Code != 0 || route.Data.Quote.OutAmount == "" {
		return nil, nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("router rejected pair: code=%d msg=%s", route.Code, route.Msg))
	}
	return &route, raw, nil
}

func (a *Adapter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
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

	a.logger.Debug("router request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewTradeError(types.ClassifyStatus(resp.StatusCode), AdapterName,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return raw, nil
}

func (a *Adapter) toQuote(req dex.QuoteRequest, route *routeResponse, raw []byte) (*types.Quote, error) {
	amountOut, err := strconv.ParseUint(route.Data.Quote.OutAmount, 10, 64)
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("unparseable outAmount %q: %w", route.Data.Quote.OutAmount, err))
	}
	// The router reports impact as a fraction, like the aggregator it proxies.
	impact, _ := strconv.ParseFloat(route.Data.Quote.PriceImpactPct, 64)

	return &types.Quote{
		Adapter:        AdapterName,
		InputMint:      req.InputMint,
		OutputMint:     req.OutputMint,
		AmountIn:       req.AmountIn,
		AmountOut:      amountOut,
		PriceImpactPct: impact * 100,
		SlippageBps:    req.SlippageBps,
		Route:          []string{"gmgn-router"},
		Raw:            raw,
	}, nil
}
