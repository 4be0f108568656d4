// =============================
// File: internal/dex/jupiter/adapter.go
// =============================
package jupiter

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

const AdapterName = "jupiter"

// Adapter routes swaps through the aggregator API. All HTTP traffic is
// budgeted by the shared rate limiter; transaction submission goes through
// the RPC scheduler.
type Adapter struct {
	client    *Client
	scheduler *rpc.Scheduler
	logger    *zap.Logger
}

// NewAdapter creates the rate-limited aggregator adapter.
func NewAdapter(client *Client, scheduler *rpc.Scheduler, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:    client,
		scheduler: scheduler,
		logger:    logger.Named("jupiter"),
	}
}

func (a *Adapter) Name() string { return AdapterName }

func (a *Adapter) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	quote, raw, err := a.client.GetQuote(ctx,
		req.InputMint.String(), req.OutputMint.String(), req.AmountIn, req.SlippageBps)
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	return toQuote(AdapterName, req, quote, raw)
}

func (a *Adapter) BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, fee types.PriorityFee) (*types.SwapBundle, error) {
	swap, err := a.client.PostSwap(ctx, quote.Raw, w.PublicKey.String(), priorityLamports(fee))
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	return toBundle(AdapterName, swap)
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
	return submitBundle(ctx, a.scheduler, AdapterName, bundle, req.Wallet, quote, a.logger)
}

// toQuote converts an aggregator quote payload into the shared Quote shape.
func toQuote(adapter string, req dex.QuoteRequest, quote *quoteResponse, raw []byte) (*types.Quote, error) {
	amountOut, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, adapter,
			fmt.Errorf("unparseable outAmount %q: %w", quote.OutAmount, err))
	}
	impact, _ := strconv.ParseFloat(quote.PriceImpactPct, 64)

	route := make([]string, 0, len(quote.RoutePlan))
	for _, hop := range quote.RoutePlan {
		route = append(route, hop.SwapInfo.Label)
	}

	return &types.Quote{
		Adapter:        adapter,
		InputMint:      req.InputMint,
		OutputMint:     req.OutputMint,
		AmountIn:       req.AmountIn,
		AmountOut:      amountOut,
		PriceImpactPct: impact * 100,
		SlippageBps:    req.SlippageBps,
		Route:          route,
		Raw:            raw,
	}, nil
}

// toBundle decodes the serialized unsigned transaction.
func toBundle(adapter string, swap *swapResponse) (*types.SwapBundle, error) {
	txBytes, err := base64.StdEncoding.DecodeString(swap.SwapTransaction)
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, adapter,
			fmt.Errorf("decode swap transaction: %w", err))
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, types.NewTradeError(types.KindNoRoute, adapter,
			fmt.Errorf("deserialize swap transaction: %w", err))
	}
	return &types.SwapBundle{
		Adapter:              adapter,
		Transaction:          tx,
		LastValidBlockHeight: swap.LastValidBlockHeight,
	}, nil
}

// submitBundle signs and submits a bundle through the scheduler.
func submitBundle(ctx context.Context, scheduler *rpc.Scheduler, adapter string, bundle *types.SwapBundle, w *wallet.Wallet, quote *types.Quote, logger *zap.Logger) (*types.SwapExecution, error) {
	if err := w.SignTransaction(bundle.Transaction); err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, adapter,
			fmt.Errorf("sign transaction: %w", err))
	}

	result, err := scheduler.Call(ctx, rpc.SendTransactionOp{
		Transaction:   bundle.Transaction,
		SkipPreflight: true,
	})
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), adapter, err)
	}
	sig := result.(solana.Signature)

	logger.Info("swap submitted",
		zap.String("adapter", adapter),
		zap.String("signature", sig.String()),
		zap.Uint64("amount_out", quote.AmountOut))

	return &types.SwapExecution{
		Success:      true,
		TxHash:       sig.String(),
		OutputAmount: quote.AmountOut,
	}, nil
}

func priorityLamports(fee types.PriorityFee) uint64 {
	// The aggregator takes total prioritization lamports, not a per-CU price.
	return fee.MicroLamports * uint64(fee.ComputeUnits) / 1_000_000
}
