// =============================
// File: internal/dex/raydium/adapter.go
// =============================
package raydium

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

const AdapterName = "raydium"

// swapBaseIn is the AMM v4 instruction discriminator for a fixed-input swap.
const swapBaseIn = 9

// Adapter quotes and executes swaps directly against constant-product pools.
// It is the cascade's last rung: no aggregator involved, everything is read
// from and submitted to the chain through the RPC scheduler.
type Adapter struct {
	finder     *Finder
	scheduler  *rpc.Scheduler
	volatility map[string]float64
	logger     *zap.Logger
}

// NewAdapter creates the on-chain pool adapter. volatility maps mint address
// to a price-impact scaling factor; unlisted mints use 1.0.
func NewAdapter(scheduler *rpc.Scheduler, volatility map[string]float64, logger *zap.Logger) *Adapter {
	return &Adapter{
		finder:     NewFinder(scheduler, logger),
		scheduler:  scheduler,
		volatility: volatility,
		logger:     logger.Named("raydium"),
	}
}

func (a *Adapter) Name() string { return AdapterName }

func (a *Adapter) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	pool, err := a.finder.FindPool(ctx, req.InputMint, req.OutputMint)
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	reserveIn, reserveOut, ok := pool.ReservesFor(req.InputMint)
	if !ok {
		return nil, types.NewTradeError(types.KindNoRoute, AdapterName,
			fmt.Errorf("pool %s does not trade %s", pool.AmmID, req.InputMint))
	}
	if reserveIn == 0 || reserveOut == 0 {
		return nil, types.NewTradeError(types.KindInsufficientLiquidity, AdapterName,
			fmt.Errorf("pool %s has empty reserves", pool.AmmID))
	}

	amountOut := CalculateOutput(reserveIn, reserveOut, req.AmountIn, pool.FeeFactor())
	if amountOut == 0 {
		return nil, types.NewTradeError(types.KindInsufficientLiquidity, AdapterName,
			fmt.Errorf("amount %d yields zero output in pool %s", req.AmountIn, pool.AmmID))
	}
	impact := PriceImpact(reserveIn, reserveOut, req.AmountIn, amountOut,
		a.factorFor(req.InputMint, req.OutputMint))

	return &types.Quote{
		Adapter:        AdapterName,
		InputMint:      req.InputMint,
		OutputMint:     req.OutputMint,
		AmountIn:       req.AmountIn,
		AmountOut:      amountOut,
		PriceImpactPct: impact,
		SlippageBps:    req.SlippageBps,
		Route:          []string{"raydium-amm"},
	}, nil
}

func (a *Adapter) BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, fee types.PriorityFee) (*types.SwapBundle, error) {
	pool, err := a.finder.FindPool(ctx, quote.InputMint, quote.OutputMint)
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}

	source, err := w.GetATA(quote.InputMint)
	if err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, AdapterName, err)
	}
	destination, err := w.GetATA(quote.OutputMint)
	if err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, AdapterName, err)
	}

	minOut := types.MinAmountOut(quote.AmountOut, quote.SlippageBps)
	instructions := append(fee.Instructions(),
		swapInstruction(pool, source, destination, w.PublicKey, quote.AmountIn, minOut))

	result, err := a.scheduler.Call(ctx, rpc.GetLatestBlockhashOp{})
	if err != nil {
		return nil, types.NewTradeError(types.KindOf(err), AdapterName, err)
	}
	blockhash := result.(*solanarpc.GetLatestBlockhashResult)

	tx, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash,
		solana.TransactionPayer(w.PublicKey))
	if err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, AdapterName,
			fmt.Errorf("build transaction: %w", err))
	}

	return &types.SwapBundle{
		Adapter:              AdapterName,
		Transaction:          tx,
		LastValidBlockHeight: blockhash.Value.LastValidBlockHeight,
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

	a.logger.Info("pool swap submitted",
		zap.String("signature", sig.String()),
		zap.Uint64("amount_out", quote.AmountOut),
		zap.Float64("price_impact_pct", quote.PriceImpactPct))

	return &types.SwapExecution{
		Success:      true,
		TxHash:       sig.String(),
		OutputAmount: quote.AmountOut,
	}, nil
}

// factorFor prefers the non-SOL side of the pair: that is the leg whose
// volatility the impact estimate should track.
func (a *Adapter) factorFor(inputMint, outputMint solana.PublicKey) float64 {
	if factor, ok := a.volatility[outputMint.String()]; ok {
		return factor
	}
	if factor, ok := a.volatility[inputMint.String()]; ok {
		return factor
	}
	return 1.0
}

// swapInstruction builds the AMM v4 swap-base-in instruction: 17 bytes of
// data (discriminator, amount in, minimum out) against the standard account
// list.
func swapInstruction(pool *Pool, source, destination, owner solana.PublicKey, amountIn, minAmountOut uint64) solana.Instruction {
	data := make([]byte, 17)
	data[0] = swapBaseIn
	binary.LittleEndian.PutUint64(data[1:9], amountIn)
	binary.LittleEndian.PutUint64(data[9:17], minAmountOut)

	accounts := solana.AccountMetaSlice{
		solana.Meta(solana.TokenProgramID),
		solana.Meta(pool.AmmID).WRITE(),
		solana.Meta(pool.Authority),
		solana.Meta(pool.OpenOrders).WRITE(),
		solana.Meta(pool.TargetOrders).WRITE(),
		solana.Meta(pool.BaseVault).WRITE(),
		solana.Meta(pool.QuoteVault).WRITE(),
		solana.Meta(pool.MarketProgram),
		solana.Meta(pool.MarketID).WRITE(),
		solana.Meta(pool.MarketBids).WRITE(),
		solana.Meta(pool.MarketAsks).WRITE(),
		solana.Meta(pool.MarketEventQueue).WRITE(),
		solana.Meta(pool.MarketBaseVault).WRITE(),
		solana.Meta(pool.MarketQuoteVault).WRITE(),
		solana.Meta(pool.MarketVaultSigner),
		solana.Meta(source).WRITE(),
		solana.Meta(destination).WRITE(),
		solana.Meta(owner).WRITE().SIGNER(),
	}
	return solana.NewInstruction(AmmProgramID, accounts, data)
}
