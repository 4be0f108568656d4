// =============================
// File: internal/dex/dex.go
// =============================
package dex

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

// QuoteRequest asks an adapter to price a swap.
type QuoteRequest struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	AmountIn    uint64
	SlippageBps uint64
}

// SwapRequest asks an adapter to execute a swap end to end.
type SwapRequest struct {
	QuoteRequest
	Wallet      *wallet.Wallet
	PriorityFee types.PriorityFee
}

// Adapter is the contract shared by every DEX backend. Adapters own their
// backend-specific concerns (pool discovery, curve math, route resolution)
// and normalize all failures into the shared taxonomy so the orchestrator
// can reason about them uniformly.
type Adapter interface {
	Name() string

	// Quote prices the swap; returns a types.ErrNoRoute-classed error when
	// the backend cannot serve the pair.
	Quote(ctx context.Context, req QuoteRequest) (*types.Quote, error)

	// BuildSwap turns a quote into an unsigned transaction bundle.
	BuildSwap(ctx context.Context, quote *types.Quote, w *wallet.Wallet, fee types.PriorityFee) (*types.SwapBundle, error)

	// ExecuteSwap quotes, builds, signs and submits in one shot.
	ExecuteSwap(ctx context.Context, req SwapRequest) (*types.SwapExecution, error)
}
