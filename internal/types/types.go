// internal/types/types.go
package types

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Quote is a priced route produced by a DEX adapter. It is consumed
// immediately by the orchestrator or transaction builder and never persisted.
type Quote struct {
	Adapter        string
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	AmountIn  uint64
	AmountOut uint64
	// PriceImpactPct is a percentage (1.5 means 1.5%), whatever unit the
	// venue reports in; adapters normalize on the way in.
	PriceImpactPct float64
	SlippageBps    uint64
	Route          []string
	// Raw carries the adapter-specific quote payload needed to build the
	// swap transaction (e.g. the aggregator's quoteResponse JSON).
	Raw []byte
}

// SwapBundle is an unsigned transaction ready for wallet signing.
type SwapBundle struct {
	Adapter     string
	Transaction *solana.Transaction
	// LastValidBlockHeight bounds how long the bundle may be signed and sent.
	LastValidBlockHeight uint64
}

// SwapExecution is the outcome of one adapter's executed swap.
type SwapExecution struct {
	Success      bool
	TxHash       string
	OutputAmount uint64
}

// SwapResult is the orchestrator-level outcome returned to callers.
type SwapResult struct {
	Success      bool
	AdapterUsed  string
	TxHash       string
	OutputAmount uint64
	Attempts     []AttemptRecord
}

// AttemptRecord captures one adapter attempt within a single orchestrated swap.
type AttemptRecord struct {
	TokenAddress string
	AmountIn     uint64
	SlippageBps  uint64
	AdapterName  string
	Success      bool
	ErrorReason  string
	At           time.Time
}

// TokenInfo is the metadata/price shape the core reads from the external
// token store when it needs liquidity or decimals for impact heuristics.
type TokenInfo struct {
	Address   string
	Price     float64
	Liquidity float64
	Decimals  uint8
}

// TokenStore is implemented outside the core (metadata/price persistence is
// an external collaborator).
type TokenStore interface {
	GetToken(ctx context.Context, address string) (*TokenInfo, error)
}
