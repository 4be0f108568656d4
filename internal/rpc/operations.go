// internal/rpc/operations.go
package rpc

import (
	"context"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// Operation is one supported read/write call against an RPC endpoint. Each
// operation carries its own typed arguments and knows how to run itself, so
// the scheduler never dispatches by method-name string.
type Operation interface {
	// Method is the RPC method name, used for per-method throttling windows
	// and logging only.
	Method() string
	Run(ctx context.Context, client *solanarpc.Client) (interface{}, error)
}

// defaultCommitment is substituted when the caller leaves commitment empty.
const defaultCommitment = solanarpc.CommitmentConfirmed

func commitmentOrDefault(c solanarpc.CommitmentType) solanarpc.CommitmentType {
	if c == "" {
		return defaultCommitment
	}
	return c
}

// GetBalanceOp fetches the lamport balance of an account.
type GetBalanceOp struct {
	Account    solana.PublicKey
	Commitment solanarpc.CommitmentType
}

func (o GetBalanceOp) Method() string { return "getBalance" }

func (o GetBalanceOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetBalance(ctx, o.Account, commitmentOrDefault(o.Commitment))
}

// GetAccountInfoOp fetches raw account data.
type GetAccountInfoOp struct {
	Account    solana.PublicKey
	Commitment solanarpc.CommitmentType
}

func (o GetAccountInfoOp) Method() string { return "getAccountInfo" }

func (o GetAccountInfoOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetAccountInfoWithOpts(ctx, o.Account, &solanarpc.GetAccountInfoOpts{
		Commitment: commitmentOrDefault(o.Commitment),
	})
}

// GetTokenSupplyOp fetches the total supply of a mint.
type GetTokenSupplyOp struct {
	Mint       solana.PublicKey
	Commitment solanarpc.CommitmentType
}

func (o GetTokenSupplyOp) Method() string { return "getTokenSupply" }

func (o GetTokenSupplyOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetTokenSupply(ctx, o.Mint, commitmentOrDefault(o.Commitment))
}

// GetTokenAccountBalanceOp fetches a token account's balance (used for pool
// vault reserves).
type GetTokenAccountBalanceOp struct {
	Account    solana.PublicKey
	Commitment solanarpc.CommitmentType
}

func (o GetTokenAccountBalanceOp) Method() string { return "getTokenAccountBalance" }

func (o GetTokenAccountBalanceOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetTokenAccountBalance(ctx, o.Account, commitmentOrDefault(o.Commitment))
}

// GetLatestBlockhashOp fetches a recent blockhash for transaction building.
type GetLatestBlockhashOp struct {
	Commitment solanarpc.CommitmentType
}

func (o GetLatestBlockhashOp) Method() string { return "getLatestBlockhash" }

func (o GetLatestBlockhashOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetLatestBlockhash(ctx, commitmentOrDefault(o.Commitment))
}

// GetProgramAccountsOp scans accounts owned by a program, optionally
// filtered. Used by pool discovery.
type GetProgramAccountsOp struct {
	Program solana.PublicKey
	Opts    *solanarpc.GetProgramAccountsOpts
}

func (o GetProgramAccountsOp) Method() string { return "getProgramAccounts" }

func (o GetProgramAccountsOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	if o.Opts == nil {
		o.Opts = &solanarpc.GetProgramAccountsOpts{Commitment: defaultCommitment}
	} else if o.Opts.Commitment == "" {
		o.Opts.Commitment = defaultCommitment
	}
	return client.GetProgramAccountsWithOpts(ctx, o.Program, o.Opts)
}

// SendTransactionOp submits a signed transaction.
type SendTransactionOp struct {
	Transaction   *solana.Transaction
	SkipPreflight bool
}

func (o SendTransactionOp) Method() string { return "sendTransaction" }

func (o SendTransactionOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.SendTransactionWithOpts(ctx, o.Transaction, solanarpc.TransactionOpts{
		SkipPreflight:       o.SkipPreflight,
		PreflightCommitment: defaultCommitment,
	})
}

// SimulateTransactionOp dry-runs a transaction against the active endpoint.
type SimulateTransactionOp struct {
	Transaction *solana.Transaction
}

func (o SimulateTransactionOp) Method() string { return "simulateTransaction" }

func (o SimulateTransactionOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.SimulateTransaction(ctx, o.Transaction)
}

// GetVersionOp is the cheap liveness call used by health probes.
type GetVersionOp struct{}

func (o GetVersionOp) Method() string { return "getVersion" }

func (o GetVersionOp) Run(ctx context.Context, client *solanarpc.Client) (interface{}, error) {
	return client.GetVersion(ctx)
}
