// =============================
// File: internal/dex/raydium/pool.go
// =============================
package raydium

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/types"
)

var (
	// AMM v4 program and its fixed swap authority.
	AmmProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	AmmAuthority = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
)

// AMM v4 pool state layout: offsets into the 752-byte account.
const (
	ammStateSize = 752

	offSwapFeeNumerator   = 176
	offSwapFeeDenominator = 184
	offBaseVault          = 336
	offQuoteVault         = 368
	offBaseMint           = 400
	offQuoteMint          = 432
	offOpenOrders         = 496
	offMarketID           = 528
	offMarketProgram      = 560
	offTargetOrders       = 592
)

// Serum market state layout: offsets into the market account (after the
// 5-byte "serum" padding prefix).
const (
	offMarketVaultSignerNonce = 45
	offMarketBaseVault        = 117
	offMarketQuoteVault       = 165
	offMarketEventQueue       = 253
	offMarketBids             = 285
	offMarketAsks             = 317
)

// Pool is a fully resolved constant-product pool: the AMM state, the serum
// market accounts the swap instruction references, and a reserve snapshot.
type Pool struct {
	AmmID        solana.PublicKey
	Authority    solana.PublicKey
	OpenOrders   solana.PublicKey
	TargetOrders solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey
	BaseMint     solana.PublicKey
	QuoteMint    solana.PublicKey

	MarketProgram     solana.PublicKey
	MarketID          solana.PublicKey
	MarketBids        solana.PublicKey
	MarketAsks        solana.PublicKey
	MarketEventQueue  solana.PublicKey
	MarketBaseVault   solana.PublicKey
	MarketQuoteVault  solana.PublicKey
	MarketVaultSigner solana.PublicKey

	SwapFeeNumerator   uint64
	SwapFeeDenominator uint64

	BaseReserve  uint64
	QuoteReserve uint64
	FetchedAt    time.Time
}

// FeeFactor returns the fraction of the input kept after the trade fee.
func (p *Pool) FeeFactor() float64 {
	if p.SwapFeeDenominator == 0 {
		return 1 - SwapFee
	}
	return 1 - float64(p.SwapFeeNumerator)/float64(p.SwapFeeDenominator)
}

// ReservesFor orients the reserve snapshot for a swap spending inputMint.
func (p *Pool) ReservesFor(inputMint solana.PublicKey) (reserveIn, reserveOut uint64, ok bool) {
	switch inputMint {
	case p.BaseMint:
		return p.BaseReserve, p.QuoteReserve, true
	case p.QuoteMint:
		return p.QuoteReserve, p.BaseReserve, true
	default:
		return 0, 0, false
	}
}

// Finder locates and caches pools for a mint pair. Discovery prefers an
// on-chain program scan; when the scan comes back empty (common right after
// a pool migrates) it falls back to the public listing API and resolves the
// listed pair address on chain.
type Finder struct {
	scheduler *rpc.Scheduler
	screener  *screenerClient
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*Pool
	ttl   time.Duration
}

// NewFinder creates a pool finder with a 30s reserve-snapshot TTL.
func NewFinder(scheduler *rpc.Scheduler, logger *zap.Logger) *Finder {
	log := logger.Named("raydium-pools")
	return &Finder{
		scheduler: scheduler,
		screener:  newScreenerClient(log),
		logger:    log,
		cache:     make(map[string]*Pool),
		ttl:       30 * time.Second,
	}
}

// FindPool returns the deepest pool for the pair, retrying transient RPC
// failures. A pair with no pool anywhere is permanent: the caller's cascade
// should move to the next venue, not wait.
func (f *Finder) FindPool(ctx context.Context, mintA, mintB solana.PublicKey) (*Pool, error) {
	key := poolKey(mintA, mintB)

	f.mu.Lock()
	cached, ok := f.cache[key]
	f.mu.Unlock()
	if ok && time.Since(cached.FetchedAt) < f.ttl {
		return cached, nil
	}

	operation := func() (*Pool, error) {
		pool, err := f.discover(ctx, mintA, mintB)
		if err != nil {
			if types.KindOf(err) == types.KindNoRoute {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return pool, nil
	}
	pool, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithNotify(func(err error, wait time.Duration) {
			f.logger.Warn("pool discovery failed, retrying",
				zap.Error(err),
				zap.Duration("wait", wait))
		}))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[key] = pool
	f.mu.Unlock()
	return pool, nil
}

func (f *Finder) discover(ctx context.Context, mintA, mintB solana.PublicKey) (*Pool, error) {
	pools, err := f.scan(ctx, mintA, mintB)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		// Reversed base/quote ordering is equally common on chain.
		pools, err = f.scan(ctx, mintB, mintA)
		if err != nil {
			return nil, err
		}
	}

	if len(pools) == 0 {
		pool, err := f.fromListing(ctx, mintA, mintB)
		if err != nil {
			return nil, err
		}
		pools = []*Pool{pool}
	}

	// Several pools can exist for one pair; take the deepest.
	var best *Pool
	for _, pool := range pools {
		if err := f.refreshReserves(ctx, pool); err != nil {
			f.logger.Warn("skipping pool with unreadable reserves",
				zap.String("amm_id", pool.AmmID.String()),
				zap.Error(err))
			continue
		}
		if best == nil || ReserveProduct(pool.BaseReserve, pool.QuoteReserve).
			Cmp(ReserveProduct(best.BaseReserve, best.QuoteReserve)) > 0 {
			best = pool
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no usable pool for %s/%s", types.ErrNoLiquidity, mintA, mintB)
	}

	if err := f.resolveMarket(ctx, best); err != nil {
		return nil, err
	}

	f.logger.Info("pool selected",
		zap.String("amm_id", best.AmmID.String()),
		zap.Uint64("base_reserve", best.BaseReserve),
		zap.Uint64("quote_reserve", best.QuoteReserve))
	return best, nil
}

// scan runs a filtered program-accounts scan for pools with the given
// base/quote mint ordering.
func (f *Finder) scan(ctx context.Context, baseMint, quoteMint solana.PublicKey) ([]*Pool, error) {
	size := uint64(ammStateSize)
	result, err := f.scheduler.Call(ctx, rpc.GetProgramAccountsOp{
		Program: AmmProgramID,
		Opts: &solanarpc.GetProgramAccountsOpts{
			Filters: []solanarpc.RPCFilter{
				{DataSize: size},
				{Memcmp: &solanarpc.RPCFilterMemcmp{
					Offset: offBaseMint,
					Bytes:  solana.Base58(baseMint.Bytes()),
				}},
				{Memcmp: &solanarpc.RPCFilterMemcmp{
					Offset: offQuoteMint,
					Bytes:  solana.Base58(quoteMint.Bytes()),
				}},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	accounts := result.(solanarpc.GetProgramAccountsResult)

	pools := make([]*Pool, 0, len(accounts))
	for _, account := range accounts {
		pool, err := decodePool(account.Pubkey, account.Account.Data.GetBinary())
		if err != nil {
			f.logger.Warn("undecodable pool account",
				zap.String("account", account.Pubkey.String()),
				zap.Error(err))
			continue
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// fromListing resolves a listed pair address into full pool state.
func (f *Finder) fromListing(ctx context.Context, mintA, mintB solana.PublicKey) (*Pool, error) {
	pair, err := f.screener.bestPair(ctx, mintA, mintB)
	if err != nil {
		return nil, err
	}
	ammID, err := solana.PublicKeyFromBase58(pair.PairAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: listed pair address %q: %v", types.ErrNoRoute, pair.PairAddress, err)
	}

	result, err := f.scheduler.Call(ctx, rpc.GetAccountInfoOp{Account: ammID})
	if err != nil {
		return nil, err
	}
	info := result.(*solanarpc.GetAccountInfoResult)
	if info.Value == nil {
		return nil, fmt.Errorf("%w: listed pool %s not found on chain", types.ErrNoRoute, ammID)
	}
	return decodePool(ammID, info.Value.Data.GetBinary())
}

// refreshReserves snapshots both vault balances.
func (f *Finder) refreshReserves(ctx context.Context, pool *Pool) error {
	base, err := f.vaultBalance(ctx, pool.BaseVault)
	if err != nil {
		return err
	}
	quote, err := f.vaultBalance(ctx, pool.QuoteVault)
	if err != nil {
		return err
	}
	pool.BaseReserve = base
	pool.QuoteReserve = quote
	pool.FetchedAt = time.Now()
	return nil
}

func (f *Finder) vaultBalance(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	result, err := f.scheduler.Call(ctx, rpc.GetTokenAccountBalanceOp{Account: vault})
	if err != nil {
		return 0, err
	}
	balance := result.(*solanarpc.GetTokenAccountBalanceResult)
	if balance.Value == nil {
		return 0, fmt.Errorf("vault %s has no balance", vault)
	}
	return strconv.ParseUint(balance.Value.Amount, 10, 64)
}

// resolveMarket fills in the serum market accounts the swap instruction
// needs. Already-resolved pools are left alone.
func (f *Finder) resolveMarket(ctx context.Context, pool *Pool) error {
	if !pool.MarketBids.IsZero() {
		return nil
	}

	result, err := f.scheduler.Call(ctx, rpc.GetAccountInfoOp{Account: pool.MarketID})
	if err != nil {
		return err
	}
	info := result.(*solanarpc.GetAccountInfoResult)
	if info.Value == nil {
		return fmt.Errorf("%w: market %s not found", types.ErrNoRoute, pool.MarketID)
	}
	data := info.Value.Data.GetBinary()
	if len(data) < offMarketAsks+32 {
		return fmt.Errorf("market account %s too short: %d bytes", pool.MarketID, len(data))
	}

	pool.MarketBaseVault = solana.PublicKeyFromBytes(data[offMarketBaseVault : offMarketBaseVault+32])
	pool.MarketQuoteVault = solana.PublicKeyFromBytes(data[offMarketQuoteVault : offMarketQuoteVault+32])
	pool.MarketEventQueue = solana.PublicKeyFromBytes(data[offMarketEventQueue : offMarketEventQueue+32])
	pool.MarketBids = solana.PublicKeyFromBytes(data[offMarketBids : offMarketBids+32])
	pool.MarketAsks = solana.PublicKeyFromBytes(data[offMarketAsks : offMarketAsks+32])

	nonce := binary.LittleEndian.Uint64(data[offMarketVaultSignerNonce : offMarketVaultSignerNonce+8])
	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	signer, err := solana.CreateProgramAddress(
		[][]byte{pool.MarketID.Bytes(), nonceBytes}, pool.MarketProgram)
	if err != nil {
		return fmt.Errorf("derive market vault signer: %w", err)
	}
	pool.MarketVaultSigner = signer
	return nil
}

// decodePool reads the AMM v4 pool state fields the swap path needs.
func decodePool(ammID solana.PublicKey, data []byte) (*Pool, error) {
	if len(data) < ammStateSize {
		return nil, fmt.Errorf("pool account %s too short: %d bytes", ammID, len(data))
	}
	pubkey := func(off int) solana.PublicKey {
		return solana.PublicKeyFromBytes(data[off : off+32])
	}
	return &Pool{
		AmmID:              ammID,
		Authority:          AmmAuthority,
		OpenOrders:         pubkey(offOpenOrders),
		TargetOrders:       pubkey(offTargetOrders),
		BaseVault:          pubkey(offBaseVault),
		QuoteVault:         pubkey(offQuoteVault),
		BaseMint:           pubkey(offBaseMint),
		QuoteMint:          pubkey(offQuoteMint),
		MarketProgram:      pubkey(offMarketProgram),
		MarketID:           pubkey(offMarketID),
		SwapFeeNumerator:   binary.LittleEndian.Uint64(data[offSwapFeeNumerator : offSwapFeeNumerator+8]),
		SwapFeeDenominator: binary.LittleEndian.Uint64(data[offSwapFeeDenominator : offSwapFeeDenominator+8]),
	}, nil
}

func poolKey(a, b solana.PublicKey) string {
	// Direction-independent cache key.
	if a.String() < b.String() {
		return a.String() + "/" + b.String()
	}
	return b.String() + "/" + a.String()
}
