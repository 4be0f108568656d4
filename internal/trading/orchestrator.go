// ======================================
// File: internal/trading/orchestrator.go
// ======================================
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/dex/pumpfun"
	"github.com/solpulse/memebot/internal/metrics"
	"github.com/solpulse/memebot/internal/types"
)

// Orchestrator walks the adapter cascade until a swap lands. Adapter order is
// fixed at construction; the only reordering is the bonding-curve heuristic,
// which promotes the bonding-curve adapter for mints that look like they were
// created there.
type Orchestrator struct {
	adapters []dex.Adapter
	cooldown *CooldownTracker
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewOrchestrator creates the swap orchestrator with the given cascade order.
func NewOrchestrator(adapters []dex.Adapter, cooldown *CooldownTracker, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		cooldown: cooldown,
		metrics:  collector,
		logger:   logger.Named("orchestrator"),
	}
}

// SubmitSwap runs the cascade for one swap. The result carries an attempt
// record per adapter tried, whether or not the swap ultimately landed.
func (o *Orchestrator) SubmitSwap(ctx context.Context, req dex.SwapRequest) (*types.SwapResult, error) {
	token := req.OutputMint.String()

	if benched, until := o.cooldown.OnCooldown(token); benched {
		return nil, types.NewTradeError(types.KindTokenCooldown, "",
			fmt.Errorf("token %s on cooldown until %s", token, until.Format(time.RFC3339)))
	}

	result := &types.SwapResult{}
	var lastErr error

	for _, adapter := range o.orderFor(token) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		execution, err := o.attempt(ctx, adapter, req, result)
		if err == nil {
			o.cooldown.RecordSuccess(token)
			result.Success = true
			result.AdapterUsed = adapter.Name()
			result.TxHash = execution.TxHash
			result.OutputAmount = execution.OutputAmount
			return result, nil
		}

		if types.KindOf(err) == types.KindInvalidArg {
			// A malformed request fails identically everywhere; no point
			// walking the rest of the cascade.
			return result, err
		}
		lastErr = err
	}

	if o.cooldown.RecordFailure(token) {
		o.logger.Warn("token benched after repeated cascade failures",
			zap.String("token", token))
	}
	return result, types.NewTradeError(types.KindAllExhausted, "",
		fmt.Errorf("all %d adapters failed, last: %w", len(o.adapters), unwrapLast(lastErr)))
}

// attempt runs one adapter and appends exactly one attempt record carrying
// its final outcome. A no-route failure gets one retry with loosened
// tolerance before the adapter is given up on; thin meme-coin books often
// fill on the second try. The record keeps the widened slippage.
func (o *Orchestrator) attempt(ctx context.Context, adapter dex.Adapter, req dex.SwapRequest, result *types.SwapResult) (*types.SwapExecution, error) {
	start := time.Now()
	execution, err := adapter.ExecuteSwap(ctx, req)

	if err != nil && types.KindOf(err) == types.KindNoRoute {
		req.SlippageBps = types.WidenSlippage(req.SlippageBps)
		o.logger.Debug("no route, retrying with widened slippage",
			zap.String("adapter", adapter.Name()),
			zap.Uint64("slippage_bps", req.SlippageBps))
		execution, err = adapter.ExecuteSwap(ctx, req)
	}
	duration := time.Since(start)

	record := types.AttemptRecord{
		TokenAddress: req.OutputMint.String(),
		AmountIn:     req.AmountIn,
		SlippageBps:  req.SlippageBps,
		AdapterName:  adapter.Name(),
		Success:      err == nil,
		At:           start,
	}
	if err != nil {
		record.ErrorReason = types.KindOf(err).String()
		o.logger.Warn("adapter attempt failed",
			zap.String("adapter", adapter.Name()),
			zap.String("reason", record.ErrorReason),
			zap.Duration("duration", duration),
			zap.Error(err))
	}
	result.Attempts = append(result.Attempts, record)

	if o.metrics != nil {
		o.metrics.RecordSwap(adapter.Name(), duration, err == nil)
	}
	return execution, err
}

// orderFor returns the cascade order for the token, promoting the
// bonding-curve adapter when the mint looks curve-native.
func (o *Orchestrator) orderFor(token string) []dex.Adapter {
	if !pumpfun.LikelyBondingCurve(token) {
		return o.adapters
	}
	ordered := make([]dex.Adapter, 0, len(o.adapters))
	for _, adapter := range o.adapters {
		if adapter.Name() == pumpfun.AdapterName {
			ordered = append(ordered, adapter)
		}
	}
	for _, adapter := range o.adapters {
		if adapter.Name() != pumpfun.AdapterName {
			ordered = append(ordered, adapter)
		}
	}
	return ordered
}

func unwrapLast(err error) error {
	if err == nil {
		return errors.New("no adapters configured")
	}
	return err
}
