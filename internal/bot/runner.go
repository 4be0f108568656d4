// ==============================
// File: internal/bot/runner.go
// ==============================
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/config"
	"github.com/solpulse/memebot/internal/dex"
	"github.com/solpulse/memebot/internal/dex/gmgn"
	"github.com/solpulse/memebot/internal/dex/jupiter"
	"github.com/solpulse/memebot/internal/dex/pumpfun"
	"github.com/solpulse/memebot/internal/dex/raydium"
	"github.com/solpulse/memebot/internal/logger"
	"github.com/solpulse/memebot/internal/metrics"
	"github.com/solpulse/memebot/internal/ratelimit"
	"github.com/solpulse/memebot/internal/rpc"
	"github.com/solpulse/memebot/internal/trading"
	"github.com/solpulse/memebot/internal/types"
	"github.com/solpulse/memebot/internal/wallet"
)

// Runner owns the wired component graph: config, endpoint registry, RPC
// scheduler, rate limiter, DEX adapters and the swap orchestrator. It is the
// single composition root; nothing below it reaches for globals.
type Runner struct {
	log *logger.Logger
	cfg *config.Config

	registry     *rpc.Registry
	scheduler    *rpc.Scheduler
	limiter      *ratelimit.Limiter
	collector    *metrics.Collector
	cooldown     *trading.CooldownTracker
	orchestrator *trading.Orchestrator
	wallets      map[string]*wallet.Wallet
	tokens       types.TokenStore

	metricsSrv *http.Server
}

// NewRunner creates an unwired runner; call Initialize before Run.
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{log: log, tokens: NewStaticTokenStore()}
}

// SetTokenStore swaps in an external metadata/price source. The default is an
// empty in-memory store.
func (r *Runner) SetTokenStore(store types.TokenStore) {
	if store != nil {
		r.tokens = store
	}
}

// Initialize loads configuration and wires every component.
func (r *Runner) Initialize(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	if cfg.DebugLogging {
		r.log.SetDebug(true)
	}

	log := r.log.WithComponent("runner")

	registry, err := rpc.NewRegistry(cfg.Endpoints,
		time.Duration(cfg.HealthCheckSec)*time.Second, r.log.Logger)
	if err != nil {
		return fmt.Errorf("build endpoint registry: %w", err)
	}
	r.registry = registry
	r.scheduler = rpc.NewScheduler(registry, cfg.Scheduler, r.log.Logger)

	tierCfg := cfg.RateTiers[cfg.RateTier]
	r.limiter = ratelimit.New(ratelimit.Tier{
		Name:                cfg.RateTier,
		RequestsPerMinute:   tierCfg.RequestsPerMinute,
		PriceRequestsPerMin: tierCfg.PriceRequestsPerMin,
		Burst:               tierCfg.Burst,
		SeparatePriceBucket: tierCfg.SeparatePriceBucket,
		Hostname:            tierCfg.Hostname,
		MaxConcurrent:       tierCfg.MaxConcurrent,
	}, r.log.Logger)

	r.collector = metrics.NewCollector()
	r.registry.SetMetrics(r.collector)
	r.scheduler.SetMetrics(r.collector)
	r.cooldown = trading.NewCooldownTracker(
		cfg.Cooldown.FailureThreshold, cfg.CooldownWindow(), r.collector, r.log.Logger)

	adapters, err := r.buildAdapters()
	if err != nil {
		return err
	}
	r.orchestrator = trading.NewOrchestrator(adapters, r.cooldown, r.collector, r.log.Logger)

	if cfg.WalletsFile != "" {
		wallets, err := wallet.LoadWallets(cfg.WalletsFile)
		if err != nil {
			return fmt.Errorf("load wallets: %w", err)
		}
		r.wallets = wallets
		log.Info("wallets loaded", zap.Int("count", len(wallets)))
	}

	log.Info("runner initialized",
		zap.Int("endpoints", len(cfg.Endpoints)),
		zap.String("rate_tier", cfg.RateTier),
		zap.Strings("adapter_order", cfg.AdapterOrder))
	return nil
}

// buildAdapters instantiates the cascade in configured order.
func (r *Runner) buildAdapters() ([]dex.Adapter, error) {
	jupClient := jupiter.NewClient(r.limiter, r.log.Logger)

	available := map[string]dex.Adapter{
		jupiter.AdapterName:       jupiter.NewAdapter(jupClient, r.scheduler, r.log.Logger),
		jupiter.DirectAdapterName: jupiter.NewDirectAdapter(r.limiter.Hostname(), r.scheduler, r.log.Logger),
		gmgn.AdapterName:          gmgn.NewAdapter(r.cfg.GmgnURL, r.scheduler, r.log.Logger),
		pumpfun.AdapterName:       pumpfun.NewAdapter(r.cfg.PumpPortalURL, r.scheduler, r.log.Logger),
		raydium.AdapterName:       raydium.NewAdapter(r.scheduler, r.cfg.VolatilityFactors, r.log.Logger),
	}

	adapters := make([]dex.Adapter, 0, len(r.cfg.AdapterOrder))
	for _, name := range r.cfg.AdapterOrder {
		adapter, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown adapter %q in adapter_order", name)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// Run starts the background services and blocks until ctx is cancelled or a
// termination signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.registry.Start(ctx)
	r.startMetricsServer()

	log := r.log.WithComponent("runner")
	log.Info("bot running")

	<-ctx.Done()
	log.Info("shutdown signal received")
	r.shutdown()
	return nil
}

// Swap executes one orchestrated swap from SOL into the given token using the
// named wallet.
func (r *Runner) Swap(ctx context.Context, walletName, tokenMint string, amountLamports uint64) (*types.SwapResult, error) {
	w, ok := r.wallets[walletName]
	if !ok {
		return nil, fmt.Errorf("unknown wallet %q", walletName)
	}
	outputMint, err := solana.PublicKeyFromBase58(tokenMint)
	if err != nil {
		return nil, types.NewTradeError(types.KindInvalidArg, "",
			fmt.Errorf("invalid token mint %q: %w", tokenMint, err))
	}

	if info, err := r.tokens.GetToken(ctx, tokenMint); err == nil {
		r.log.WithComponent("runner").Debug("token metadata",
			zap.String("mint", tokenMint),
			zap.Float64("price", info.Price),
			zap.Float64("liquidity", info.Liquidity))
	}

	return r.orchestrator.SubmitSwap(ctx, dex.SwapRequest{
		QuoteRequest: dex.QuoteRequest{
			InputMint:   solana.SolMint,
			OutputMint:  outputMint,
			AmountIn:    amountLamports,
			SlippageBps: r.cfg.DefaultSlippageBps,
		},
		Wallet:      w,
		PriorityFee: types.DefaultPriorityFee,
	})
}

// Orchestrator exposes the swap entry point for embedding callers.
func (r *Runner) Orchestrator() *trading.Orchestrator { return r.orchestrator }

func (r *Runner) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	r.metricsSrv = &http.Server{Addr: ":9090", Handler: mux}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.WithComponent("metrics").Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

func (r *Runner) shutdown() {
	if r.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	r.scheduler.Close()
	r.limiter.Close()
	r.registry.Close()
	_ = r.log.Sync()
}
