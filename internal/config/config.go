// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EndpointConfig describes one RPC provider. Higher tier means better
// provider (paid/private before public).
type EndpointConfig struct {
	URL  string `mapstructure:"url"`
	Tier int    `mapstructure:"tier"`
}

// RateTierConfig is one rate-limit preset for the aggregator API.
type RateTierConfig struct {
	RequestsPerMinute   int    `mapstructure:"requests_per_minute"`
	PriceRequestsPerMin int    `mapstructure:"price_requests_per_minute"`
	Burst               int    `mapstructure:"burst"`
	SeparatePriceBucket bool   `mapstructure:"separate_price_bucket"`
	Hostname            string `mapstructure:"hostname"`
	MaxConcurrent       int    `mapstructure:"max_concurrent"`
}

// SchedulerConfig tunes the RPC request scheduler.
type SchedulerConfig struct {
	SpacingMs            int `mapstructure:"spacing_ms"`
	CallTimeoutSec       int `mapstructure:"call_timeout_sec"`
	MaxRetries           int `mapstructure:"max_retries"`
	PerEndpointPerMinute int `mapstructure:"per_endpoint_per_minute"`
	GlobalPer10Sec       int `mapstructure:"global_per_10_sec"`
	PerMethodPer10Sec    int `mapstructure:"per_method_per_10_sec"`
}

// CooldownConfig tunes the per-token failure tracker.
type CooldownConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	WindowMinutes    int `mapstructure:"window_minutes"`
}

type Config struct {
	Endpoints          []EndpointConfig          `mapstructure:"endpoints"`
	RateTier           string                    `mapstructure:"rate_tier"`
	RateTiers          map[string]RateTierConfig `mapstructure:"rate_tiers"`
	Scheduler          SchedulerConfig           `mapstructure:"scheduler"`
	Cooldown           CooldownConfig            `mapstructure:"cooldown"`
	AdapterOrder       []string                  `mapstructure:"adapter_order"`
	VolatilityFactors  map[string]float64        `mapstructure:"volatility_factors"`
	HealthCheckSec     int                       `mapstructure:"health_check_sec"`
	PumpPortalURL      string                    `mapstructure:"pumpportal_url"`
	GmgnURL            string                    `mapstructure:"gmgn_url"`
	DebugLogging       bool                      `mapstructure:"debug_logging"`
	WalletsFile        string                    `mapstructure:"wallets_file"`
	DefaultSlippageBps uint64                    `mapstructure:"default_slippage_bps"`
}

const (
	DefaultSpacingMs        = 500
	DefaultCallTimeoutSec   = 15
	DefaultMaxRetries       = 3
	DefaultHealthCheckSec   = 30
	DefaultFailureThreshold = 3
	DefaultCooldownMinutes  = 10
	DefaultSlippageBps      = 500
)

// DefaultAdapterOrder is the deployment-fixed fallback cascade.
var DefaultAdapterOrder = []string{
	"jupiter", "jupiter-direct", "gmgn", "pumpfun", "raydium",
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"rate_tier":                  "free",
		"scheduler.spacing_ms":       DefaultSpacingMs,
		"scheduler.call_timeout_sec": DefaultCallTimeoutSec,
		"scheduler.max_retries":      DefaultMaxRetries,
		"cooldown.failure_threshold": DefaultFailureThreshold,
		"cooldown.window_minutes":    DefaultCooldownMinutes,
		"health_check_sec":           DefaultHealthCheckSec,
		"default_slippage_bps":       DefaultSlippageBps,
		"pumpportal_url":             "https://pumpportal.fun/api",
		"gmgn_url":                   "https://gmgn.ai/defi/router/v1/sol",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	applyFallbacks(&cfg)
	return &cfg, validate(&cfg)
}

func applyFallbacks(cfg *Config) {
	if len(cfg.AdapterOrder) == 0 {
		cfg.AdapterOrder = DefaultAdapterOrder
	}
	if cfg.RateTiers == nil {
		cfg.RateTiers = map[string]RateTierConfig{}
	}
	if _, ok := cfg.RateTiers["free"]; !ok {
		cfg.RateTiers["free"] = RateTierConfig{
			RequestsPerMinute:   60,
			PriceRequestsPerMin: 30,
			Burst:               10,
			SeparatePriceBucket: true,
			Hostname:            "https://lite-api.jup.ag",
			MaxConcurrent:       2,
		}
	}
	if _, ok := cfg.RateTiers["paid"]; !ok {
		cfg.RateTiers["paid"] = RateTierConfig{
			RequestsPerMinute: 600,
			Burst:             50,
			Hostname:          "https://api.jup.ag",
			MaxConcurrent:     8,
		}
	}
	if cfg.Scheduler.PerEndpointPerMinute == 0 {
		cfg.Scheduler.PerEndpointPerMinute = 60
	}
	if cfg.Scheduler.GlobalPer10Sec == 0 {
		cfg.Scheduler.GlobalPer10Sec = 20
	}
	if cfg.Scheduler.PerMethodPer10Sec == 0 {
		cfg.Scheduler.PerMethodPer10Sec = 10
	}
}

func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("endpoints list is empty")
	}
	for _, ep := range cfg.Endpoints {
		if err := validateURLWithCache(ep.URL, "http"); err != nil {
			return errors.New("invalid RPC endpoint URL: " + ep.URL)
		}
		if ep.Tier < 0 {
			return errors.New("endpoint tier must be non-negative")
		}
	}
	if _, ok := cfg.RateTiers[cfg.RateTier]; !ok {
		return errors.New("unknown rate tier: " + cfg.RateTier)
	}
	for _, name := range cfg.AdapterOrder {
		switch name {
		case "jupiter", "jupiter-direct", "gmgn", "pumpfun", "raydium":
		default:
			return errors.New("unknown adapter in adapter_order: " + name)
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Scheduler.SpacingMs <= 0 {
		return errors.New("invalid scheduler.spacing_ms")
	}
	if cfg.Scheduler.CallTimeoutSec <= 0 {
		return errors.New("invalid scheduler.call_timeout_sec")
	}
	if cfg.Scheduler.MaxRetries < 0 {
		return errors.New("invalid scheduler.max_retries")
	}
	if cfg.Cooldown.FailureThreshold <= 0 {
		return errors.New("invalid cooldown.failure_threshold")
	}
	if cfg.Cooldown.WindowMinutes <= 0 {
		return errors.New("invalid cooldown.window_minutes")
	}
	if cfg.HealthCheckSec <= 0 {
		return errors.New("invalid health_check_sec")
	}
	if cfg.DefaultSlippageBps == 0 || cfg.DefaultSlippageBps > 10_000 {
		return errors.New("invalid default_slippage_bps")
	}
	return nil
}

// CooldownWindow returns the configured per-token cooldown duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Cooldown.WindowMinutes) * time.Minute
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("MEMEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envTier := v.GetString("RATE_TIER")
	if envTier != "" {
		cfg.RateTier = envTier
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var endpoints []EndpointConfig
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				endpoints = append(endpoints, EndpointConfig{URL: clean, Tier: 1})
			}
		}
		if len(endpoints) > 0 {
			cfg.Endpoints = endpoints
		}
	}
	return nil
}
