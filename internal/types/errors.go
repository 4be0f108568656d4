// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so the scheduler, rate limiter and orchestrator
// can reason about retries uniformly regardless of which backend produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindTimeout
	KindNetwork
	KindNoRoute
	KindInsufficientLiquidity
	KindAuth
	KindInvalidArg
	KindAllExhausted
	KindTokenCooldown
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network_unavailable"
	case KindNoRoute:
		return "no_route_found"
	case KindInsufficientLiquidity:
		return "insufficient_liquidity"
	case KindAuth:
		return "auth_rejected"
	case KindInvalidArg:
		return "invalid_argument"
	case KindAllExhausted:
		return "all_adapters_exhausted"
	case KindTokenCooldown:
		return "token_on_cooldown"
	default:
		return "unknown"
	}
}

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrTimeout      = errors.New("request timeout")
	ErrNetwork      = errors.New("network unavailable")
	ErrNoRoute      = errors.New("no route found")
	ErrNoLiquidity  = errors.New("insufficient liquidity")
	ErrAuthRejected = errors.New("authorization rejected")
	ErrInvalidArg   = errors.New("invalid argument")
)

// TradeError wraps a failure with its classification and the adapter or
// endpoint that produced it.
type TradeError struct {
	Kind    Kind
	Adapter string
	Err     error
}

func (e *TradeError) Error() string {
	if e.Adapter != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Adapter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TradeError) Unwrap() error { return e.Err }

// NewTradeError classifies err if kind is KindUnknown.
func NewTradeError(kind Kind, adapter string, err error) *TradeError {
	if kind == KindUnknown {
		kind = Classify(err)
	}
	return &TradeError{Kind: kind, Adapter: adapter, Err: err}
}

// KindOf extracts the classification from err, falling back to Classify.
func KindOf(err error) Kind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return Classify(err)
}

// Classify maps an arbitrary error onto the taxonomy using sentinel matches
// first, then provider-specific message text.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrNoRoute):
		return KindNoRoute
	case errors.Is(err, ErrNoLiquidity):
		return KindInsufficientLiquidity
	case errors.Is(err, ErrAuthRejected):
		return KindAuth
	case errors.Is(err, ErrInvalidArg):
		return KindInvalidArg
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof"):
		return KindNetwork
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "no route") ||
		strings.Contains(msg, "route not found") ||
		strings.Contains(msg, "could not find any route"):
		return KindNoRoute
	case strings.Contains(msg, "insufficient liquidity") ||
		strings.Contains(msg, "not enough liquidity"):
		return KindInsufficientLiquidity
	case strings.Contains(msg, "invalid param") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "invalid request"):
		return KindInvalidArg
	default:
		return KindUnknown
	}
}

// ClassifyStatus maps an HTTP status code onto the taxonomy.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest:
		return KindInvalidArg
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the failure class may be retried locally.
// NoRoute is handled by adapter fallback, not local retry.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}
