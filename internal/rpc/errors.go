// internal/rpc/errors.go
package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/solpulse/memebot/internal/types"
)

var (
	// ErrNoActiveEndpoints is returned when every endpoint is deactivated.
	ErrNoActiveEndpoints = errors.New("no active RPC endpoints available")

	// ErrRetryBudgetExhausted wraps the last failure after all retries.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
)

// Error carries the endpoint and method context of an RPC failure.
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with endpoint/method context.
func NewError(err error, nodeURL, method string) error {
	return &Error{Err: err, NodeURL: nodeURL, Method: method}
}

// Error-class base cooldowns applied when an endpoint is marked failed.
const (
	cooldownRateLimit = 2 * time.Minute
	cooldownAuth      = 60 * time.Minute
	cooldownNetwork   = 1 * time.Minute
	cooldownUnknown   = 30 * time.Second
)

// CooldownForKind maps a failure class onto the base cooldown the registry
// applies to the offending endpoint.
func CooldownForKind(kind types.Kind) time.Duration {
	switch kind {
	case types.KindRateLimited:
		return cooldownRateLimit
	case types.KindAuth:
		return cooldownAuth
	case types.KindNetwork, types.KindTimeout:
		return cooldownNetwork
	default:
		return cooldownUnknown
	}
}
