// ==============================
// File: internal/bot/tokenstore.go
// ==============================
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/solpulse/memebot/internal/types"
)

// StaticTokenStore is an in-memory types.TokenStore. It backs cmd/bot when no
// external metadata service is wired; embedders replace it via SetTokenStore.
type StaticTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]types.TokenInfo
}

func NewStaticTokenStore() *StaticTokenStore {
	return &StaticTokenStore{tokens: make(map[string]types.TokenInfo)}
}

// Put registers or replaces the metadata for one mint.
func (s *StaticTokenStore) Put(info types.TokenInfo) {
	s.mu.Lock()
	s.tokens[info.Address] = info
	s.mu.Unlock()
}

func (s *StaticTokenStore) GetToken(_ context.Context, address string) (*types.TokenInfo, error) {
	s.mu.RLock()
	info, ok := s.tokens[address]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("token %s not in store", address)
	}
	return &info, nil
}
