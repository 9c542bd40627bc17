package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// KeyStore is an in-memory scrape.KeyStore.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]scrape.APIKey // by id
}

// NewKeyStore constructs a KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string]scrape.APIKey)}
}

// CreateKey stores a new key record.
func (s *KeyStore) CreateKey(_ context.Context, key scrape.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

// GetByHash returns the key whose stored hash matches.
func (s *KeyStore) GetByHash(_ context.Context, hash string) (scrape.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.keys {
		if key.Hash == hash {
			return key, nil
		}
	}
	return scrape.APIKey{}, scrape.ErrNotFound
}

// ListByPrincipal returns the principal's active keys newest-first.
func (s *KeyStore) ListByPrincipal(_ context.Context, principalID string) ([]scrape.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.APIKey
	for _, key := range s.keys {
		if key.PrincipalID == principalID && key.Active {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Deactivate soft-deletes the principal's key.
func (s *KeyStore) Deactivate(_ context.Context, id, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok || key.PrincipalID != principalID {
		return scrape.ErrNotFound
	}
	key.Active = false
	s.keys[id] = key
	return nil
}

// IncrementUsage bumps the key's request counter.
func (s *KeyStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return scrape.ErrNotFound
	}
	key.UsageCount++
	s.keys[id] = key
	return nil
}
