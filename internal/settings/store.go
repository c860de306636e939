// Package settings keeps per-user featured filter preferences.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/atlas-jobs/internal/filter"
)

// DefaultUserID is used when a request carries no user identity.
const DefaultUserID = "user-123"

// Store is an in-memory settings store keyed by user ID.
type Store struct {
	mu    sync.RWMutex
	users map[string]filter.Settings
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{users: make(map[string]filter.Settings)}
}

// Get returns the user's saved settings, or the defaults.
func (s *Store) Get(_ context.Context, userID string) filter.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if saved, ok := s.users[userID]; ok {
		return saved.Clone()
	}
	return filter.Default()
}

// Save validates and stores settings for the user.
func (s *Store) Save(_ context.Context, userID string, settings filter.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("save settings for %s: %w", userID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = settings.Clone()
	return nil
}
