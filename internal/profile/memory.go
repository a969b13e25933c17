// File: internal/profile/memory.go
package profile

import (
	"context"
	"sync"
	"time"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
)

// MemoryStore is an in-memory Store used by tests and local development.
// The mutex gives it the same at-most-one-winning-create guarantee per UID
// that Firestore transactions give the production store.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*UserProfile
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*UserProfile)}
}

func (s *MemoryStore) EnsureProfile(_ context.Context, ident *identity.Identity, defaults *Patch) error {
	if ident == nil || ident.UID == "" {
		return common.ErrBadRequest.WithDetails("Identity with a UID is required to reconcile a profile.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[ident.UID]; ok {
		existing.LastLoginAt = time.Now().UTC()
		defaults.ApplyTo(existing)
		return nil
	}

	p := newProfile(ident, time.Now().UTC())
	defaults.ApplyTo(p)
	s.profiles[ident.UID] = p
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, uid string) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok {
		return nil, common.ErrNotFound.WithDetails("No profile exists for this user.")
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, uid string, patch *Patch) error {
	if patch.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok {
		return common.ErrNotFound.WithDetails("No profile exists for this user.")
	}
	patch.ApplyTo(p)
	return nil
}

func (s *MemoryStore) SyncPending(context.Context) (int, error) {
	return 0, nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
