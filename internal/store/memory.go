package store

import (
	"context"
	"sync"
	"time"

	"secure.link/internal/models"
)

// Compile-time interface check
var (
	_ Store   = (*MemoryStore)(nil)
	_ Expirer = (*MemoryStore)(nil)
)

type MemoryStore struct {
	secrets map[string]*models.Secret
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]*models.Secret),
	}
}

func (s *MemoryStore) Save(ctx context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.secrets[secret.ID]
	switch {
	case secret.Version == 0 && ok:
		return ErrConflict
	case secret.Version != 0 && !ok:
		return ErrNotFound
	case secret.Version != 0 && current.Version != secret.Version:
		return ErrConflict
	}

	secret.Version++
	s.secrets[secret.ID] = secret.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[id]
	if !ok {
		return nil, ErrNotFound
	}

	return secret.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.secrets[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrConflict
	}

	delete(s.secrets, id)
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, secret := range s.secrets {
		if secret.Expired(now) {
			delete(s.secrets, id)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets = make(map[string]*models.Secret)
	return nil
}
