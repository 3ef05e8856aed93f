package store

import (
	"context"
	"errors"
	"time"

	"secure.link/internal/models"
)

var (
	ErrNotFound = errors.New("secret not found")
	ErrConflict = errors.New("secret was modified concurrently")
)

// Store persists secrets with per-record optimistic concurrency.
//
// Save inserts when secret.Version is zero (ErrConflict if the id is taken)
// and otherwise replaces the record only if the stored version still equals
// secret.Version. On success secret.Version holds the new version.
//
// Delete removes the record only if its stored version equals version.
type Store interface {
	Get(ctx context.Context, id string) (*models.Secret, error)
	Save(ctx context.Context, secret *models.Secret) error
	Delete(ctx context.Context, id string, version int64) error
	Close() error
}

// Expirer is implemented by stores that can purge secrets past their TTL.
type Expirer interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
