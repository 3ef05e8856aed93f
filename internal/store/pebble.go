package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"secure.link/internal/models"
)

var (
	_ Store   = (*PebbleStore)(nil)
	_ Expirer = (*PebbleStore)(nil)
)

var (
	pebblePrefix     = []byte("secret/")
	pebblePrefixStop = []byte("secret0") // '0' sorts right after '/'
)

// PebbleStore is an embedded single-node store. Pebble has no conditional
// writes, so every read-compare-write runs under mu.
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	return p.load(pebbleKey(id))
}

func (p *PebbleStore) Save(ctx context.Context, secret *models.Secret) error {
	key := pebbleKey(secret.ID)

	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.load(key)
	switch {
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	case secret.Version == 0 && err == nil:
		return ErrConflict
	case secret.Version != 0 && err != nil:
		return ErrNotFound
	case secret.Version != 0 && current.Version != secret.Version:
		return ErrConflict
	}

	next := secret.Clone()
	next.Version++

	data, err := encode(next)
	if err != nil {
		return fmt.Errorf("encoding secret: %w", err)
	}

	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("writing secret: %w", err)
	}

	secret.Version = next.Version
	return nil
}

func (p *PebbleStore) Delete(ctx context.Context, id string, version int64) error {
	key := pebbleKey(id)

	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.load(key)
	if err != nil {
		return err
	}
	if current.Version != version {
		return ErrConflict
	}

	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	return nil
}

func (p *PebbleStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: pebblePrefix,
		UpperBound: pebblePrefixStop,
	})
	if err != nil {
		return 0, fmt.Errorf("creating iterator: %w", err)
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	purged := 0
	for iter.First(); iter.Valid(); iter.Next() {
		secret, err := decode(iter.Value())
		if err != nil {
			iter.Close()
			return 0, fmt.Errorf("decoding secret %s: %w", iter.Key(), err)
		}
		if secret.Expired(now) {
			if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				iter.Close()
				return 0, fmt.Errorf("staging delete: %w", err)
			}
			purged++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("iterating secrets: %w", err)
	}

	if purged == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing purge: %w", err)
	}
	return purged, nil
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}

func (p *PebbleStore) load(key []byte) (*models.Secret, error) {
	data, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	defer closer.Close()

	secret, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding secret: %w", err)
	}
	return secret, nil
}

func pebbleKey(id string) []byte {
	return append(append([]byte(nil), pebblePrefix...), id...)
}
