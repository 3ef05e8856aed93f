// redis.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"secure.link/internal/models"
)

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	// expireKeys sets a native key expiry from the secret's TTL.
	expireKeys bool
}

func NewRedisStore(options *redis.Options, expireKeys bool) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client, expireKeys: expireKeys}, nil
}

func (r *RedisStore) Save(ctx context.Context, secret *models.Secret) error {
	if secret.Version == 0 {
		return r.insert(ctx, secret)
	}

	key := secretKey(secret.ID)
	next := secret.Clone()
	next.Version++

	data, err := encode(next)
	if err != nil {
		return fmt.Errorf("encoding secret: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version != secret.Version {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return err
	}

	secret.Version = next.Version
	return nil
}

func (r *RedisStore) insert(ctx context.Context, secret *models.Secret) error {
	next := secret.Clone()
	next.Version = 1

	data, err := encode(next)
	if err != nil {
		return fmt.Errorf("encoding secret: %w", err)
	}

	var ttl time.Duration
	if r.expireKeys && secret.TTL > 0 {
		ttl = time.Until(secret.ExpiresAt())
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}

	ok, err := r.client.SetNX(ctx, secretKey(secret.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("saving secret: %w", err)
	}
	if !ok {
		return ErrConflict
	}

	secret.Version = next.Version
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	return r.load(ctx, r.client, secretKey(id))
}

func (r *RedisStore) Delete(ctx context.Context, id string, version int64) error {
	key := secretKey(id)

	txf := func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version != version {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, key)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// watch runs txf under an optimistic WATCH on key. A key touched by another
// client between WATCH and EXEC surfaces as ErrConflict.
func (r *RedisStore) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	err := r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("redis transaction: %w", err)
	}
}

func (r *RedisStore) load(ctx context.Context, c getter, key string) (*models.Secret, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading secret: %w", err)
	}

	secret, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding secret: %w", err)
	}
	return secret, nil
}

// Helpers

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func secretKey(id string) string {
	return "secret:" + id
}
