package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure.link/internal/models"
)

func newTestSecret(ttl int) *models.Secret {
	return &models.Secret{
		ID:                uuid.NewString(),
		Content:           "top secret",
		PasswordHash:      "",
		TTL:               ttl,
		AdminToken:        uuid.NewString(),
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
		RemainingAttempts: 3,
	}
}

// runStoreSuite exercises the Store contract against a concrete backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		secret.PasswordHash = "abc123"
		secret.AppendLog(secret.CreatedAt, "created")

		require.NoError(t, s.Save(ctx, secret))
		assert.Equal(t, int64(1), secret.Version)

		got, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		assert.Equal(t, secret.ID, got.ID)
		assert.Equal(t, "top secret", got.Content)
		assert.Equal(t, "abc123", got.PasswordHash)
		assert.Equal(t, 60, got.TTL)
		assert.Equal(t, secret.AdminToken, got.AdminToken)
		assert.True(t, secret.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, 3, got.RemainingAttempts)
		assert.Equal(t, secret.AccessLogs, got.AccessLogs)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InsertExistingIDConflicts", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		dup := newTestSecret(60)
		dup.ID = secret.ID
		assert.ErrorIs(t, s.Save(ctx, dup), ErrConflict)
		assert.Equal(t, int64(0), dup.Version)
	})

	t.Run("UpdateWithCurrentVersion", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		secret.RemainingAttempts = 2
		secret.AppendLog(time.Now(), "failed password attempt")
		require.NoError(t, s.Save(ctx, secret))
		assert.Equal(t, int64(2), secret.Version)

		got, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RemainingAttempts)
		assert.Len(t, got.AccessLogs, 1)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("UpdateWithStaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		first, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		second, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)

		first.RemainingAttempts = 2
		require.NoError(t, s.Save(ctx, first))

		second.RemainingAttempts = 1
		assert.ErrorIs(t, s.Save(ctx, second), ErrConflict)

		got, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RemainingAttempts)
	})

	t.Run("UpdateMissingIsNotFound", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		secret.Version = 4
		assert.ErrorIs(t, s.Save(ctx, secret), ErrNotFound)
	})

	t.Run("DeleteRequiresMatchingVersion", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		assert.ErrorIs(t, s.Delete(ctx, secret.ID, secret.Version+1), ErrConflict)
		_, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, secret.ID, secret.Version))
		_, err = s.Get(ctx, secret.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, secret.ID, secret.Version), ErrNotFound)
	})

	t.Run("ConcurrentDeleteHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Delete(ctx, secret.ID, secret.Version); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("ReturnedSecretIsDetached", func(t *testing.T) {
		s := newStore(t)
		secret := newTestSecret(60)
		require.NoError(t, s.Save(ctx, secret))

		got, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		got.RemainingAttempts = 0

		again, err := s.Get(ctx, secret.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, again.RemainingAttempts)
	})
}

// runExpirerSuite checks PurgeExpired on stores that support it.
func runExpirerSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	s := newStore(t)
	e, ok := s.(Expirer)
	require.True(t, ok, "store does not implement Expirer")

	expired := newTestSecret(60)
	expired.CreatedAt = time.Now().Add(-2 * time.Minute).UTC()
	fresh := newTestSecret(3600)
	forever := newTestSecret(0)
	forever.CreatedAt = time.Now().Add(-48 * time.Hour).UTC()

	for _, secret := range []*models.Secret{expired, fresh, forever} {
		require.NoError(t, s.Save(ctx, secret))
	}

	purged, err := e.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, forever.ID)
	assert.NoError(t, err)
}
