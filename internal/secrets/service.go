// Package secrets implements the lifecycle of a one-time secret: creation,
// attempt-limited viewing, burn-on-read and early destruction by its creator.
package secrets

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"secure.link/internal/crypto"
	"secure.link/internal/logger"
	"secure.link/internal/metrics"
	"secure.link/internal/models"
	"secure.link/internal/store"
)

const (
	DefaultTTL         = 86400
	DefaultMaxAttempts = 3

	// maxRetries bounds how often an operation re-reads a secret after
	// losing a version race.
	maxRetries = 5
)

type Service struct {
	store       store.Store
	hasher      crypto.Hasher
	log         *zap.Logger
	metrics     *metrics.Metrics
	defaultTTL  int
	maxAttempts int
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDefaultTTL(seconds int) Option {
	return func(s *Service) { s.defaultTTL = seconds }
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, hasher crypto.Hasher, opts ...Option) *Service {
	s := &Service{
		store:       st,
		hasher:      hasher,
		log:         zap.NewNop(),
		defaultTTL:  DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	Content  string
	Password string
	TTL      *int // seconds; nil selects the default
}

type Created struct {
	ID         string
	AdminToken string
}

type Status struct {
	Active    bool
	CreatedAt time.Time
	TTL       int
	ExpiresAt time.Time
}

type CheckResult struct {
	RequiresPassword  bool
	RemainingAttempts int
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if req.Content == "" {
		return nil, ErrInvalidInput
	}

	ttl := s.defaultTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}

	var passwordHash string
	if req.Password != "" {
		h, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		passwordHash = h
	}

	now := s.now().UTC()
	for attempt := 0; attempt < maxRetries; attempt++ {
		secret := &models.Secret{
			ID:                crypto.GenerateID(),
			Content:           req.Content,
			PasswordHash:      passwordHash,
			TTL:               ttl,
			AdminToken:        crypto.GenerateToken(),
			CreatedAt:         now,
			RemainingAttempts: s.maxAttempts,
		}
		secret.AppendLog(now, "created")

		err := s.store.Save(ctx, secret)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("saving secret: %w", err)
		}

		s.metrics.SecretCreated()
		logger.WithContext(ctx, s.log).Debug("secret created",
			zap.String("secret_id", secret.ID),
			zap.Bool("password", secret.RequiresPassword()),
			zap.Int("ttl", ttl),
		)
		return &Created{ID: secret.ID, AdminToken: secret.AdminToken}, nil
	}

	return nil, fmt.Errorf("saving secret: %w", ErrConflict)
}

// Status never reports a missing secret as an error.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	secret, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &Status{Active: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Status{
		Active:    true,
		CreatedAt: secret.CreatedAt,
		TTL:       secret.TTL,
		ExpiresAt: secret.ExpiresAt(),
	}, nil
}

func (s *Service) Check(ctx context.Context, id string) (*CheckResult, error) {
	secret, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		RequiresPassword:  secret.RequiresPassword(),
		RemainingAttempts: secret.RemainingAttempts,
	}, nil
}

// View returns the content and destroys the secret. A missing or wrong
// password costs one attempt; the last attempt destroys the secret and
// returns ErrExhausted. Every write is conditional on the version read, so
// concurrent viewers re-evaluate against the latest state and at most one
// of them receives the content.
func (s *Service) View(ctx context.Context, id, password string) (string, error) {
	log := logger.WithContext(ctx, s.log).With(zap.String("secret_id", id))

	for attempt := 0; attempt < maxRetries; attempt++ {
		secret, err := s.get(ctx, id)
		if err != nil {
			return "", err
		}

		if secret.RequiresPassword() && (password == "" || !s.hasher.Verify(password, secret.PasswordHash)) {
			remaining := secret.RemainingAttempts - 1

			if remaining <= 0 {
				err := s.delete(ctx, secret)
				if errors.Is(err, ErrConflict) {
					continue
				}
				if err != nil {
					return "", err
				}

				s.metrics.PasswordFailed()
				s.metrics.SecretExhausted()
				log.Info("secret destroyed after failed password attempts")
				return "", ErrExhausted
			}

			secret.RemainingAttempts = remaining
			secret.AppendLog(s.now(), fmt.Sprintf("failed password attempt, %d remaining", remaining))

			err := s.store.Save(ctx, secret)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return "", ErrNotFound
			}
			if err != nil {
				return "", fmt.Errorf("saving secret: %w", err)
			}

			s.metrics.PasswordFailed()
			log.Debug("failed password attempt", zap.Int("remaining_attempts", remaining))
			return "", &WrongPasswordError{Remaining: remaining}
		}

		err = s.delete(ctx, secret)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return "", err
		}

		s.metrics.SecretViewed()
		log.Info("secret viewed and destroyed")
		return secret.Content, nil
	}

	return "", ErrConflict
}

// Burn destroys the secret if adminToken matches; a mismatch leaves it untouched.
func (s *Service) Burn(ctx context.Context, id, adminToken string) error {
	log := logger.WithContext(ctx, s.log).With(zap.String("secret_id", id))

	for attempt := 0; attempt < maxRetries; attempt++ {
		secret, err := s.get(ctx, id)
		if err != nil {
			return err
		}

		if subtle.ConstantTimeCompare([]byte(adminToken), []byte(secret.AdminToken)) != 1 {
			log.Debug("burn rejected: admin token mismatch")
			return ErrUnauthorized
		}

		err = s.delete(ctx, secret)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}

		s.metrics.SecretBurned()
		log.Info("secret burned")
		return nil
	}

	return ErrConflict
}

// PurgeExpired removes secrets past their TTL when the store supports it.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	expirer, ok := s.store.(store.Expirer)
	if !ok {
		return 0, nil
	}

	n, err := expirer.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purging expired secrets: %w", err)
	}

	s.metrics.SecretsPurged(n)
	return n, nil
}

func (s *Service) get(ctx context.Context, id string) (*models.Secret, error) {
	secret, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading secret: %w", err)
	}
	return secret, nil
}

func (s *Service) delete(ctx context.Context, secret *models.Secret) error {
	err := s.store.Delete(ctx, secret.ID, secret.Version)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("deleting secret: %w", err)
	}
}
