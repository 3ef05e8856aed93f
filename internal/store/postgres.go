package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"secure.link/internal/models"
)

var (
	_ Store   = (*PostgresStore)(nil)
	_ Expirer = (*PostgresStore)(nil)
)

// PostgresStore keeps secrets in the secrets table. Writes are guarded by
// the version column so concurrent consumers of one secret cannot both win.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func scanSecret(row pgx.Row) (*models.Secret, error) {
	var secret models.Secret
	err := row.Scan(
		&secret.ID,
		&secret.Content,
		&secret.PasswordHash,
		&secret.TTL,
		&secret.AdminToken,
		&secret.CreatedAt,
		&secret.RemainingAttempts,
		&secret.AccessLogs,
		&secret.Version,
	)
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	query := `
		SELECT id, content, COALESCE(password_hash, ''), ttl, admin_token,
		       created_at, remaining_attempts, access_logs, version
		FROM secrets
		WHERE id = $1
	`

	secret, err := scanSecret(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	return secret, nil
}

func (p *PostgresStore) Save(ctx context.Context, secret *models.Secret) error {
	if secret.Version == 0 {
		return p.insert(ctx, secret)
	}

	// Only the attempt counter and the access log change after creation.
	query := `
		UPDATE secrets
		SET remaining_attempts = $1, access_logs = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`

	result, err := p.pool.Exec(ctx, query,
		secret.RemainingAttempts,
		accessLogs(secret),
		secret.ID,
		secret.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}

	if result.RowsAffected() == 0 {
		return p.classifyMiss(ctx, secret.ID)
	}

	secret.Version++
	return nil
}

func (p *PostgresStore) insert(ctx context.Context, secret *models.Secret) error {
	query := `
		INSERT INTO secrets (id, content, password_hash, ttl, admin_token,
		                     created_at, remaining_attempts, access_logs, version)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, 1)
		ON CONFLICT DO NOTHING
	`

	result, err := p.pool.Exec(ctx, query,
		secret.ID,
		secret.Content,
		secret.PasswordHash,
		secret.TTL,
		secret.AdminToken,
		secret.CreatedAt,
		secret.RemainingAttempts,
		accessLogs(secret),
	)
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	secret.Version = 1
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string, version int64) error {
	query := `DELETE FROM secrets WHERE id = $1 AND version = $2`

	result, err := p.pool.Exec(ctx, query, id, version)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	if result.RowsAffected() == 0 {
		return p.classifyMiss(ctx, id)
	}

	return nil
}

func (p *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		DELETE FROM secrets
		WHERE ttl > 0 AND created_at + make_interval(secs => ttl) < $1
	`

	result, err := p.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired secrets: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// classifyMiss explains a conditional write that matched no rows.
func (p *PostgresStore) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM secrets WHERE id = $1)`
	if err := p.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check secret existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func accessLogs(secret *models.Secret) []string {
	if secret.AccessLogs == nil {
		return []string{}
	}
	return secret.AccessLogs
}
