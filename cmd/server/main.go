package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"secure.link/config"
	"secure.link/internal/api"
	"secure.link/internal/crypto"
	"secure.link/internal/logger"
	"secure.link/internal/metrics"
	"secure.link/internal/secrets"
	"secure.link/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error: ", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal("logger error: ", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher, err := crypto.NewHasher(cfg.Secrets.Hasher)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	svc := secrets.NewService(st, hasher,
		secrets.WithLogger(lg),
		secrets.WithMetrics(m),
		secrets.WithDefaultTTL(cfg.DefaultTTLSeconds()),
		secrets.WithMaxAttempts(cfg.Secrets.MaxAttempts),
	)

	if cfg.Secrets.EnforceTTL {
		if _, ok := st.(store.Expirer); ok {
			go secrets.NewJanitor(svc, cfg.Secrets.SweepInterval, lg.Named("janitor")).Run(ctx)
		} else {
			lg.Info("store expires keys natively, janitor not started", zap.String("store", cfg.Store.Type))
		}
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.SetupRouter(svc, cfg, lg, m),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lg.Info("server starting",
		zap.String("addr", cfg.Addr()),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("store", cfg.Store.Type),
		zap.String("hasher", cfg.Secrets.Hasher),
		zap.Bool("enforce_ttl", cfg.Secrets.EnforceTTL),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case config.StoreRedis:
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Secrets.EnforceTTL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return st, nil
	case config.StorePostgres:
		if cfg.Store.Postgres.AutoMigrate {
			if err := store.MigratePostgres(cfg.Store.Postgres.DSN); err != nil {
				return nil, err
			}
		}
		st, err := store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		return st, nil
	case config.StorePebble:
		st, err := store.NewPebbleStore(cfg.Store.Pebble.Path)
		if err != nil {
			return nil, fmt.Errorf("opening pebble store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}
