package secrets

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically purges secrets that outlived their TTL. It only runs
// when expiry enforcement is switched on; by default TTLs are informational.
type Janitor struct {
	service  *Service
	interval time.Duration
	log      *zap.Logger
}

func NewJanitor(service *Service, interval time.Duration, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{
		service:  service,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.service.PurgeExpired(ctx)
	if err != nil {
		j.log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("purged expired secrets", zap.Int("count", n))
	}
}
