package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/observability"
	"github.com/spec-kit/reeltap/internal/repository"
)

// RevocationPurger periodically drops dead revocation entries. Lookups already ignore
// them; purging only bounds storage.
type RevocationPurger struct {
	store    repository.RevocationStore
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewRevocationPurger builds a purger. A non-positive interval disables it.
func NewRevocationPurger(store repository.RevocationStore, interval, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *RevocationPurger {
	return &RevocationPurger{
		store:    store,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run purges on every tick until ctx is done.
func (p *RevocationPurger) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("revocation purge disabled")
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce runs a single bounded purge and returns the number of dropped entries.
func (p *RevocationPurger) PurgeOnce(ctx context.Context) int64 {
	purgeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	n, err := p.store.Purge(purgeCtx, p.now())
	if err != nil {
		p.metrics.RecordRevocationError("purge")
		p.logger.Warn("revocation purge failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		p.logger.Info("revocation entries purged", zap.Int64("count", n))
	}
	return n
}
