package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/session/repository"
	"crm-tenancy/backend/internal/telemetry"
)

// Purger deletes credentials that expired more than retention ago.
type Purger struct {
	store     repository.Repository
	retention time.Duration
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewPurger returns a Purger. metrics may be nil.
func NewPurger(store repository.Repository, retention time.Duration, metrics *telemetry.Metrics) *Purger {
	return &Purger{store: store, retention: retention, metrics: metrics, now: time.Now}
}

// PurgeOnce runs one purge and returns the number of deleted credentials.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.metrics.Purged(n)
	logger.From(ctx).Info("purged expired refresh credentials", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Run purges every interval until ctx is done. Failures are logged and retried on the next tick.
func (p *Purger) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
			logger.From(ctx).Error("purge failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
