package soauth

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/log"
)

// Cleaner periodically removes stale credentials from a store.
type Cleaner struct {
	store    domain.CredentialStore
	interval time.Duration
	logger   log.Logger
}

func NewCleaner(store domain.CredentialStore, interval time.Duration, logger log.Logger) *Cleaner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Cleaner{store: store, interval: interval, logger: logger}
}

// CleanOnce runs a single sweep and returns the number of removed records.
func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	n, err := c.store.Clean(ctx)
	if err != nil {
		c.logger.Error(ctx, "Credential cleanup failed", err)
		return 0, err
	}

	if n > 0 {
		metrics.CredentialsCleanedTotal.Add(float64(n))
		c.logger.Info(ctx, "Removed stale credentials", log.Fields{"count": n})
	}

	return n, nil
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the loop.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = c.CleanOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
