package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/config"
)

// retryManager re-runs a page fetch after transient failures, waiting a
// fixed delay between attempts.
type retryManager struct {
	maxRetries int
	delay      time.Duration
	metrics    *Metrics
	logger     *slog.Logger

	mu           sync.Mutex
	totalRetries int
}

func newRetryManager(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *retryManager {
	return &retryManager{
		maxRetries: cfg.RetryCount,
		delay:      cfg.SleepBetweenRequests,
		metrics:    metrics,
		logger:     logger,
	}
}

// Do calls fn until it succeeds, fails permanently, or maxRetries+1 attempts
// have been made. It returns the number of attempts and the last error.
func (rm *retryManager) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	attempt := 0
	for {
		attempt++
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, err
		}
		if !isTransient(err) || attempt > rm.maxRetries {
			return attempt, err
		}

		rm.mu.Lock()
		rm.totalRetries++
		rm.mu.Unlock()
		rm.metrics.IncRetries()

		delay := rm.backoff(attempt)
		rm.logger.Debug("scheduling retry",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("category", errorTypeLabel(err)),
		)
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return attempt, err
		}
	}
}

// backoff is constant: the configured delay applies to every retry.
func (rm *retryManager) backoff(int) time.Duration {
	if rm.delay < 0 {
		return 0
	}
	return rm.delay
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
