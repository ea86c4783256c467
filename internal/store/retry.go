package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/domain"
	"github.com/ashureev/foundry-chat-proxy/internal/shared"
)

// RecordExchangeWithRetry records an exchange with exponential backoff on
// SQLite contention errors.
func RecordExchangeWithRetry(ctx context.Context, repo Repository, ex *domain.Exchange) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = repo.RecordExchange(ctx, ex)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
		slog.Debug("Transcript write hit database contention, retrying",
			"thread_id", ex.ThreadID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("record exchange for %s: %w", ex.ThreadID, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("record exchange for %s: %w", ex.ThreadID, err)
}
