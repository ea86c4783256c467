// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/foundry-chat-proxy/internal/domain"
)

// Repository persists chat transcripts. The agent service remains the system
// of record for conversations; this is an operator-facing audit trail.
type Repository interface {
	// RecordExchange stores a completed exchange and sets its ID.
	RecordExchange(ctx context.Context, ex *domain.Exchange) error

	// ListExchanges returns up to limit of a thread's most recent exchanges, oldest first.
	ListExchanges(ctx context.Context, threadID string, limit int) ([]*domain.Exchange, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
