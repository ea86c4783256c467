package agent

import (
	"context"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// Backend defines the agent service operations the proxy depends on.
// This interface is implemented by the foundry REST client.
type Backend interface {
	// CreateThread starts a new conversation thread.
	CreateThread(ctx context.Context) (foundry.Thread, error)

	// GetThread resolves an existing thread by id.
	GetThread(ctx context.Context, threadID string) (foundry.Thread, error)

	// CreateMessage appends a message to a thread.
	CreateMessage(ctx context.Context, threadID, role, content string) (foundry.Message, error)

	// CreateRun starts the agent on a thread.
	CreateRun(ctx context.Context, threadID, agentID string) (foundry.Run, error)

	// GetRun fetches a run's current status.
	GetRun(ctx context.Context, threadID, runID string) (foundry.Run, error)

	// ListMessages returns a thread's newest messages.
	ListMessages(ctx context.Context, threadID string) ([]foundry.Message, error)

	// GetAgent fetches agent metadata, used for validation and health.
	GetAgent(ctx context.Context, agentID string) (foundry.Agent, error)
}

// ConnectFunc builds an authenticated Backend. It is called lazily and may be
// called again after a failed initialization.
type ConnectFunc func(ctx context.Context) (Backend, error)

// Ensure the foundry client implements Backend.
var _ Backend = (*foundry.Client)(nil)
