package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// connectTimeout bounds a single lazy initialization attempt.
const connectTimeout = 30 * time.Second

var (
	errNoConnector = errors.New("no agent backend connector configured")
	errNilBackend  = errors.New("agent backend connector returned no backend")
)

// panicError carries a recovered panic value as an error.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// connection is the validated, process-wide handle to the agent service.
type connection struct {
	backend Backend
	agent   foundry.Agent
}

// client returns the shared connection, initializing it on first use.
// Concurrent callers share one attempt; a failed attempt is not cached.
func (s *Service) client(ctx context.Context) (*connection, error) {
	if c := s.conn.Load(); c != nil {
		return c, nil
	}
	if s.connect == nil {
		return nil, errNoConnector
	}

	v, err, _ := s.initGroup.Do("connect", func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic while connecting to agent backend",
					"panic", r,
					"stack", string(debug.Stack()),
				)
				result, err = nil, fmt.Errorf("connect to agent backend: %w", &panicError{value: r})
			}
		}()

		if c := s.conn.Load(); c != nil {
			return c, nil
		}

		// Detached from the caller so one disconnecting client does not fail
		// the attempt for everyone waiting on it.
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
		defer cancel()

		backend, err := s.connect(initCtx)
		if err != nil {
			return nil, fmt.Errorf("connect to agent backend: %w", err)
		}
		if backend == nil {
			return nil, errNilBackend
		}
		agent, err := backend.GetAgent(initCtx, s.settings.AgentID)
		if err != nil {
			return nil, fmt.Errorf("validate agent %s: %w", s.settings.AgentID, err)
		}

		c := &connection{backend: backend, agent: agent}
		s.conn.Store(c)
		s.logger.Info("Connected to agent backend",
			"endpoint", s.settings.Endpoint,
			"agent_id", s.settings.AgentID,
			"agent_name", agent.Name,
			"workspace", s.settings.WorkspaceName,
		)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*connection), nil
}
