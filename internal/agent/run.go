package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// Backoff returns the wait after a failed attempt (1-based): base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

// submitAndAwaitReply runs the submit/poll/retry cycle and always produces a
// reply. The returned thread id is the one the reply belongs to.
func (s *Service) submitAndAwaitReply(ctx context.Context, conn *connection, message, threadID string) (reply, resolvedThreadID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing chat message",
				"panic", r,
				"thread_id", resolvedThreadID,
				"stack", string(debug.Stack()),
			)
			reply = TechnicalReply
			if resolvedThreadID == "" {
				resolvedThreadID = newThreadID()
			}
		}
	}()

	resolvedThreadID = s.resolveThread(ctx, conn, threadID)
	logger := s.logger.With("thread_id", resolvedThreadID)

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		text, err := s.runAttempt(ctx, conn, &resolvedThreadID, message)
		if err == nil {
			if attempt > 1 {
				logger.Info("Agent reply received after retry", "attempt", attempt)
			}
			return text, resolvedThreadID
		}

		logger.Warn("Agent attempt failed",
			"attempt", attempt,
			"max_attempts", s.opts.MaxAttempts,
			"error", err,
		)
		if ctx.Err() != nil {
			logger.Error("Chat request cancelled while waiting for agent", "error", ctx.Err())
			return TechnicalReply, s.ensureThreadID(resolvedThreadID)
		}
		if attempt == s.opts.MaxAttempts {
			break
		}

		delay := Backoff(s.opts.BaseBackoff, attempt)
		logger.Info("Retrying agent request", "next_attempt", attempt+1, "delay", delay)
		if err := s.opts.Sleep(ctx, delay); err != nil {
			logger.Error("Chat request cancelled during backoff", "error", err)
			return TechnicalReply, s.ensureThreadID(resolvedThreadID)
		}
	}

	logger.Error("Agent did not produce a reply, giving up", "attempts", s.opts.MaxAttempts)
	return ApologyReply, s.ensureThreadID(resolvedThreadID)
}

// resolveThread reuses threadID when it still exists and otherwise creates a
// new thread. An empty result means creation failed and is retried per attempt.
func (s *Service) resolveThread(ctx context.Context, conn *connection, threadID string) string {
	if threadID != "" {
		_, err := conn.backend.GetThread(ctx, threadID)
		if err == nil {
			return threadID
		}
		if errdefs.IsNotFound(err) {
			s.logger.Info("Supplied thread no longer exists, creating a new one", "thread_id", threadID)
		} else {
			s.logger.Warn("Failed to retrieve thread, creating a new one", "thread_id", threadID, "error", err)
		}
	}

	th, err := conn.backend.CreateThread(ctx)
	if err != nil {
		s.logger.Warn("Failed to create thread", "error", err)
		return ""
	}
	s.logger.Info("Thread created", "thread_id", th.ID)
	return th.ID
}

func (s *Service) ensureThreadID(threadID string) string {
	if threadID != "" {
		return threadID
	}
	return newThreadID()
}

// runAttempt appends the message, starts a run and waits for it.
func (s *Service) runAttempt(ctx context.Context, conn *connection, threadID *string, message string) (string, error) {
	if *threadID == "" {
		th, err := conn.backend.CreateThread(ctx)
		if err != nil {
			return "", fmt.Errorf("create thread: %w", err)
		}
		*threadID = th.ID
	}

	if _, err := conn.backend.CreateMessage(ctx, *threadID, foundry.RoleUser, message); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	run, err := conn.backend.CreateRun(ctx, *threadID, s.settings.AgentID)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	runCreatedAt := run.CreatedAt
	if runCreatedAt.IsZero() {
		runCreatedAt = s.opts.Now().UTC().Truncate(time.Second)
	}

	logger := s.logger.With("thread_id", *threadID, "run_id", run.ID)
	logger.Info("[RUN] created", "status", run.Status)

	run, polls, err := s.awaitRun(ctx, conn, *threadID, run, logger)
	if err != nil {
		return "", err
	}

	switch {
	case isCompleted(run.Status):
		msgs, err := conn.backend.ListMessages(ctx, *threadID)
		if err != nil {
			return "", fmt.Errorf("list messages: %w", err)
		}
		reply, found := extractReply(msgs, runCreatedAt)
		if !found {
			logger.Warn("Run completed without a new assistant message", "run_created_at", runCreatedAt)
		}
		return reply, nil
	case isFailed(run.Status):
		runErr := &RunError{RunID: run.ID}
		if run.LastError != nil {
			runErr.Code = run.LastError.Code
			runErr.Message = run.LastError.Message
		}
		return "", runErr
	default:
		return "", &RunIncompleteError{RunID: run.ID, Status: run.Status, Polls: polls}
	}
}

// awaitRun polls until the run leaves the running states or MaxPolls is hit.
// Only status transitions are logged.
func (s *Service) awaitRun(ctx context.Context, conn *connection, threadID string, run foundry.Run, logger *slog.Logger) (foundry.Run, int, error) {
	polls := 0
	last := run.Status
	for IsRunning(run.Status) && polls < s.opts.MaxPolls {
		if err := s.opts.Sleep(ctx, s.opts.PollInterval); err != nil {
			return run, polls, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		polls++

		next, err := conn.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return run, polls, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		if next.ID == "" {
			next.ID = run.ID
		}
		run = next

		if run.Status != last {
			logger.Info("[RUN] status changed", "from", last, "to", run.Status, "poll", polls)
			last = run.Status
		}
	}

	if IsRunning(run.Status) {
		logger.Warn("[RUN] poll limit reached", "status", run.Status, "polls", polls)
	} else if !isKnownStatus(run.Status) {
		logger.Warn("[RUN] unrecognized status treated as terminal", "status", run.Status)
	}
	return run, polls, nil
}
