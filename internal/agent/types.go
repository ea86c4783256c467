// Package agent relays chat messages to a remote AI agent and waits for its
// asynchronous runs to finish.
package agent

import (
	"errors"
	"fmt"
	"time"
)

// ErrMessageRequired is returned when an inbound chat message has no text.
var ErrMessageRequired = errors.New("message is required")

// Replies used when no agent-generated text is available.
const (
	NoResponseReply = "I processed your message but no response was generated. Please try again."
	ApologyReply    = "I'm sorry, I couldn't get a response from the assistant right now. Please try again in a moment."
	TechnicalReply  = "I'm experiencing technical difficulties at the moment. Please try again later."
)

// ChatRequest is an inbound chat message.
type ChatRequest struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"threadId,omitempty"`
}

// ChatResponse is the reply returned to the caller.
type ChatResponse struct {
	ThreadID  string    `json:"threadId"`
	Message   string    `json:"message"`
	AgentName string    `json:"agentName"`
	Error     *string   `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Simulated marks replies produced without the agent service.
	Simulated bool `json:"-"`
}

// Validate checks that exactly one of Message and Error is populated.
func (r ChatResponse) Validate() error {
	hasReply := r.Message != ""
	hasErr := r.Error != nil && *r.Error != ""
	switch {
	case hasReply && hasErr:
		return errors.New("chat response has both reply and error")
	case !hasReply && !hasErr:
		return errors.New("chat response has neither reply nor error")
	}
	return nil
}

// CreateThreadResponse is returned by the create-thread endpoint.
type CreateThreadResponse struct {
	ThreadID string `json:"threadId"`
}

// RunError reports a run that ended in the failed state.
type RunError struct {
	RunID   string
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("run %s failed [%s]: %s", e.RunID, e.Code, e.Message)
	}
	return fmt.Sprintf("run %s failed: %s", e.RunID, e.Message)
}

// RunIncompleteError reports a run that stopped polling without completing:
// cancelled, an unrecognized terminal status, or still running at the poll cap.
type RunIncompleteError struct {
	RunID  string
	Status string
	Polls  int
}

func (e *RunIncompleteError) Error() string {
	return fmt.Sprintf("run %s did not complete (status %q after %d polls)", e.RunID, e.Status, e.Polls)
}
