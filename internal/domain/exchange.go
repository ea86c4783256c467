// Package domain contains core domain types for the chat proxy.
package domain

import (
	"time"
)

// Exchange is one user message and the reply it received.
type Exchange struct {
	ID          int64     `json:"id"`
	ThreadID    string    `json:"threadId"`
	UserMessage string    `json:"userMessage"`
	Reply       string    `json:"reply"`
	AgentName   string    `json:"agentName"`
	Simulated   bool      `json:"simulated"`
	CreatedAt   time.Time `json:"createdAt"`
}
