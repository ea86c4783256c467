package agent

import (
	"strings"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// extractReply picks the newest assistant message created at or after
// runCreatedAt and returns its text. Messages older than the run belong to an
// earlier run on the same thread and are never returned. found is false when
// NoResponseReply was substituted.
func extractReply(msgs []foundry.Message, runCreatedAt time.Time) (reply string, found bool) {
	var newest *foundry.Message
	for i := range msgs {
		m := &msgs[i]
		if !strings.EqualFold(m.Role, foundry.RoleAssistant) || m.CreatedAt.Before(runCreatedAt) {
			continue
		}
		if newest == nil || m.CreatedAt.After(newest.CreatedAt) {
			newest = m
		}
	}
	if newest == nil {
		return NoResponseReply, false
	}

	text := messageText(newest.Content)
	if strings.TrimSpace(text) == "" {
		return NoResponseReply, false
	}
	return text, true
}

// messageText joins the text items of a message. Without any text item it
// falls back to the string form of the first non-empty item.
func messageText(items []foundry.ContentItem) string {
	var parts []string
	for _, item := range items {
		if t, ok := item.(foundry.TextContent); ok && t.Value != "" {
			parts = append(parts, t.Value)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		if s := item.String(); s != "" {
			return s
		}
	}
	return ""
}
