// Package foundry is a client for the Azure AI Foundry agent service, an
// assistants-style REST API built around threads, messages and runs.
package foundry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a conversation context owned by the agent service.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Agent is the metadata of a configured agent.
type Agent struct {
	ID    string
	Name  string
	Model string
}

// RunError is the error descriptor attached to a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run is one invocation of an agent against a thread.
type Run struct {
	ID        string
	ThreadID  string
	Status    string
	CreatedAt time.Time
	LastError *RunError
}

// Message is an entry in a thread's history.
type Message struct {
	ID        string
	ThreadID  string
	Role      string
	CreatedAt time.Time
	Content   []ContentItem
}

// ContentItem is one typed payload of a message. Known kinds are TextContent;
// everything else decodes to OtherContent.
type ContentItem interface {
	Kind() string
	fmt.Stringer
}

// TextContent is a plain-text content item.
type TextContent struct {
	Value string
}

// Kind implements ContentItem.
func (TextContent) Kind() string { return "text" }

func (t TextContent) String() string { return t.Value }

// OtherContent holds a content item of a kind this client does not model
// (images, file citations, ...). Raw is the item's original JSON.
type OtherContent struct {
	Type string
	Raw  json.RawMessage
}

// Kind implements ContentItem.
func (o OtherContent) Kind() string { return o.Type }

func (o OtherContent) String() string { return string(o.Raw) }

// decodeContentItem discriminates on the item's "type" field. The service has
// been seen to send text either as {"text":{"value":...}} or {"text":"..."}.
func decodeContentItem(raw gjson.Result) ContentItem {
	kind := raw.Get("type").String()
	if kind == "text" {
		text := raw.Get("text")
		switch {
		case text.IsObject():
			return TextContent{Value: text.Get("value").String()}
		case text.Type == gjson.String:
			return TextContent{Value: text.Str}
		}
	}
	if raw.Type == gjson.String {
		return TextContent{Value: raw.Str}
	}
	return OtherContent{Type: kind, Raw: json.RawMessage(raw.Raw)}
}

func decodeContent(raw gjson.Result) []ContentItem {
	if raw.Type == gjson.String {
		return []ContentItem{TextContent{Value: raw.Str}}
	}
	var items []ContentItem
	raw.ForEach(func(_, item gjson.Result) bool {
		items = append(items, decodeContentItem(item))
		return true
	})
	return items
}

func decodeMessage(raw gjson.Result) Message {
	return Message{
		ID:        raw.Get("id").String(),
		ThreadID:  raw.Get("thread_id").String(),
		Role:      raw.Get("role").String(),
		CreatedAt: unixTime(raw.Get("created_at")),
		Content:   decodeContent(raw.Get("content")),
	}
}

func decodeRun(raw gjson.Result) Run {
	run := Run{
		ID:        raw.Get("id").String(),
		ThreadID:  raw.Get("thread_id").String(),
		Status:    raw.Get("status").String(),
		CreatedAt: unixTime(raw.Get("created_at")),
	}
	if le := raw.Get("last_error"); le.IsObject() {
		run.LastError = &RunError{
			Code:    le.Get("code").String(),
			Message: le.Get("message").String(),
		}
	}
	return run
}

func decodeThread(raw gjson.Result) Thread {
	return Thread{
		ID:        raw.Get("id").String(),
		CreatedAt: unixTime(raw.Get("created_at")),
	}
}

func decodeAgent(raw gjson.Result) Agent {
	return Agent{
		ID:    raw.Get("id").String(),
		Name:  raw.Get("name").String(),
		Model: raw.Get("model").String(),
	}
}

// unixTime accepts epoch seconds or an RFC 3339 string.
func unixTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		if v.Int() == 0 {
			return time.Time{}
		}
		return time.Unix(v.Int(), 0).UTC()
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, v.Str); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
