package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultTimeout bounds a single HTTP call to the agent service.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 10 << 20

	// messageListLimit is how many of the newest messages ListMessages fetches.
	messageListLimit = 50
)

// ClientConfig holds configuration for the agent service client.
type ClientConfig struct {
	Endpoint   string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the agent service REST API.
type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client
	tokens     TokenProvider
	logger     *slog.Logger
}

// NewClient creates a client. No network I/O happens until the first call.
func NewClient(cfg ClientConfig, tokens TokenProvider, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		return nil, fmt.Errorf("foundry client: token provider is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("foundry client: invalid endpoint %q", cfg.Endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiVersion: cfg.APIVersion,
		http:       httpClient,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// CreateThread starts an empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	res, err := c.do(ctx, "create thread", http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return Thread{}, err
	}
	return decodeThread(res), nil
}

// GetThread fetches a thread by id.
func (c *Client) GetThread(ctx context.Context, threadID string) (Thread, error) {
	res, err := c.do(ctx, "get thread", http.MethodGet, "/threads/"+url.PathEscape(threadID), nil)
	if err != nil {
		return Thread{}, err
	}
	return decodeThread(res), nil
}

// CreateMessage appends a text message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (Message, error) {
	res, err := c.do(ctx, "create message", http.MethodPost,
		"/threads/"+url.PathEscape(threadID)+"/messages",
		map[string]any{"role": role, "content": content})
	if err != nil {
		return Message{}, err
	}
	return decodeMessage(res), nil
}

// CreateRun starts the agent on the thread's current history.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (Run, error) {
	res, err := c.do(ctx, "create run", http.MethodPost,
		"/threads/"+url.PathEscape(threadID)+"/runs",
		map[string]any{"assistant_id": agentID})
	if err != nil {
		return Run{}, err
	}
	return decodeRun(res), nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	res, err := c.do(ctx, "get run", http.MethodGet,
		"/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return Run{}, err
	}
	return decodeRun(res), nil
}

// ListMessages returns the newest messages of a thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	path := fmt.Sprintf("/threads/%s/messages?order=desc&limit=%d", url.PathEscape(threadID), messageListLimit)
	res, err := c.do(ctx, "list messages", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	res.Get("data").ForEach(func(_, m gjson.Result) bool {
		msgs = append(msgs, decodeMessage(m))
		return true
	})
	return msgs, nil
}

// GetAgent fetches agent metadata by id.
func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	res, err := c.do(ctx, "get agent", http.MethodGet, "/assistants/"+url.PathEscape(agentID), nil)
	if err != nil {
		return Agent{}, err
	}
	return decodeAgent(res), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("foundry %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("foundry %s: build request: %w", op, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("foundry %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("foundry %s: %w", op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "op", op, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("foundry %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, newAPIError(op, resp.StatusCode, data)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("foundry %s: response is not valid JSON", op)
	}
	return gjson.ParseBytes(data), nil
}

func (c *Client) endpoint(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.baseURL + path + sep + "api-version=" + url.QueryEscape(c.apiVersion)
}
