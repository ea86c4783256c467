package foundry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{Endpoint: srv.URL + "/api/projects/p1/", APIVersion: "2025-05-01"}, StaticToken("tok"), nil)
	require.NoError(t, err)
	return c
}

func TestClientSendsAuthAndAPIVersion(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"id":"thread_1","created_at":1700000000}`)
	})

	th, err := c.CreateThread(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "thread_1", th.ID)
	assert.Equal(t, int64(1700000000), th.CreatedAt.Unix())
	assert.Equal(t, "/api/projects/p1/threads", gotPath)
	assert.Equal(t, "api-version=2025-05-01", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestClientCreateMessageBody(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"id":"msg_1","role":"user","created_at":1,"content":[{"type":"text","text":{"value":"hi"}}]}`)
	})

	msg, err := c.CreateMessage(context.Background(), "thread_1", RoleUser, "hi")
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, body)
	assert.Equal(t, "msg_1", msg.ID)
}

func TestClientGetRunDecodesLastError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p1/threads/thread_1/runs/run_1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"run_1","thread_id":"thread_1","status":"failed","created_at":1700000005,
			"last_error":{"code":"rate_limit_exceeded","message":"slow down"}}`)
	})

	run, err := c.GetRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	require.NotNil(t, run.LastError)
	assert.Equal(t, "rate_limit_exceeded", run.LastError.Code)
	assert.Equal(t, "slow down", run.LastError.Message)
}

func TestClientListMessagesPolymorphicContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "2025-05-01", r.URL.Query().Get("api-version"))
		_, _ = io.WriteString(w, `{"data":[
			{"id":"m2","role":"assistant","created_at":20,"content":[
				{"type":"image_file","image_file":{"file_id":"f1"}},
				{"type":"text","text":{"value":"answer","annotations":[]}}
			]},
			{"id":"m1","role":"user","created_at":10,"content":[{"type":"text","text":"question"}]}
		]}`)
	})

	msgs, err := c.ListMessages(context.Background(), "thread_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Len(t, msgs[0].Content, 2)
	other, ok := msgs[0].Content[0].(OtherContent)
	require.True(t, ok)
	assert.Equal(t, "image_file", other.Kind())
	assert.Contains(t, other.String(), "f1")
	assert.Equal(t, TextContent{Value: "answer"}, msgs[0].Content[1])

	assert.Equal(t, TextContent{Value: "question"}, msgs[1].Content[0])
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestClientNotFoundIsClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"not_found","message":"No thread found with id 'nope'."}}`)
	})

	_, err := c.GetThread(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "get thread")
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream exploded")
	})

	_, err := c.GetAgent(context.Background(), "asst_1")
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestClientRejectsInvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	})

	_, err := c.GetAgent(context.Background(), "asst_1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not valid JSON"))
}

func TestNewClientValidatesInput(t *testing.T) {
	_, err := NewClient(ClientConfig{Endpoint: "::bad"}, StaticToken("x"), nil)
	require.Error(t, err)

	_, err = NewClient(ClientConfig{Endpoint: "https://example.com"}, nil, nil)
	require.Error(t, err)
}
