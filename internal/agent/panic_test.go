package agent

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panickingConnector(context.Context) (Backend, error) {
	panic("credential chain blew up")
}

func TestChatFallsBackWhenConnectorPanics(t *testing.T) {
	svc := NewService(Settings{AgentID: "asst_1", AgentName: "Helper"}, panickingConnector,
		Options{Sleep: (&sleepRecorder{}).Sleep}, nil)

	require.NotPanics(t, func() {
		resp, err := svc.Chat(context.Background(), ChatRequest{Message: "hello"})
		require.NoError(t, err)
		assert.True(t, resp.Simulated)
		assert.NotEmpty(t, resp.Message)
		assert.Regexp(t, `^thread_[0-9a-f]{24}$`, resp.ThreadID)
	})
	assert.Nil(t, svc.conn.Load())
}

func TestChatFallsBackWhenConnectorReturnsNilBackend(t *testing.T) {
	svc := NewService(Settings{AgentID: "asst_1"},
		func(context.Context) (Backend, error) { return nil, nil },
		Options{Sleep: (&sleepRecorder{}).Sleep}, nil)

	_, err := svc.client(context.Background())
	require.ErrorIs(t, err, errNilBackend)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Simulated)
}

func TestChatReturnsTechnicalReplyWhenSimulatorPanics(t *testing.T) {
	sim := NewSimulator(nil, func(context.Context, time.Duration) error { panic("sleep blew up") }, nil)
	svc := NewService(Settings{AgentID: "asst_1", AgentName: "Helper"}, nil, Options{Simulator: sim}, nil)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "hello", ThreadID: ptr("thread_keep")})
	require.NoError(t, err)
	assert.Equal(t, TechnicalReply, resp.Message)
	assert.Equal(t, "thread_keep", resp.ThreadID)
	assert.Equal(t, "Helper", resp.AgentName)
	assert.NoError(t, resp.Validate())
}

func TestHealthReportsConnectorPanicAsUnhealthy(t *testing.T) {
	svc := NewService(Settings{AgentID: "asst_1"}, panickingConnector,
		Options{LookupEnv: func(string) (string, bool) { return "", false }}, nil)

	var report HealthReport
	require.NotPanics(t, func() { report = svc.Health(context.Background()) })
	assert.False(t, report.Healthy())
	assert.Equal(t, ConnectionDisconnected, report.ConnectionStatus)
	require.NotNil(t, report.Error)
	assert.Equal(t, "panic", report.Error.Type)
	assert.Contains(t, report.Error.Message, "credential chain blew up")
}

func TestHealthReportsAgentLookupPanicAsUnhealthy(t *testing.T) {
	backend := newFakeBackend()
	svc := newTestService(t, backend, &sleepRecorder{})
	_, err := svc.client(context.Background())
	require.NoError(t, err)

	backend.panicOn = "GetAgent"
	var report HealthReport
	require.NotPanics(t, func() { report = svc.Health(context.Background()) })
	assert.Equal(t, HealthUnhealthy, report.Status)
	require.NotNil(t, report.Error)
	assert.Equal(t, "panic", report.Error.Type)
	assert.Contains(t, report.Error.Message, "agent lookup blew up")
}

func TestAgentNameFallsBackToMetadataThenDefault(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(Settings{AgentID: "asst_1"},
		func(context.Context) (Backend, error) { return backend, nil },
		Options{Sleep: (&sleepRecorder{}).Sleep}, nil)

	assert.Equal(t, DefaultAgentName, svc.AgentName())

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Backend Agent", resp.AgentName)
	assert.Equal(t, "Backend Agent", svc.AgentName())
}

func TestSimulatorLogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sim := NewSimulator(rand.New(rand.NewPCG(1, 2)), (&sleepRecorder{}).Sleep, logger)

	reply, threadID := sim.Reply(context.Background(), "hello", "", "Helper")
	assert.NotEmpty(t, reply)
	assert.Contains(t, buf.String(), "[SIMULATION] simulated reply generated")
	assert.Contains(t, buf.String(), threadID)
}

func TestSimulatedReplyTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("é", 150) + strings.Repeat("日本", 100)
	reply := simulatedReply(long, "Helper")

	assert.True(t, utf8.ValidString(reply))
	assert.NotContains(t, reply, `\x`)
	assert.Contains(t, reply, "...")

	cut := truncateRunes(long, maxQuotedRunes)
	assert.Equal(t, maxQuotedRunes+3, utf8.RuneCountInString(cut))
	assert.Equal(t, "short", truncateRunes("short", maxQuotedRunes))
}
