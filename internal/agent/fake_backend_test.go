package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// fakeBackend is an in-memory agent service. Each run walks through a script
// of statuses, one per GetRun; when it first reports completed, reply (if set)
// is appended to the thread as an assistant message.
type fakeBackend struct {
	mu sync.Mutex

	now      time.Time
	threads  map[string]bool
	messages map[string][]foundry.Message
	runs     map[string]*fakeRun

	scripts  [][]string // per CreateRun call; the last script repeats
	reply    func(run int, userMessage string) string
	panicOn  string
	agent    foundry.Agent
	agentErr error

	createThreadCalls  int
	createMessageCalls int
	createRunCalls     int
	getRunCalls        map[string]int
}

type fakeRun struct {
	id       string
	index    int
	threadID string
	script   []string
	pos      int
	created  time.Time
	lastUser string
	replied  bool
}

func newFakeBackend(scripts ...[]string) *fakeBackend {
	return &fakeBackend{
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		threads:     map[string]bool{},
		messages:    map[string][]foundry.Message{},
		runs:        map[string]*fakeRun{},
		scripts:     scripts,
		agent:       foundry.Agent{ID: "asst_1", Name: "Backend Agent"},
		getRunCalls: map[string]int{},
		reply: func(run int, msg string) string {
			return fmt.Sprintf("reply %d to %s", run, msg)
		},
	}
}

func (f *fakeBackend) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeBackend) CreateThread(context.Context) (foundry.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createThreadCalls++
	id := fmt.Sprintf("thread_%d", f.createThreadCalls)
	f.threads[id] = true
	return foundry.Thread{ID: id, CreatedAt: f.tick()}, nil
}

func (f *fakeBackend) GetThread(_ context.Context, threadID string) (foundry.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.threads[threadID] {
		return foundry.Thread{}, &foundry.APIError{Status: http.StatusNotFound, Op: "get thread", Message: "no thread"}
	}
	return foundry.Thread{ID: threadID}, nil
}

func (f *fakeBackend) CreateMessage(_ context.Context, threadID, role, content string) (foundry.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "CreateMessage" {
		panic("boom")
	}
	f.createMessageCalls++
	m := foundry.Message{
		ID:        fmt.Sprintf("msg_%d", f.createMessageCalls),
		ThreadID:  threadID,
		Role:      role,
		CreatedAt: f.tick(),
		Content:   []foundry.ContentItem{foundry.TextContent{Value: content}},
	}
	f.messages[threadID] = append(f.messages[threadID], m)
	return m, nil
}

func (f *fakeBackend) CreateRun(_ context.Context, threadID, _ string) (foundry.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.createRunCalls
	f.createRunCalls++

	script := []string{StatusCompleted}
	if len(f.scripts) > 0 {
		script = f.scripts[min(idx, len(f.scripts)-1)]
	}
	lastUser := ""
	if msgs := f.messages[threadID]; len(msgs) > 0 {
		lastUser = msgs[len(msgs)-1].Content[0].String()
	}
	r := &fakeRun{
		id:       fmt.Sprintf("run_%d", idx+1),
		index:    idx + 1,
		threadID: threadID,
		script:   script,
		created:  f.tick(),
		lastUser: lastUser,
	}
	f.runs[r.id] = r
	return foundry.Run{ID: r.id, ThreadID: threadID, Status: StatusQueued, CreatedAt: r.created}, nil
}

func (f *fakeBackend) GetRun(_ context.Context, threadID, runID string) (foundry.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRunCalls[runID]++
	r, ok := f.runs[runID]
	if !ok {
		return foundry.Run{}, &foundry.APIError{Status: http.StatusNotFound, Op: "get run"}
	}
	status := r.script[min(r.pos, len(r.script)-1)]
	r.pos++

	run := foundry.Run{ID: r.id, ThreadID: threadID, Status: status, CreatedAt: r.created}
	switch normalizeStatus(status) {
	case StatusCompleted:
		if !r.replied && f.reply != nil {
			r.replied = true
			if text := f.reply(r.index, r.lastUser); text != "" {
				f.messages[threadID] = append(f.messages[threadID], foundry.Message{
					ID:        "msg_reply_" + r.id,
					ThreadID:  threadID,
					Role:      foundry.RoleAssistant,
					CreatedAt: f.tick(),
					Content:   []foundry.ContentItem{foundry.TextContent{Value: text}},
				})
			}
		}
	case StatusFailed:
		run.LastError = &foundry.RunError{Code: "server_error", Message: "model overloaded"}
	}
	return run, nil
}

func (f *fakeBackend) ListMessages(_ context.Context, threadID string) ([]foundry.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[threadID]
	out := make([]foundry.Message, len(msgs))
	for i := range msgs {
		out[len(msgs)-1-i] = msgs[i]
	}
	return out, nil
}

func (f *fakeBackend) GetAgent(context.Context, string) (foundry.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "GetAgent" {
		panic("agent lookup blew up")
	}
	if f.agentErr != nil {
		return foundry.Agent{}, f.agentErr
	}
	return f.agent, nil
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) durations(filter func(time.Duration) bool) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, d := range s.calls {
		if filter(d) {
			out = append(out, d)
		}
	}
	return out
}

func newTestService(t interface{ Helper() }, backend Backend, sleeper *sleepRecorder) *Service {
	t.Helper()
	return NewService(
		Settings{Endpoint: "https://foundry.test", AgentID: "asst_1", AgentName: "Helper", Environment: "Test"},
		func(context.Context) (Backend, error) { return backend, nil },
		Options{Sleep: sleeper.Sleep, LookupEnv: func(string) (string, bool) { return "", false }},
		nil,
	)
}

func ptr[T any](v T) *T { return &v }
