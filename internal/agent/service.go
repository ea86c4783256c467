package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Version is reported by the health check.
const Version = "1.0.0"

// DefaultAgentName is shown when neither configuration nor the agent
// metadata provide a name.
const DefaultAgentName = "AI Assistant"

// Polling and retry bounds.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxPolls     = 240 // ~120s at DefaultPollInterval
	DefaultMaxAttempts  = 3
	DefaultBaseBackoff  = time.Second
)

// Settings identifies the agent the service talks to.
type Settings struct {
	Endpoint      string
	AgentID       string
	AgentName     string
	WorkspaceName string
	Environment   string
}

// Options tunes timing. Zero values take the defaults; tests inject Sleep and
// Now to run the state machine without wall-clock waits.
type Options struct {
	PollInterval time.Duration
	MaxPolls     int
	MaxAttempts  int
	BaseBackoff  time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
	Now          func() time.Time
	LookupEnv    func(string) (string, bool)
	Simulator    *Simulator
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = DefaultMaxPolls
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service provides chat against the remote agent, falling back to simulated
// replies when the agent cannot be reached.
type Service struct {
	settings Settings
	connect  ConnectFunc
	opts     Options
	logger   *slog.Logger
	sim      *Simulator

	conn      atomic.Pointer[connection]
	initGroup singleflight.Group
}

// NewService creates a service. connect is not called until the first request.
func NewService(settings Settings, connect ConnectFunc, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	sim := opts.Simulator
	if sim == nil {
		sim = NewSimulator(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), opts.Sleep, logger)
	}
	return &Service{
		settings: settings,
		connect:  connect,
		opts:     opts,
		logger:   logger,
		sim:      sim,
	}
}

// AgentName returns the configured display name, or the name reported by the
// agent service when none is configured.
func (s *Service) AgentName() string {
	if s.settings.AgentName != "" {
		return s.settings.AgentName
	}
	if c := s.conn.Load(); c != nil && c.agent.Name != "" {
		return c.agent.Name
	}
	return DefaultAgentName
}

// Chat relays a message and returns the agent's reply. The only error it
// returns is ErrMessageRequired; every backend failure becomes a reply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (resp ChatResponse, err error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResponse{}, ErrMessageRequired
	}
	threadID := ""
	if req.ThreadID != nil {
		threadID = strings.TrimSpace(*req.ThreadID)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling chat message",
				"panic", r,
				"thread_id", threadID,
				"stack", string(debug.Stack()),
			)
			resp = ChatResponse{
				ThreadID:  s.ensureThreadID(threadID),
				Message:   TechnicalReply,
				AgentName: s.AgentName(),
				Timestamp: s.opts.Now().UTC(),
			}
			err = nil
		}
	}()

	var reply string
	simulated := false
	conn, connErr := s.client(ctx)
	if connErr != nil {
		s.logger.Warn("[SIMULATION] agent backend unavailable, using simulated reply",
			"error", connErr,
			"thread_id", threadID,
		)
		reply, threadID = s.sim.Reply(ctx, message, threadID, s.AgentName())
		simulated = true
	} else {
		reply, threadID = s.submitAndAwaitReply(ctx, conn, message, threadID)
	}

	return ChatResponse{
		ThreadID:  threadID,
		Message:   reply,
		AgentName: s.AgentName(),
		Timestamp: s.opts.Now().UTC(),
		Simulated: simulated,
	}, nil
}

// CreateThread creates a thread on the agent service, or returns a generated
// id when the service is unreachable.
func (s *Service) CreateThread(ctx context.Context) string {
	conn, err := s.client(ctx)
	if err != nil {
		id := newThreadID()
		s.logger.Warn("[SIMULATION] agent backend unavailable, generated thread id", "thread_id", id, "error", err)
		return id
	}
	th, err := conn.backend.CreateThread(ctx)
	if err != nil || th.ID == "" {
		id := newThreadID()
		s.logger.Warn("create thread failed, generated thread id", "thread_id", id, "error", err)
		return id
	}
	s.logger.Info("Thread created", "thread_id", th.ID)
	return th.ID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
