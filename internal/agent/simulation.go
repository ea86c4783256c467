package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Simulated latency bounds.
const (
	simMinDelay = 500 * time.Millisecond
	simMaxDelay = 1500 * time.Millisecond
)

type cannedReply struct {
	keywords []string
	reply    string // may contain one %s for the agent name
}

// cannedReplies are checked in order; the first rule with a matching word wins.
var cannedReplies = []cannedReply{
	{
		keywords: []string{"hello", "hi", "hey", "greetings"},
		reply:    "Hello! I'm %s. I'm running in offline mode right now, but I'm happy to chat. What can I help you with?",
	},
	{
		keywords: []string{"help", "support", "assist"},
		reply:    "I can answer questions, explain concepts and help you think through problems. %s is currently in offline mode, so answers are limited until the agent service is reachable again.",
	},
	{
		keywords: []string{"azure", "foundry", "deploy", "deployment", "bicep"},
		reply:    "This chat is backed by an Azure AI Foundry agent. %s can't reach it at the moment; check the endpoint, agent id and identity permissions, then try again.",
	},
	{
		keywords: []string{"weather", "forecast"},
		reply:    "I don't have live data while in offline mode, so I can't check the weather. %s will be able to help once the agent service is back.",
	},
	{
		keywords: []string{"thanks", "thank", "cheers"},
		reply:    "You're welcome! Let %s know if there's anything else.",
	},
}

// Simulator produces keyword-triggered canned replies without network calls.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewSimulator creates a simulator. sleep may be nil for real waiting.
func NewSimulator(rng *rand.Rand, sleep func(ctx context.Context, d time.Duration) error, logger *slog.Logger) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
	}
	if sleep == nil {
		sleep = sleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{rng: rng, sleep: sleep, logger: logger}
}

// Reply waits a random 500-1500ms and returns a canned reply plus the thread
// id, generating one when threadID is empty.
func (s *Simulator) Reply(ctx context.Context, message, threadID, agentName string) (string, string) {
	if threadID == "" {
		threadID = newThreadID()
	}
	delay := s.delay()
	if err := s.sleep(ctx, delay); err != nil {
		s.logger.Debug("[SIMULATION] delay interrupted", "error", err)
	}

	reply := simulatedReply(message, agentName)
	s.logger.Info("[SIMULATION] simulated reply generated",
		"thread_id", threadID,
		"delay", delay,
		"reply_length", len(reply),
	)
	return reply, threadID
}

func (s *Simulator) delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	span := int64(simMaxDelay - simMinDelay)
	return simMinDelay + time.Duration(s.rng.Int64N(span+1))
}

func simulatedReply(message, agentName string) string {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	for _, rule := range cannedReplies {
		for _, kw := range rule.keywords {
			if words[kw] {
				return fmt.Sprintf(rule.reply, agentName)
			}
		}
	}

	return fmt.Sprintf("Thanks for your message. %s is in offline mode and can't reach the agent service, so this is a simulated reply. You said: %q", agentName, truncateRunes(message, maxQuotedRunes))
}

// maxQuotedRunes bounds how much of the user's message is echoed back.
const maxQuotedRunes = 200

// truncateRunes cuts s to at most n runes, never inside a multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// newThreadID generates an id shaped like the agent service's thread ids.
func newThreadID() string {
	return "thread_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
