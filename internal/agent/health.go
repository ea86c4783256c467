package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/foundry"
)

// Health statuses.
const (
	HealthHealthy   = "Healthy"
	HealthUnhealthy = "Unhealthy"

	ConnectionConnected    = "Connected"
	ConnectionDisconnected = "Disconnected"
)

// healthCheckTimeout bounds the agent metadata fetch.
const healthCheckTimeout = 10 * time.Second

// HealthReport is the diagnostic body served by the health endpoint.
type HealthReport struct {
	Status            string        `json:"status"`
	Timestamp         time.Time     `json:"timestamp"`
	Version           string        `json:"version"`
	Environment       string        `json:"environment"`
	AIFoundryEndpoint string        `json:"aiFoundryEndpoint"`
	AgentName         string        `json:"agentName"`
	AgentID           string        `json:"agentId"`
	ConnectionStatus  string        `json:"connectionStatus"`
	Details           HealthDetails `json:"details"`
	Error             *HealthError  `json:"error,omitempty"`
}

// HealthDetails breaks the check into identity and access results.
type HealthDetails struct {
	ManagedIdentity string    `json:"managedIdentity"`
	AIFoundryAccess string    `json:"aiFoundryAccess"`
	LastHealthCheck time.Time `json:"lastHealthCheck"`
}

// HealthError describes what made the check fail.
type HealthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Healthy reports whether the report describes a working backend.
func (r HealthReport) Healthy() bool {
	return r.Status == HealthHealthy
}

// Health checks connectivity, identity and agent access. It never fails; a
// broken backend yields an Unhealthy report.
func (s *Service) Health(ctx context.Context) (result HealthReport) {
	now := s.opts.Now().UTC()
	report := HealthReport{
		Status:            HealthUnhealthy,
		Timestamp:         now,
		Version:           Version,
		Environment:       s.settings.Environment,
		AIFoundryEndpoint: s.settings.Endpoint,
		AgentName:         s.AgentName(),
		AgentID:           s.settings.AgentID,
		ConnectionStatus:  ConnectionDisconnected,
		Details: HealthDetails{
			ManagedIdentity: describeMechanism(foundry.DetectCredentialMechanism(s.opts.LookupEnv)),
			AIFoundryAccess: "Unknown",
			LastHealthCheck: now,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			report.Status = HealthUnhealthy
			result = s.unhealthy(report, "Health check failed", &panicError{value: r})
		}
	}()

	conn, err := s.client(ctx)
	if err != nil {
		return s.unhealthy(report, "Failed to connect", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	agent, err := conn.backend.GetAgent(checkCtx, s.settings.AgentID)
	if err != nil {
		report.ConnectionStatus = ConnectionConnected
		return s.unhealthy(report, "Agent not accessible", err)
	}

	report.Status = HealthHealthy
	report.ConnectionStatus = ConnectionConnected
	report.AgentName = s.AgentName()
	report.Details.AIFoundryAccess = "Accessible"
	if agent.Name != "" {
		report.Details.AIFoundryAccess = fmt.Sprintf("Accessible (agent %q)", agent.Name)
	}
	s.logger.Debug("[HEALTH] agent backend healthy", "agent_id", s.settings.AgentID)
	return report
}

func (s *Service) unhealthy(report HealthReport, access string, err error) HealthReport {
	report.Details.AIFoundryAccess = access
	report.Error = &HealthError{Type: errorType(err), Message: err.Error()}
	s.logger.Warn("[HEALTH] agent backend unhealthy",
		"connection_status", report.ConnectionStatus,
		"error_type", report.Error.Type,
		"error", err,
	)
	return report
}

func describeMechanism(m foundry.CredentialMechanism) string {
	if m == foundry.MechanismManagedIdentity {
		return "Managed identity"
	}
	return "Developer credentials (Azure CLI / azd)"
}

// errorType names the most specific error in the chain, skipping fmt wrappers.
// Recovered panics are reported as "panic".
func errorType(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return "panic"
	}
	name := fmt.Sprintf("%T", err)
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := fmt.Sprintf("%T", e)
		if !strings.HasPrefix(t, "*fmt.") {
			return t
		}
		name = t
	}
	return name
}
