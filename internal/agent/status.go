package agent

import "strings"

// Run statuses as reported by the agent service. Casing and separators vary
// between API versions, so compare through normalizeStatus.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

var runningStatuses = map[string]bool{
	"queued":      true,
	"inprogress":  true,
	"in_progress": true,
	"running":     true,
}

var knownTerminalStatuses = map[string]bool{
	"completed":       true,
	"failed":          true,
	"cancelled":       true,
	"canceled":        true,
	"cancelling":      true,
	"expired":         true,
	"incomplete":      true,
	"requires_action": true,
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsRunning reports whether a run with this status is still being worked on.
// Everything not recognized as running is terminal, so polling always ends.
func IsRunning(status string) bool {
	return runningStatuses[normalizeStatus(status)]
}

func isCompleted(status string) bool {
	return normalizeStatus(status) == StatusCompleted
}

func isFailed(status string) bool {
	return normalizeStatus(status) == StatusFailed
}

func isKnownStatus(status string) bool {
	s := normalizeStatus(status)
	return runningStatuses[s] || knownTerminalStatuses[s]
}
