package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch EventType = "launch"
	EventReady  EventType = "ready"
	EventBridge EventType = "bridge_online"
	EventStop   EventType = "stop"
	EventCrash  EventType = "crash"
	EventGiveUp EventType = "restart_given_up"
)

// Record carries the supervisor snapshot attached to an event.
type Record struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	State    string `json:"state"`
	ExitCode int    `json:"exit_code"`
	Restarts int    `json:"restarts"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (audit/analytics systems).
// Implementations must be safe for concurrent use. Send failures are the
// sink's problem to report; the supervisor treats the trail as best-effort.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
