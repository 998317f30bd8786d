package supervisor

import "time"

// State is the single process-wide lifecycle value. Only the supervisor's run
// loop mutates it; everything else reads snapshots.
type State int32

const (
	StateOffline State = iota
	StateStarting
	StateOnline
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateStarting:
		return "starting"
	case StateOnline:
		return "online"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the supervised server.
type Status struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Ready         bool      `json:"ready"`
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Restarts      int       `json:"restarts"`
	RSSBytes      uint64    `json:"rss_bytes,omitempty"`
}
