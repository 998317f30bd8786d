package client

import "time"

// APIResponse is the daemon's uniform response envelope. Domain failures come
// back as HTTP 200 with Success=false.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServerStatus mirrors the lifecycle snapshot reported by the daemon.
type ServerStatus struct {
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

// Endpoints carries the player-facing connection addresses.
type Endpoints struct {
	Host        string `json:"host"`
	JavaPort    int    `json:"java_port,omitempty"`
	BedrockPort int    `json:"bedrock_port,omitempty"`
}

// StatusResult is the full payload of GET /status.
type StatusResult struct {
	Success   bool         `json:"success"`
	Server    ServerStatus `json:"server"`
	Endpoints Endpoints    `json:"endpoints"`
}

// CommandRequest is the body for POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}
