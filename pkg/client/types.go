package client

import "time"

// Status mirrors GET /status.
type Status struct {
	State            string    `json:"state"`
	MemoryAllocation string    `json:"memoryAllocation"`
	Players          []string  `json:"players"`
	PID              int       `json:"pid,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitzero"`
}

// StopResult mirrors POST /stop. Outcome is clean, timed_out or not_running.
type StopResult struct {
	Outcome string        `json:"outcome"`
	Elapsed time.Duration `json:"elapsed"`
}

type WhitelistEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Sample is one resource reading of the server process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Resources struct {
	Latest  *Sample  `json:"latest"`
	History []Sample `json:"history"`
}

type HistoryEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	State      string    `json:"state,omitempty"`
	Player     string    `json:"player,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// InstallRequest is the body of POST /install.
type InstallRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
