package domain

import "time"

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	AgentID   string       `json:"agent_id"`
	Message   string       `json:"message,omitempty"`
}

// AgentStatus is the snapshot served on /status.
type AgentStatus struct {
	AgentID        string     `json:"agent_id"`
	Running        bool       `json:"is_running"`
	PollInterval   string     `json:"poll_interval"`
	Checkers       []TaskType `json:"checkers"`
	AllowEviction  bool       `json:"allow_eviction"`
	Processed      int64      `json:"processed"`
	Failed         int64      `json:"failed"`
	CurrentTaskID  string     `json:"current_task_id,omitempty"`
	LastResultTime time.Time  `json:"last_result_time,omitempty"`
}
