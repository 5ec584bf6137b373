package domain

import "time"

type CheckStatus string

const (
	StatusSuccess   CheckStatus = "success"
	StatusFailed    CheckStatus = "failed"
	StatusCancelled CheckStatus = "cancelled"
)

type CheckResult struct {
	TaskID      string            `json:"task_id"`
	AgentID     string            `json:"agent_id"`
	Type        TaskType          `json:"type"`
	Robot       RobotID           `json:"robot"`
	Status      CheckStatus       `json:"status"`
	Duration    int64             `json:"duration"`
	FailureKind string            `json:"failure_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Description *RobotDescription `json:"description,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
