package domain

import (
	"errors"
	"fmt"
	"time"
)

// тип задачи для проверки

type TaskType string

const (
	TaskTypeMaster  TaskType = "master"
	TaskTypeControl TaskType = "control"
	TaskTypePing    TaskType = "ping"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeMaster, TaskTypeControl, TaskTypePing:
		return true
	}
	return false
}

type Task struct {
	ID    string   `json:"task_id"`
	Type  TaskType `json:"type"`
	Robot RobotID  `json:"robot"`
	// AllowEviction overrides the agent default for control tasks.
	AllowEviction *bool     `json:"allow_eviction,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

var ErrInvalidTask = errors.New("invalid task")

func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing task_id", ErrInvalidTask)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTask, t.Type)
	}
	return nil
}
