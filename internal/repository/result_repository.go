package repository

import (
	"context"
	"fmt"
	"log/slog"

	"ozzus/robot-agent/internal/domain"
)

type ResultRepository interface {
	SendResult(ctx context.Context, result domain.CheckResult) error
	SendLog(ctx context.Context, logEntry domain.LogEntry) error
}

// EventPublisher is the producer side of a topic.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
	Topic() string
}

type KafkaResultRepository struct {
	resultsProducer EventPublisher
	logsProducer    EventPublisher
	log             *slog.Logger
}

func NewKafkaResultRepository(resultsProducer, logsProducer EventPublisher, log *slog.Logger) *KafkaResultRepository {
	return &KafkaResultRepository{
		resultsProducer: resultsProducer,
		logsProducer:    logsProducer,
		log:             log.With("repository", "results"),
	}
}

// SendResult publishes a check result keyed by the robot so that results
// for one robot stay ordered.
func (r *KafkaResultRepository) SendResult(ctx context.Context, result domain.CheckResult) error {
	key := resultKey(result)
	if err := r.resultsProducer.PublishEvent(ctx, key, result); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	r.log.Debug("sent result",
		"task_id", result.TaskID,
		"status", result.Status,
		"topic", r.resultsProducer.Topic())
	return nil
}

func (r *KafkaResultRepository) SendLog(ctx context.Context, logEntry domain.LogEntry) error {
	key := fmt.Sprintf("%s-%d", logEntry.TaskID, logEntry.Timestamp.UnixNano())
	if err := r.logsProducer.PublishEvent(ctx, key, logEntry); err != nil {
		return fmt.Errorf("failed to publish log: %w", err)
	}

	r.log.Debug("sent log", "task_id", logEntry.TaskID, "topic", r.logsProducer.Topic())
	return nil
}

func resultKey(result domain.CheckResult) string {
	switch {
	case result.Robot.MasterURI != "":
		return result.Robot.MasterURI
	case result.Robot.ControlURI != "":
		return result.Robot.ControlURI
	}
	return result.TaskID
}
