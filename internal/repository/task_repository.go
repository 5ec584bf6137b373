package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
	repokafka "ozzus/robot-agent/internal/repository/kafka"
)

type TaskRepository interface {
	FetchTasks(ctx context.Context) ([]domain.Task, error)
	AckTask(ctx context.Context, taskID string) error
	NackTask(taskID string)
}

// EventReader is the consumer side of the task topic.
type EventReader interface {
	ReadEvent(ctx context.Context, v any) (kafkago.Message, error)
	CommitMessage(ctx context.Context, msg kafkago.Message) error
}

const (
	defaultBatchSize    = 100
	defaultFetchTimeout = 5 * time.Second
	commitRetries       = 3
)

type KafkaTaskRepository struct {
	consumer     EventReader
	batchSize    int
	fetchTimeout time.Duration
	log          *slog.Logger

	mu       sync.Mutex
	messages map[string]kafkago.Message
}

func NewKafkaTaskRepository(consumer EventReader, log *slog.Logger) *KafkaTaskRepository {
	return &KafkaTaskRepository{
		consumer:     consumer,
		batchSize:    defaultBatchSize,
		fetchTimeout: defaultFetchTimeout,
		log:          log.With("repository", "tasks"),
		messages:     make(map[string]kafkago.Message),
	}
}

// FetchTasks collects up to one batch of tasks, waiting at most the fetch
// timeout. Malformed and invalid tasks are committed and dropped.
func (r *KafkaTaskRepository) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task

	timeoutCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	for len(tasks) < r.batchSize {
		var task domain.Task
		msg, err := r.consumer.ReadEvent(timeoutCtx, &task)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			if errors.Is(err, repokafka.ErrMalformedMessage) {
				r.drop(ctx, msg, err)
				continue
			}
			return tasks, fmt.Errorf("failed to read event: %w", err)
		}

		if err := task.Validate(); err != nil {
			r.drop(ctx, msg, err)
			continue
		}

		r.mu.Lock()
		r.messages[task.ID] = msg
		r.mu.Unlock()

		tasks = append(tasks, task)
	}

	return tasks, nil
}

func (r *KafkaTaskRepository) drop(ctx context.Context, msg kafkago.Message, reason error) {
	r.log.Warn("dropping task message", "offset", msg.Offset, sl.Err(reason))
	if err := r.consumer.CommitMessage(ctx, msg); err != nil {
		r.log.Error("failed to commit dropped message", "offset", msg.Offset, sl.Err(err))
	}
}

// AckTask commits the message a task came from, retrying briefly.
func (r *KafkaTaskRepository) AckTask(ctx context.Context, taskID string) error {
	r.mu.Lock()
	msg, ok := r.messages[taskID]
	r.mu.Unlock()

	if !ok {
		return nil
	}

	var lastErr error

	for attempt := 0; attempt < commitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		commitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.consumer.CommitMessage(commitCtx, msg)
		cancel()

		if err == nil {
			r.mu.Lock()
			delete(r.messages, taskID)
			r.mu.Unlock()
			return nil
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}

	return fmt.Errorf("failed to commit message: %w", lastErr)
}

// NackTask forgets a task without committing it so it is redelivered.
func (r *KafkaTaskRepository) NackTask(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, taskID)
}
