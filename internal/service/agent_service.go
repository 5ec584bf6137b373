package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ozzus/robot-agent/internal/checks"
	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
	"ozzus/robot-agent/internal/repository"
)

type Checker interface {
	BeginChecking(robot domain.RobotID) <-chan checks.Result
	StopChecking()
}

var ErrNotRunning = errors.New("service is not running")

type AgentService struct {
	taskRepo     repository.TaskRepository
	resultRepo   repository.ResultRepository
	agentID      string
	pollInterval time.Duration
	log          *slog.Logger

	checkersMu sync.RWMutex
	checkers   map[domain.TaskType]Checker

	running       atomic.Bool
	allowEviction atomic.Bool
	processed     atomic.Int64
	failed        atomic.Int64

	// runMu serializes checks; a robot is acquired by one task at a time.
	runMu sync.Mutex

	mu             sync.RWMutex
	current        *activeRun
	lastResultTime time.Time
}

type activeRun struct {
	ctx  context.Context
	task domain.Task
}

type Config struct {
	AgentID       string
	PollInterval  time.Duration
	AllowEviction bool
}

func NewAgentService(
	taskRepo repository.TaskRepository,
	resultRepo repository.ResultRepository,
	config Config,
	log *slog.Logger,
) *AgentService {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if log == nil {
		log = sl.Discard()
	}

	s := &AgentService{
		taskRepo:     taskRepo,
		resultRepo:   resultRepo,
		checkers:     make(map[domain.TaskType]Checker),
		agentID:      config.AgentID,
		pollInterval: config.PollInterval,
		log:          log.With("agent_id", config.AgentID),
	}
	s.allowEviction.Store(config.AllowEviction)

	return s
}

// RegisterChecker binds a checker to a task type, replacing any previous one.
func (s *AgentService) RegisterChecker(taskType domain.TaskType, checker Checker) {
	s.checkersMu.Lock()
	s.checkers[taskType] = checker
	total := len(s.checkers)
	s.checkersMu.Unlock()

	s.log.Info("checker registered", "task_type", taskType, "total_checkers", total)
}

func (s *AgentService) checker(taskType domain.TaskType) (Checker, bool) {
	s.checkersMu.RLock()
	defer s.checkersMu.RUnlock()
	c, ok := s.checkers[taskType]
	return c, ok
}

func (s *AgentService) Start(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	s.log.Info("agent service started",
		"poll_interval", s.pollInterval,
		"checkers", len(s.Checkers()))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.processTasks(ctx); err != nil {
				s.log.Error("failed to process tasks", sl.Err(err))
			}
		case <-ctx.Done():
			s.stopAll()
			s.log.Info("agent service stopped")
			return nil
		}
	}
}

func (s *AgentService) stopAll() {
	s.checkersMu.RLock()
	defer s.checkersMu.RUnlock()
	for _, c := range s.checkers {
		c.StopChecking()
	}
}

func (s *AgentService) processTasks(ctx context.Context) error {
	tasks, err := s.taskRepo.FetchTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tasks: %w", err)
	}

	if len(tasks) == 0 {
		return nil
	}

	s.log.Debug("found tasks to process", "task_count", len(tasks))

	var processedCount, skippedCount int

	for _, task := range tasks {
		if ctx.Err() != nil {
			s.taskRepo.NackTask(task.ID)
			skippedCount++
			continue
		}

		processed, err := s.processTask(ctx, task)
		if err != nil {
			s.log.Error("task processing failed", "task_id", task.ID, sl.Err(err))
		}

		if processed {
			if err := s.taskRepo.AckTask(ctx, task.ID); err != nil {
				s.log.Error("failed to ack task", "task_id", task.ID, sl.Err(err))
			}
			processedCount++
			continue
		}

		s.taskRepo.NackTask(task.ID)
		skippedCount++
	}

	s.log.Info("tasks processing summary",
		"total", len(tasks),
		"processed", processedCount,
		"skipped", skippedCount)

	return nil
}

// processTask runs one task and publishes its result. It reports false
// when the task should be redelivered.
func (s *AgentService) processTask(ctx context.Context, task domain.Task) (bool, error) {
	s.sendLog(ctx, task.ID, domain.LogLevelInfo,
		fmt.Sprintf("Received %s task for %s", task.Type, task.Robot))

	result := s.RunCheck(ctx, task)
	if result.Status == domain.StatusCancelled && ctx.Err() != nil {
		return false, nil
	}

	if err := s.resultRepo.SendResult(ctx, result); err != nil {
		return false, fmt.Errorf("failed to send result: %w", err)
	}

	level := domain.LogLevelInfo
	switch {
	case result.FailureKind == string(checks.KindUnexpected):
		level = domain.LogLevelError
	case result.Status != domain.StatusSuccess:
		level = domain.LogLevelWarn
	}
	message := fmt.Sprintf("Check completed with status: %s", result.Status)
	if result.Error != "" {
		message += ": " + result.Error
	}
	s.sendLog(ctx, task.ID, level, message)

	return true, nil
}

// RunCheck runs task on its checker and waits for the outcome. Checks run
// one at a time; a caller whose ctx ends first gets a cancelled result and
// the check is stopped.
func (s *AgentService) RunCheck(ctx context.Context, task domain.Task) domain.CheckResult {
	result := domain.CheckResult{
		TaskID:  task.ID,
		AgentID: s.agentID,
		Type:    task.Type,
		Robot:   task.Robot,
	}

	if err := task.Validate(); err != nil {
		return s.finish(result, time.Now(), checks.Result{
			Robot:   task.Robot,
			Failure: &checks.Failure{Kind: checks.KindInvalidInput, Reason: err.Error()},
		}, nil)
	}

	checker, ok := s.checker(task.Type)
	if !ok {
		return s.finish(result, time.Now(), checks.Result{
			Robot: task.Robot,
			Failure: &checks.Failure{
				Kind:   checks.KindInvalidInput,
				Reason: fmt.Sprintf("no checker available for task type: %s", task.Type),
			},
		}, nil)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setCurrent(&activeRun{ctx: ctx, task: task})
	defer s.setCurrent(nil)

	startTime := time.Now()
	res, err := checks.Wait(ctx, checker.BeginChecking(task.Robot))
	if err != nil && !errors.Is(err, checks.ErrCancelled) {
		checker.StopChecking()
	}

	return s.finish(result, startTime, res, err)
}

func (s *AgentService) finish(result domain.CheckResult, startTime time.Time, res checks.Result, err error) domain.CheckResult {
	now := time.Now()
	result.Duration = now.Sub(startTime).Milliseconds()
	result.Timestamp = now

	switch {
	case err != nil:
		result.Status = domain.StatusCancelled
		result.Error = err.Error()
	case res.OK():
		result.Status = domain.StatusSuccess
		result.Description = res.Description
		if res.Ping != nil {
			result.Payload = res.Ping.Payload()
		}
	default:
		result.Status = domain.StatusFailed
		result.FailureKind = string(res.Failure.Kind)
		result.Error = res.Failure.Reason
		if res.Ping != nil {
			result.Payload = res.Ping.Payload()
		}
	}

	s.processed.Add(1)
	if result.Status != domain.StatusSuccess {
		s.failed.Add(1)
	}

	s.mu.Lock()
	s.lastResultTime = now
	s.mu.Unlock()

	s.log.Info("check finished",
		"task_id", result.TaskID,
		"type", result.Type,
		"robot", result.Robot.String(),
		"status", result.Status,
		"error", result.Error,
		"duration_ms", result.Duration)

	return result
}

func (s *AgentService) setCurrent(run *activeRun) {
	s.mu.Lock()
	s.current = run
	s.mu.Unlock()
}

func (s *AgentService) currentRun() *activeRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// DecideEviction answers a control checker that found the robot in use.
// The running task's AllowEviction wins over the agent default.
func (s *AgentService) DecideEviction(user, message string) bool {
	allow := s.allowEviction.Load()

	run := s.currentRun()
	if run == nil {
		s.log.Warn("eviction requested outside of a task", "user", user, "allow", allow)
		return allow
	}
	if run.task.AllowEviction != nil {
		allow = *run.task.AllowEviction
	}

	verdict := "declined"
	if allow {
		verdict = "accepted"
	}
	text := fmt.Sprintf("Robot is used by %s, eviction %s", user, verdict)
	if message != "" {
		text += ": " + message
	}
	s.sendLog(run.ctx, run.task.ID, domain.LogLevelWarn, text)

	return allow
}

// NotifyStarting records that the robot is being restarted.
func (s *AgentService) NotifyStarting() {
	run := s.currentRun()
	if run == nil {
		s.log.Info("starting robot outside of a task")
		return
	}
	s.sendLog(run.ctx, run.task.ID, domain.LogLevelInfo,
		fmt.Sprintf("Starting robot %s", run.task.Robot.ControlURI))
}

// SetDefaultEviction changes the policy for tasks that carry none.
func (s *AgentService) SetDefaultEviction(allow bool) {
	if s.allowEviction.Swap(allow) != allow {
		s.log.Info("default eviction policy changed", "allow_eviction", allow)
	}
}

func (s *AgentService) sendLog(ctx context.Context, taskID string, level domain.LogLevel, message string) {
	entry := domain.LogEntry{
		TaskID:    taskID,
		AgentID:   s.agentID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := s.resultRepo.SendLog(ctx, entry); err != nil {
		s.log.Warn("failed to send log", "task_id", taskID, sl.Err(err))
	}
}

func (s *AgentService) HealthCheck(ctx context.Context) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	if len(s.Checkers()) == 0 {
		return errors.New("no checkers registered")
	}
	return nil
}

// Checkers lists the registered task types in a stable order.
func (s *AgentService) Checkers() []domain.TaskType {
	s.checkersMu.RLock()
	defer s.checkersMu.RUnlock()

	types := make([]domain.TaskType, 0, len(s.checkers))
	for t := range s.checkers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (s *AgentService) GetStatus() domain.AgentStatus {
	status := domain.AgentStatus{
		AgentID:       s.agentID,
		Running:       s.running.Load(),
		PollInterval:  s.pollInterval.String(),
		Checkers:      s.Checkers(),
		AllowEviction: s.allowEviction.Load(),
		Processed:     s.processed.Load(),
		Failed:        s.failed.Load(),
	}

	s.mu.RLock()
	if s.current != nil {
		status.CurrentTaskID = s.current.task.ID
	}
	status.LastResultTime = s.lastResultTime
	s.mu.RUnlock()

	return status
}
