package checks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ozzus/robot-agent/internal/control"
	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 30
)

// EvictionHandler decides whether the current user of a robot may be
// evicted. It runs on the checker's goroutine and may block.
type EvictionHandler func(user, message string) bool

// StartHandler is told that a robot is about to be booted.
type StartHandler func()

// ControlEndpoint reads and drives a robot's control page.
type ControlEndpoint interface {
	FetchState(ctx context.Context, controlURI string) (domain.RobotState, error)
	Send(ctx context.Context, controlURI string, action control.Action) error
}

// ControlChecker acquires ownership of a robot through its control
// endpoint, evicting the current user and booting the robot if allowed.
type ControlChecker struct {
	flight       flight
	endpoint     ControlEndpoint
	evict        EvictionHandler
	onStart      StartHandler
	doStart      bool
	autoStart    *bool
	pollInterval time.Duration
	maxPolls     int
	log          *slog.Logger
}

type ControlOption func(*ControlChecker)

// WithEvictionHandler installs h and enables booting robots that are off.
func WithEvictionHandler(h EvictionHandler) ControlOption {
	return func(c *ControlChecker) {
		if h != nil {
			c.evict = h
			c.doStart = true
		}
	}
}

func WithStartHandler(h StartHandler) ControlOption {
	return func(c *ControlChecker) { c.onStart = h }
}

// WithAutoStart forces booting on or off regardless of the other options.
func WithAutoStart(start bool) ControlOption {
	return func(c *ControlChecker) { c.autoStart = &start }
}

func WithPollInterval(d time.Duration) ControlOption {
	return func(c *ControlChecker) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithMaxPolls(n int) ControlOption {
	return func(c *ControlChecker) {
		if n > 0 {
			c.maxPolls = n
		}
	}
}

func WithControlLogger(log *slog.Logger) ControlOption {
	return func(c *ControlChecker) { c.log = log }
}

// NewControlChecker returns a checker that by default only checks: it
// declines every eviction and never boots a robot.
func NewControlChecker(endpoint ControlEndpoint, opts ...ControlOption) *ControlChecker {
	c := &ControlChecker{
		endpoint:     endpoint,
		evict:        declineEviction,
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
		log:          sl.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.autoStart != nil {
		c.doStart = *c.autoStart
	}
	c.log = c.log.With("checker", string(domain.TaskTypeControl))
	c.flight.log = c.log

	return c
}

func declineEviction(string, string) bool { return false }

// BeginChecking cancels any running check and starts acquiring robot.
// A robot without a control URI is treated as locally owned and succeeds
// at once without network traffic.
func (c *ControlChecker) BeginChecking(robot domain.RobotID) <-chan Result {
	if !robot.HasControl() {
		return c.flight.resolve(succeeded(robot))
	}

	return c.flight.start(robot, func(ctx context.Context) Result {
		return c.check(ctx, robot)
	})
}

// StopChecking cancels the running check, if any. It does not wait.
func (c *ControlChecker) StopChecking() {
	c.flight.stop()
}

func (c *ControlChecker) check(ctx context.Context, robot domain.RobotID) Result {
	uri := robot.ControlURI

	state, err := c.endpoint.FetchState(ctx, uri)
	if err != nil {
		c.log.Error("failed to read control page", "control", uri, sl.Err(err))
		if errors.Is(err, control.ErrNoState) {
			return failed(robot, KindProtocolMismatch, "control page did not report a robot state")
		}
		return failed(robot, KindUnreachable, "could not connect to the control page")
	}

	c.log.Debug("active user", "control", uri, "user", state.User, "status", state.Status)

	if state.Status == domain.RobotStatusValid {
		return succeeded(robot)
	}

	if state.Status == domain.RobotStatusInUse {
		if ctx.Err() != nil {
			return Result{}
		}
		if !c.evict(state.User, state.Message) {
			c.log.Debug("no eviction", "control", uri, "user", state.User)
			return failed(robot, KindEvictionDeclined, "need to evict current user in order to connect")
		}
		if ctx.Err() != nil {
			return Result{}
		}

		c.log.Info("stopping robot", "control", uri, "user", state.User)
		if err := c.endpoint.Send(ctx, uri, control.ActionStopRobot); err != nil {
			c.log.Warn("stop request failed", "control", uri, sl.Err(err))
		}
	}

	if !c.doStart {
		c.log.Debug("robot not started", "control", uri)
		return failed(robot, KindNotStarted, "robot not started")
	}
	if ctx.Err() != nil {
		return Result{}
	}

	if c.onStart != nil {
		c.onStart()
	}

	c.log.Info("starting robot", "control", uri)
	if err := c.endpoint.Send(ctx, uri, control.ActionStartRobot); err != nil {
		c.log.Warn("start request failed", "control", uri, sl.Err(err))
	}

	return c.awaitBoot(ctx, robot)
}

// awaitBoot polls the control page until the robot reports VALID.
func (c *ControlChecker) awaitBoot(ctx context.Context, robot domain.RobotID) Result {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		if attempt > 1 {
			timer.Reset(c.pollInterval)
		}

		select {
		case <-ctx.Done():
			return Result{}
		case <-timer.C:
		}

		state, err := c.endpoint.FetchState(ctx, robot.ControlURI)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}
			}
			c.log.Error("lost connection with robot", "control", robot.ControlURI,
				"attempt", attempt, sl.Err(err))
			return failed(robot, KindUnreachable, "lost connection with robot")
		}

		if state.Status == domain.RobotStatusValid {
			c.log.Info("robot started", "control", robot.ControlURI, "attempt", attempt)
			return succeeded(robot)
		}
	}

	c.log.Warn("restarted robot, still not working", "control", robot.ControlURI, "polls", c.maxPolls)
	return failed(robot, KindStartupTimeout, "re-started the robot, but it is still not working")
}
