package checks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
	"ozzus/robot-agent/internal/rosmaster"
)

const (
	ParamRobotName = "robot/name"
	ParamRobotType = "robot/type"
)

// ParamRegistry is the subset of the parameter server a master check needs.
type ParamRegistry interface {
	HasParam(ctx context.Context, key string) (bool, error)
	GetParam(ctx context.Context, key string) (string, error)
}

// RegistryDialer connects to the parameter registry at masterURI.
type RegistryDialer func(masterURI string) (ParamRegistry, error)

// MasterChecker confirms that a robot's parameter registry is reachable
// and names the robot, producing a RobotDescription.
type MasterChecker struct {
	flight      flight
	dial        RegistryDialer
	callTimeout time.Duration
	now         func() time.Time
	log         *slog.Logger
}

type MasterOption func(*MasterChecker)

func WithRegistryDialer(dial RegistryDialer) MasterOption {
	return func(c *MasterChecker) { c.dial = dial }
}

// WithCallTimeout bounds every registry call made by the default dialer.
func WithCallTimeout(d time.Duration) MasterOption {
	return func(c *MasterChecker) { c.callTimeout = d }
}

func WithNow(now func() time.Time) MasterOption {
	return func(c *MasterChecker) { c.now = now }
}

func WithMasterLogger(log *slog.Logger) MasterOption {
	return func(c *MasterChecker) { c.log = log }
}

func NewMasterChecker(opts ...MasterOption) *MasterChecker {
	c := &MasterChecker{
		callTimeout: 10 * time.Second,
		now:         time.Now,
		log:         sl.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dial == nil {
		timeout := c.callTimeout
		c.dial = func(masterURI string) (ParamRegistry, error) {
			return rosmaster.Dial(masterURI, rosmaster.DefaultCallerID, timeout)
		}
	}
	c.log = c.log.With("checker", string(domain.TaskTypeMaster))
	c.flight.log = c.log

	return c
}

// BeginChecking cancels any running check and starts a new one for robot.
// It returns immediately; the channel yields one Result unless the check
// is stopped or superseded first, in which case it is closed empty.
func (c *MasterChecker) BeginChecking(robot domain.RobotID) <-chan Result {
	if !robot.HasMaster() {
		return c.flight.resolve(failed(robot, KindInvalidInput, "empty master URI"))
	}
	if err := rosmaster.ValidateURI(robot.MasterURI); err != nil {
		return c.flight.resolve(failed(robot, KindInvalidInput, "invalid master URI"))
	}

	return c.flight.start(robot, func(ctx context.Context) Result {
		return c.check(ctx, robot)
	})
}

// StopChecking cancels the running check, if any. It does not wait.
func (c *MasterChecker) StopChecking() {
	c.flight.stop()
}

func (c *MasterChecker) check(ctx context.Context, robot domain.RobotID) Result {
	registry, err := c.dial(robot.MasterURI)
	if err != nil {
		c.log.Error("failed to connect to master", "master", robot.MasterURI, sl.Err(err))
		return failed(robot, KindUnreachable, err.Error())
	}

	hasName, err := registry.HasParam(ctx, ParamRobotName)
	if err != nil {
		return c.registryFailure(robot, err)
	}
	hasType, err := registry.HasParam(ctx, ParamRobotType)
	if err != nil {
		return c.registryFailure(robot, err)
	}

	if !hasName || !hasType {
		c.log.Warn("robot parameters not set", "master", robot.MasterURI,
			"has_name", hasName, "has_type", hasType)
		return failed(robot, KindProtocolMismatch,
			"the parameters on the server are not set, please set robot/name and robot/type")
	}

	name, err := registry.GetParam(ctx, ParamRobotName)
	if err != nil {
		return c.registryFailure(robot, err)
	}
	robotType, err := registry.GetParam(ctx, ParamRobotType)
	if err != nil {
		return c.registryFailure(robot, err)
	}

	c.log.Debug("robot identified", "master", robot.MasterURI, "name", name, "type", robotType)

	return Result{
		Robot: robot,
		Description: &domain.RobotDescription{
			Robot:        robot,
			Name:         name,
			Type:         robotType,
			DiscoveredAt: c.now(),
		},
	}
}

func (c *MasterChecker) registryFailure(robot domain.RobotID, err error) Result {
	kind := KindUnreachable
	var statusErr *rosmaster.StatusError
	if errors.As(err, &statusErr) {
		kind = KindProtocolMismatch
	}

	c.log.Error("exception while querying master", "master", robot.MasterURI, sl.Err(err))
	return failed(robot, kind, err.Error())
}
