// Package checks holds the background checkers that confirm a robot's
// identity and acquire control of it. Every checker runs at most one
// check at a time: starting a new check supersedes the one in flight.
package checks

import (
	"context"
	"errors"

	"ozzus/robot-agent/internal/domain"
)

type FailureKind string

const (
	KindInvalidInput     FailureKind = "invalid_input"
	KindUnreachable      FailureKind = "unreachable"
	KindProtocolMismatch FailureKind = "protocol_mismatch"
	KindEvictionDeclined FailureKind = "eviction_declined"
	KindNotStarted       FailureKind = "not_started"
	KindStartupTimeout   FailureKind = "startup_timeout"
	KindUnexpected       FailureKind = "unexpected"
)

// ErrCancelled is returned by Wait when a check was stopped or superseded.
var ErrCancelled = errors.New("check cancelled")

// Failure is the terminal reason of an unsuccessful check.
type Failure struct {
	Kind   FailureKind
	Reason string
}

func (f *Failure) Error() string {
	return f.Reason
}

// Result is the single terminal outcome of a check. Failure is nil on
// success. Description is set by master checks, Ping by ping checks.
type Result struct {
	Robot       domain.RobotID
	Description *domain.RobotDescription
	Ping        *PingStats
	Failure     *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

func succeeded(robot domain.RobotID) Result {
	return Result{Robot: robot}
}

func failed(robot domain.RobotID, kind FailureKind, reason string) Result {
	return Result{Robot: robot, Failure: &Failure{Kind: kind, Reason: reason}}
}

// Checker is implemented by every checker in this package.
type Checker interface {
	BeginChecking(robot domain.RobotID) <-chan Result
	StopChecking()
}

// Wait blocks until the check delivers its result, the check is
// cancelled, or ctx is done.
func Wait(ctx context.Context, results <-chan Result) (Result, error) {
	select {
	case res, ok := <-results:
		if !ok {
			return Result{}, ErrCancelled
		}
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
