package checks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/rosmaster"
)

type fakeRegistry struct {
	mu      sync.Mutex
	params  map[string]string
	hasErr  error
	getErr  error
	calls   []string
	entered chan struct{}
	release chan struct{}
	panics  bool
}

func (r *fakeRegistry) HasParam(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "has "+key)
	r.mu.Unlock()

	if r.panics {
		panic("registry exploded")
	}
	if r.release != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	if r.hasErr != nil {
		return false, r.hasErr
	}
	_, ok := r.params[key]
	return ok, nil
}

func (r *fakeRegistry) GetParam(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "get "+key)
	r.mu.Unlock()

	if r.getErr != nil {
		return "", r.getErr
	}
	return r.params[key], nil
}

func dialerFor(reg *fakeRegistry, dials *atomic.Int32) RegistryDialer {
	return func(string) (ParamRegistry, error) {
		dials.Add(1)
		return reg, nil
	}
}

var robotIdentity = map[string]string{
	ParamRobotName: "pr1012",
	ParamRobotType: "pr2",
}

func TestMasterCheckerEmptyURI(t *testing.T) {
	var dials atomic.Int32
	c := NewMasterChecker(WithRegistryDialer(dialerFor(&fakeRegistry{}, &dials)))

	res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("", "http://pr2/control")))
	require.True(t, ok)
	require.False(t, res.OK())

	assert.Equal(t, KindInvalidInput, res.Failure.Kind)
	assert.Equal(t, "empty master URI", res.Failure.Reason)
	assert.Zero(t, dials.Load())
}

func TestMasterCheckerInvalidURI(t *testing.T) {
	var dials atomic.Int32
	c := NewMasterChecker(WithRegistryDialer(dialerFor(&fakeRegistry{}, &dials)))

	res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("pr2 master", "")))
	require.True(t, ok)
	require.False(t, res.OK())

	assert.Equal(t, "invalid master URI", res.Failure.Reason)
	assert.Zero(t, dials.Load())
}

func TestMasterCheckerSuccess(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reg := &fakeRegistry{params: robotIdentity}
	var dials atomic.Int32

	c := NewMasterChecker(
		WithRegistryDialer(dialerFor(reg, &dials)),
		WithNow(func() time.Time { return now }),
	)
	robot := domain.NewRobotID("http://pr1012:11311/", "")

	res, ok := waitResult(t, c.BeginChecking(robot))
	require.True(t, ok)
	require.True(t, res.OK())
	require.NotNil(t, res.Description)

	assert.Equal(t, domain.RobotDescription{
		Robot:        robot,
		Name:         "pr1012",
		Type:         "pr2",
		DiscoveredAt: now,
	}, *res.Description)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, []string{
		"has robot/name", "has robot/type", "get robot/name", "get robot/type",
	}, reg.calls)
}

func TestMasterCheckerMissingParameter(t *testing.T) {
	for _, present := range []string{ParamRobotName, ParamRobotType} {
		t.Run(present, func(t *testing.T) {
			reg := &fakeRegistry{params: map[string]string{present: "x"}}
			var dials atomic.Int32
			c := NewMasterChecker(WithRegistryDialer(dialerFor(reg, &dials)))

			res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("http://pr2:11311", "")))
			require.True(t, ok)
			require.False(t, res.OK())

			assert.Equal(t, KindProtocolMismatch, res.Failure.Kind)
			assert.Contains(t, res.Failure.Reason, "not set")
			assert.Nil(t, res.Description)
			assert.NotContains(t, reg.calls, "get robot/name")
		})
	}
}

func TestMasterCheckerRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		reg  *fakeRegistry
		kind FailureKind
		msg  string
	}{
		{
			name: "connection refused",
			reg:  &fakeRegistry{hasErr: errors.New("hasParam: connection refused")},
			kind: KindUnreachable,
			msg:  "connection refused",
		},
		{
			name: "master status error",
			reg: &fakeRegistry{
				params: robotIdentity,
				getErr: &rosmaster.StatusError{Method: "getParam", Code: -1, Message: "not set"},
			},
			kind: KindProtocolMismatch,
			msg:  "getParam",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dials atomic.Int32
			c := NewMasterChecker(WithRegistryDialer(dialerFor(tt.reg, &dials)))

			res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("http://pr2:11311", "")))
			require.True(t, ok)
			require.False(t, res.OK())

			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.Contains(t, res.Failure.Reason, tt.msg)
		})
	}
}

func TestMasterCheckerDialError(t *testing.T) {
	c := NewMasterChecker(WithRegistryDialer(func(string) (ParamRegistry, error) {
		return nil, errors.New("no route to host")
	}))

	res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("http://pr2:11311", "")))
	require.True(t, ok)
	require.False(t, res.OK())
	assert.Equal(t, KindUnreachable, res.Failure.Kind)
	assert.Equal(t, "no route to host", res.Failure.Reason)
}

func TestMasterCheckerStopBeforeResult(t *testing.T) {
	reg := &fakeRegistry{
		params:  robotIdentity,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	var dials atomic.Int32
	c := NewMasterChecker(WithRegistryDialer(dialerFor(reg, &dials)))

	results := c.BeginChecking(domain.NewRobotID("http://pr2:11311", ""))
	waitSignal(t, reg.entered)

	c.StopChecking()
	close(reg.release)

	_, ok := waitResult(t, results)
	assert.False(t, ok, "stopped check must not deliver a result")

	c.flight.wait()
}

func TestMasterCheckerSupersede(t *testing.T) {
	blocking := &fakeRegistry{
		params:  robotIdentity,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fast := &fakeRegistry{params: map[string]string{ParamRobotName: "other", ParamRobotType: "turtlebot"}}

	c := NewMasterChecker(WithRegistryDialer(func(uri string) (ParamRegistry, error) {
		if uri == "http://slow:11311" {
			return blocking, nil
		}
		return fast, nil
	}))

	first := c.BeginChecking(domain.NewRobotID("http://slow:11311", ""))
	waitSignal(t, blocking.entered)

	second := c.BeginChecking(domain.NewRobotID("http://fast:11311", ""))
	close(blocking.release)

	_, ok := waitResult(t, first)
	assert.False(t, ok)

	res, ok := waitResult(t, second)
	require.True(t, ok)
	require.True(t, res.OK())
	assert.Equal(t, "other", res.Description.Name)
}

func TestMasterCheckerSupersededByImmediateFailure(t *testing.T) {
	reg := &fakeRegistry{
		params:  robotIdentity,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	var dials atomic.Int32
	c := NewMasterChecker(WithRegistryDialer(dialerFor(reg, &dials)))

	first := c.BeginChecking(domain.NewRobotID("http://pr2:11311", ""))
	waitSignal(t, reg.entered)

	second := c.BeginChecking(domain.RobotID{})
	close(reg.release)

	_, ok := waitResult(t, first)
	assert.False(t, ok)

	res, ok := waitResult(t, second)
	require.True(t, ok)
	assert.Equal(t, "empty master URI", res.Failure.Reason)
}

func TestMasterCheckerPanicBecomesFailure(t *testing.T) {
	var dials atomic.Int32
	c := NewMasterChecker(WithRegistryDialer(dialerFor(&fakeRegistry{panics: true}, &dials)))

	res, ok := waitResult(t, c.BeginChecking(domain.NewRobotID("http://pr2:11311", "")))
	require.True(t, ok)
	require.False(t, res.OK())
	assert.Equal(t, KindUnexpected, res.Failure.Kind)
	assert.Equal(t, "exception: registry exploded", res.Failure.Reason)
}

func TestMasterCheckerStopWithoutCheck(t *testing.T) {
	c := NewMasterChecker()
	assert.NotPanics(t, c.StopChecking)
}

func TestWait(t *testing.T) {
	done := make(chan Result, 1)
	done <- failed(domain.RobotID{}, KindUnreachable, "down")
	close(done)

	res, err := Wait(context.Background(), done)
	require.NoError(t, err)
	assert.Equal(t, "down", res.Failure.Error())

	cancelled := make(chan Result)
	close(cancelled)
	_, err = Wait(context.Background(), cancelled)
	assert.ErrorIs(t, err, ErrCancelled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Wait(ctx, make(chan Result))
	assert.ErrorIs(t, err, context.Canceled)
}
