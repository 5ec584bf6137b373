package checks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"ozzus/robot-agent/internal/domain"
)

// flight runs at most one background check. Each start bumps the
// generation and cancels the previous context; a result is delivered only
// if its generation is still current and its context is still live, both
// checked under mu so that stop never races a delivery.
type flight struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func (f *flight) start(robot domain.RobotID, run func(ctx context.Context) Result) <-chan Result {
	out := make(chan Result, 1)

	f.mu.Lock()
	f.stopLocked()
	f.gen++
	gen := f.gen
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer cancel()

		var res Result
		var pc panics.Catcher
		pc.Try(func() { res = run(ctx) })
		if r := pc.Recovered(); r != nil {
			f.log.Error("checker panicked", "robot", robot.String(), "panic", r.Value, "stack", string(r.Stack))
			res = failed(robot, KindUnexpected, fmt.Sprintf("exception: %v", r.Value))
		}

		f.deliver(ctx, gen, out, res)
	}()

	return out
}

// resolve supersedes any running check and returns an already completed one.
func (f *flight) resolve(res Result) <-chan Result {
	out := make(chan Result, 1)

	f.mu.Lock()
	f.stopLocked()
	f.gen++
	f.mu.Unlock()

	out <- res
	close(out)
	return out
}

func (f *flight) deliver(ctx context.Context, gen uint64, out chan<- Result, res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer close(out)

	if gen != f.gen || ctx.Err() != nil {
		return
	}

	out <- res
	f.cancel = nil
}

func (f *flight) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *flight) stopLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// wait blocks until every started worker has returned.
func (f *flight) wait() {
	f.wg.Wait()
}
