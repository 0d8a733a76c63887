// Package supervisor runs named goroutines with panic recovery and a
// graceful, timeout-aware wait on shutdown. Every long-lived goroutine in
// the reminder core (jobs, pingers) is started through it so a panic in
// one task never takes the process down.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logx "remindbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger
	wg  sync.WaitGroup

	// Counters are best-effort operational metrics.
	started atomic.Uint64
	active  atomic.Int64
	panics  atomic.Uint64
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

// Context returns the supervisor's lifetime context; goroutines should
// treat its cancellation as a shutdown signal.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn in a new goroutine with panic recovery.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				s.panics.Add(1)
				s.log.Error("panic in supervised goroutine",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()
		fn(s.ctx)
	}()
}

// Active reports how many supervised goroutines are currently running.
func (s *Supervisor) Active() int64 { return s.active.Load() }

// Stop cancels the shared context and waits for all goroutines, or returns
// early when ctx expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
