package jobmanager

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ProcessController is the subset of a process handle the TimeoutGuard needs
// to escalate termination.
type ProcessController interface {
	Signal(sig os.Signal) error
	Kill() error
}

// guardState tracks the TimeoutGuard state machine:
// Armed --(deadline elapses)--> Escalating --(grace elapses)--> ForceKilled;
// Armed --(job finishes naturally)--> Disarmed.
type guardState int32

const (
	guardArmed guardState = iota
	guardEscalating
	guardForceKilled
	guardDisarmed
)

// TimeoutGuard owns a job's execution deadline. When the deadline elapses it
// announces the timeout, sends a graceful termination signal and, if the
// process has not exited by the end of a fixed grace window, kills it. The
// deadline is absolute and never extended.
type TimeoutGuard struct {
	grace  time.Duration
	proc   ProcessController
	notify func(string)

	state atomic.Int32
	fired atomic.Bool

	disarm     chan struct{}
	disarmOnce sync.Once
	done       chan struct{}
}

// StartTimeoutGuard arms a guard for proc with the given absolute deadline.
// notify is called exactly once, before any termination signal is sent, with
// an informational message announcing the timeout; it may block and must
// observe the same cancellation as the job.
func StartTimeoutGuard(
	ctx context.Context,
	deadline time.Time,
	grace time.Duration,
	proc ProcessController,
	notify func(string),
) *TimeoutGuard {
	g := &TimeoutGuard{
		grace:  grace,
		proc:   proc,
		notify: notify,
		disarm: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go g.watch(ctx, deadline)

	return g
}

func (g *TimeoutGuard) watch(ctx context.Context, deadline time.Time) {
	defer close(g.done)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-g.disarm:
		g.state.Store(int32(guardDisarmed))
		return
	case <-ctx.Done():
		// Client disconnected; teardown is the manager's job.
		g.state.Store(int32(guardDisarmed))
		return
	case <-timer.C:
	}

	g.fired.Store(true)
	g.state.Store(int32(guardEscalating))

	g.notify(fmt.Sprintf(
		"analysis deadline exceeded, terminating worker (grace %s)",
		g.grace,
	))

	// Signal errors mean the process is already gone; the grace window and
	// subsequent Wait sort that out.
	g.proc.Signal(syscall.SIGTERM)

	select {
	case <-g.disarm:
		return
	case <-ctx.Done():
		return
	case <-time.After(g.grace):
	}

	g.state.Store(int32(guardForceKilled))
	g.proc.Kill()
}

// Disarm stops the guard. It blocks until the guard goroutine has finished,
// which guarantees that a fired guard's announcement has been delivered
// before the caller emits the terminal result.
func (g *TimeoutGuard) Disarm() {
	g.disarmOnce.Do(func() {
		close(g.disarm)
	})

	<-g.done
}

// Fired reports whether the deadline elapsed before the job finished.
func (g *TimeoutGuard) Fired() bool {
	return g.fired.Load()
}
