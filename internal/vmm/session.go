package vmm

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sigreer/bootgod/internal/bootspec"
)

// State is the lifecycle state of a session's emulator process
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateExited || s == StateFailed || s == StateCancelled
}

// Status is a point-in-time observation of a session. ExitCode is only
// meaningful for StateExited; Reason carries a display-ready string for
// Failed and Cancelled.
type Status struct {
	State    State  `json:"state"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason,omitempty"`
}

// Session is one supervised lifetime of an external emulator process.
// The supervisor owns the process handle; callers observe it through
// Poll, Wait and Cancel only.
type Session struct {
	ID        string
	Source    bootspec.BootSource
	Profile   *bootspec.BootProfile
	StartedAt time.Time

	mu     sync.Mutex
	status Status
	cmd    *exec.Cmd

	// closed by the monitor goroutine once the process is reaped and
	// the terminal status recorded
	done chan struct{}

	cancelRequested bool
}

// Poll returns the current status without blocking.
func (s *Session) Poll() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until the session reaches a terminal state or ctx is
// done. The session's terminal status is returned either way once it
// is known.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.done:
		return s.Poll(), nil
	case <-ctx.Done():
		return s.Poll(), ctx.Err()
	}
}

// PID returns the emulator process id, or 0 before start.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// cancel requests graceful termination and escalates to SIGKILL after
// the grace period. It is a no-op once the session is terminal: a race
// with natural exit resolves in favor of the already-observed state.
func (s *Session) cancel(grace time.Duration) {
	s.mu.Lock()
	if s.status.State.Terminal() || s.cmd == nil || s.cmd.Process == nil {
		s.mu.Unlock()
		return
	}
	s.cancelRequested = true
	proc := s.cmd.Process
	s.mu.Unlock()

	// Graceful first; QEMU shuts the guest down on SIGTERM
	_ = proc.Signal(syscall.SIGTERM)

	select {
	case <-s.done:
		return
	case <-time.After(grace):
	}

	_ = proc.Kill()
	<-s.done
}

// finish records the terminal state exactly once. The monitor goroutine
// is the only caller; waitErr is the error from cmd.Wait.
func (s *Session) finish(waitErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State.Terminal() {
		return
	}

	switch {
	case s.cancelRequested:
		s.status = Status{State: StateCancelled, Reason: "cancelled by caller"}
	case waitErr == nil:
		s.status = Status{State: StateExited, ExitCode: 0}
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			s.status = Status{State: StateExited, ExitCode: exitErr.ExitCode()}
		} else {
			s.status = Status{State: StateFailed, Reason: "emulator process was lost: " + waitErr.Error()}
		}
	}
}
