// Package vmm supervises the external emulator process for a boot
// session: one owned OS process per session, an explicit lifecycle
// state machine, and guaranteed reaping on every exit path.
package vmm

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sigreer/bootgod/internal/bootspec"
)

// DefaultGrace is how long Cancel waits for a graceful shutdown before
// escalating to SIGKILL.
const DefaultGrace = 5 * time.Second

// Recorder receives lifecycle events for the history layer. It is
// optional; a nil recorder is skipped and a recorder failure never
// affects session outcomes.
type Recorder interface {
	SessionStarted(id string, sourceKind, sourcePath string, profile *bootspec.BootProfile, startedAt time.Time)
	SessionEnded(id string, state string, exitCode int, reason string)
}

// Supervisor launches and tracks emulator sessions. At most one session
// may be Running at a time; every spawned process is reaped by a
// dedicated monitor goroutine so the calling context never blocks for
// the session's full duration.
type Supervisor struct {
	// Binary overrides emulator discovery (tests, exotic installs).
	Binary string
	// Grace overrides DefaultGrace when positive.
	Grace time.Duration
	// Recorder, when set, receives lifecycle events.
	Recorder Recorder

	// commandFor builds the invocation; replaced in tests.
	commandFor func(src bootspec.BootSource, profile *bootspec.BootProfile) (string, []string, error)

	mu       sync.Mutex
	sessions map[string]*Session
	current  *Session
}

// NewSupervisor returns a supervisor using QEMU discovery and defaults.
func NewSupervisor() *Supervisor {
	s := &Supervisor{sessions: make(map[string]*Session)}
	s.commandFor = s.qemuCommand
	return s
}

func (sup *Supervisor) qemuCommand(src bootspec.BootSource, profile *bootspec.BootProfile) (string, []string, error) {
	return Invocation(sup.Binary, src, profile)
}

// Start resolves the invocation and spawns the emulator. It fails with
// AlreadyRunningError while another session is Running, and with
// LaunchError when process creation fails; in both cases no session
// state changes.
func (sup *Supervisor) Start(ctx context.Context, src bootspec.BootSource, profile *bootspec.BootProfile) (*Session, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	binary, args, err := sup.commandFor(src, profile)
	if err != nil {
		return nil, &LaunchError{Binary: sup.Binary, Err: err}
	}

	sup.mu.Lock()
	defer sup.mu.Unlock()

	if sup.current != nil && sup.current.Poll().State == StateRunning {
		return nil, &AlreadyRunningError{SessionID: sup.current.ID}
	}

	session := &Session{
		ID:      uuid.NewString(),
		Source:  src,
		Profile: profile.Clone(),
		done:    make(chan struct{}),
		status:  Status{State: StateNotStarted},
	}

	cmd := exec.Command(binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Binary: binary, Err: err}
	}

	session.mu.Lock()
	session.cmd = cmd
	session.StartedAt = time.Now()
	session.status = Status{State: StateRunning}
	session.mu.Unlock()

	sup.sessions[session.ID] = session
	sup.current = session

	logrus.WithFields(logrus.Fields{
		"session": session.ID,
		"source":  src.Path(),
		"kind":    src.Kind(),
		"pid":     cmd.Process.Pid,
	}).Info("emulator started")

	if sup.Recorder != nil {
		sup.Recorder.SessionStarted(session.ID, src.Kind(), src.Path(), session.Profile, session.StartedAt)
	}

	go sup.monitor(session, cmd, &stderr)

	return session, nil
}

// monitor reaps the process and publishes the terminal state. This is
// the only place cmd.Wait is called, so the handle can never leak or
// leave a zombie, including on cancellation.
func (sup *Supervisor) monitor(session *Session, cmd *exec.Cmd, stderr *strings.Builder) {
	waitErr := cmd.Wait()
	session.finish(waitErr)

	status := session.Poll()
	if status.State == StateExited && status.ExitCode != 0 && status.Reason == "" {
		if tail := stderrTail(stderr.String()); tail != "" {
			session.mu.Lock()
			session.status.Reason = tail
			session.mu.Unlock()
			status.Reason = tail
		}
	}
	close(session.done)

	logrus.WithFields(logrus.Fields{
		"session": session.ID,
		"state":   string(status.State),
		"code":    status.ExitCode,
	}).Info("emulator session finished")

	if sup.Recorder != nil {
		sup.Recorder.SessionEnded(session.ID, string(status.State), status.ExitCode, status.Reason)
	}
}

// Get returns the session with the given id, or nil.
func (sup *Supervisor) Get(id string) *Session {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.sessions[id]
}

// Cancel requests termination of the session. Cancelling an unknown or
// already-terminal session is a no-op, not an error.
func (sup *Supervisor) Cancel(id string) {
	session := sup.Get(id)
	if session == nil {
		return
	}
	grace := sup.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	session.cancel(grace)
}

// stderrTail reduces captured emulator stderr to its last non-empty
// line, which is almost always the actual complaint.
func stderrTail(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
