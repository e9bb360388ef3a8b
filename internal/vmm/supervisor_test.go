package vmm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/bootgod/internal/bootspec"
)

func fakeCommand(binary string, args ...string) func(bootspec.BootSource, *bootspec.BootProfile) (string, []string, error) {
	return func(bootspec.BootSource, *bootspec.BootProfile) (string, []string, error) {
		return binary, args, nil
	}
}

func testSupervisor(binary string, args ...string) *Supervisor {
	sup := NewSupervisor()
	sup.Grace = 2 * time.Second
	sup.commandFor = fakeCommand(binary, args...)
	return sup
}

func testSource() bootspec.BootSource {
	return bootspec.ImageSource("/nonexistent/fake.img")
}

func waitTerminal(t *testing.T, session *Session) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := session.Wait(ctx)
	require.NoError(t, err, "session did not reach a terminal state in time")
	return status
}

func TestStartAndCleanExit(t *testing.T) {
	sup := testSupervisor("true")

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	status := waitTerminal(t, session)
	assert.Equal(t, StateExited, status.State)
	assert.Equal(t, 0, status.ExitCode)
}

func TestExitCodeAndStderrCaptured(t *testing.T) {
	sup := testSupervisor("sh", "-c", "echo warming up >&2; echo disk not found >&2; exit 3")

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)

	status := waitTerminal(t, session)
	assert.Equal(t, StateExited, status.State)
	assert.Equal(t, 3, status.ExitCode)
	assert.Equal(t, "disk not found", status.Reason)
}

func TestCancelRunningSession(t *testing.T) {
	sup := testSupervisor("sleep", "30")

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, session.Poll().State)
	assert.NotZero(t, session.PID())

	sup.Cancel(session.ID)

	status := waitTerminal(t, session)
	assert.Equal(t, StateCancelled, status.State)
	assert.NotEmpty(t, status.Reason)
}

func TestCancelEscalatesToKill(t *testing.T) {
	// Process that ignores SIGTERM; only SIGKILL takes it down.
	sup := testSupervisor("sh", "-c", "trap '' TERM; sleep 30")
	sup.Grace = 200 * time.Millisecond

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)
	// Give the shell time to install its trap
	time.Sleep(100 * time.Millisecond)

	sup.Cancel(session.ID)

	status := waitTerminal(t, session)
	assert.Equal(t, StateCancelled, status.State)
}

func TestSecondStartRejectedWhileRunning(t *testing.T) {
	sup := testSupervisor("sleep", "30")

	first, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), testSource(), testProfile())
	var busy *AlreadyRunningError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, first.ID, busy.SessionID)
	assert.Equal(t, StateRunning, first.Poll().State, "the running session is unaffected")

	sup.Cancel(first.ID)
	waitTerminal(t, first)

	second, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)
	sup.Cancel(second.ID)
	waitTerminal(t, second)
}

func TestCancelTerminalSessionIsNoOp(t *testing.T) {
	sup := testSupervisor("true")

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)
	status := waitTerminal(t, session)

	sup.Cancel(session.ID)
	assert.Equal(t, status, session.Poll(), "terminal status never changes")
}

func TestCancelUnknownSessionIsNoOp(t *testing.T) {
	sup := testSupervisor("true")
	sup.Cancel("00000000-0000-0000-0000-000000000000")
}

func TestLaunchErrorLeavesNoSession(t *testing.T) {
	sup := testSupervisor("/nonexistent/emulator/binary")

	_, err := sup.Start(context.Background(), testSource(), testProfile())
	var lerr *LaunchError
	require.ErrorAs(t, err, &lerr)

	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Empty(t, sup.sessions)
	assert.Nil(t, sup.current)
}

func TestCommandResolutionFailure(t *testing.T) {
	sup := NewSupervisor()
	sup.commandFor = func(bootspec.BootSource, *bootspec.BootProfile) (string, []string, error) {
		return "", nil, errors.New("no emulator found")
	}

	_, err := sup.Start(context.Background(), testSource(), testProfile())
	var lerr *LaunchError
	require.ErrorAs(t, err, &lerr)
}

func TestStartRejectsInvalidSource(t *testing.T) {
	sup := testSupervisor("true")
	_, err := sup.Start(context.Background(), bootspec.BootSource{}, testProfile())
	require.Error(t, err)
}

func TestWaitHonorsContext(t *testing.T) {
	sup := testSupervisor("sleep", "30")

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	status, werr := session.Wait(ctx)
	assert.ErrorIs(t, werr, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, status.State)

	sup.Cancel(session.ID)
	waitTerminal(t, session)
}

type fakeRecorder struct {
	mu      sync.Mutex
	started []string
	ended   map[string]string
	done    chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ended: make(map[string]string), done: make(chan struct{}, 4)}
}

func (r *fakeRecorder) SessionStarted(id string, sourceKind, sourcePath string, profile *bootspec.BootProfile, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *fakeRecorder) SessionEnded(id string, state string, exitCode int, reason string) {
	r.mu.Lock()
	r.ended[id] = state
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestRecorderReceivesLifecycle(t *testing.T) {
	rec := newFakeRecorder()
	sup := testSupervisor("true")
	sup.Recorder = rec

	session, err := sup.Start(context.Background(), testSource(), testProfile())
	require.NoError(t, err)

	select {
	case <-rec.done:
	case <-time.After(10 * time.Second):
		t.Fatal("recorder never saw the session end")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{session.ID}, rec.started)
	assert.Equal(t, string(StateExited), rec.ended[session.ID])
}
