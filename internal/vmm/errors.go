package vmm

import "fmt"

// LaunchError means process creation itself failed; the session never
// left NotStarted.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// AlreadyRunningError rejects a second Start while a session is still
// Running; the supervisor never spawns a second process for the same
// identity.
type AlreadyRunningError struct {
	SessionID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a virtual machine session is already running (id %s)", e.SessionID)
}
