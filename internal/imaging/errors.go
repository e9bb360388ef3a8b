package imaging

import "fmt"

// DeviceBusyError rejects a job against a target that is already the
// subject of another active job. The exclusivity invariant lives here
// in the engine, not with the callers.
type DeviceBusyError struct {
	Target string
	JobID  string
}

func (e *DeviceBusyError) Error() string {
	return fmt.Sprintf("device %s is busy with imaging job %s", e.Target, e.JobID)
}

// SourceUnreadableError means the source image could not be opened.
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("source image %s is not readable: %v", e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// SizeMismatchError fails the job before the first write when the
// source cannot fit on the target.
type SizeMismatchError struct {
	Source int64
	Target int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("source is %d bytes but target only holds %d bytes", e.Source, e.Target)
}

// IOError is a chunk-level read or write failure that survived its
// retries. Offset is the byte position the copy had reached.
type IOError struct {
	Op     string // "read" or "write"
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s failed at byte offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
