package imaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an imaging job
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether the job can make no further progress.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Progress is a point-in-time observation of a job. BytesWritten only
// ever grows; for Cancelled and Failed jobs it reports exactly how far
// the copy got, and the partially written target is not safe to boot.
type Progress struct {
	BytesWritten int64  `json:"bytes_written"`
	BytesTotal   int64  `json:"bytes_total"`
	State        State  `json:"state"`
	Reason       string `json:"reason,omitempty"`
}

// Job is one raw block-copy operation. The engine owns the target
// write handle for the job's whole duration.
type Job struct {
	ID         string
	SourcePath string
	TargetPath string
	StartedAt  time.Time

	bytesTotal   int64
	bytesWritten atomic.Int64

	mu     sync.Mutex
	state  State
	reason string

	// cancelCopy stops the copy loop at the next chunk boundary
	cancelCopy context.CancelFunc
	done       chan struct{}
}

// Progress returns the current observation without blocking.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{
		BytesWritten: j.bytesWritten.Load(),
		BytesTotal:   j.bytesTotal,
		State:        j.state,
		Reason:       j.reason,
	}
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (j *Job) Wait(ctx context.Context) (Progress, error) {
	select {
	case <-j.done:
		return j.Progress(), nil
	case <-ctx.Done():
		return j.Progress(), ctx.Err()
	}
}

// setState records a transition unless the job is already terminal.
func (j *Job) setState(state State, reason string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = state
	j.reason = reason
	return true
}
