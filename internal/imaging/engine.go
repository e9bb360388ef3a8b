// Package imaging performs raw block-level copies from a source image
// to a target device, with observable progress and cooperative
// cancellation at chunk boundaries.
package imaging

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sigreer/bootgod/internal/catalog"
)

const (
	// DefaultChunkSize amortizes syscall overhead while keeping
	// progress updates responsive.
	DefaultChunkSize = 4 * 1024 * 1024

	// chunkRetries bounds how often a single chunk read/write is
	// retried before the job fails with an IOError.
	chunkRetries = 3
)

// Recorder receives job lifecycle events for the history layer. Nil is
// fine; recording never affects job outcomes.
type Recorder interface {
	JobStarted(id, sourcePath, targetPath string, bytesTotal int64, startedAt time.Time)
	JobEnded(id string, state string, bytesWritten int64, reason string)
}

// Engine runs imaging jobs. Each job copies on its own goroutine; the
// engine enforces that a target device is the subject of at most one
// active job at a time.
type Engine struct {
	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int
	// Recorder, when set, receives lifecycle events.
	Recorder Recorder

	mu   sync.Mutex
	jobs map[string]*Job
	busy map[string]*Job // target path -> active job

	// chunkDelay slows the copy loop; tests use it to hold jobs open.
	chunkDelay time.Duration
}

// NewEngine returns an engine with default chunking.
func NewEngine() *Engine {
	return &Engine{
		jobs: make(map[string]*Job),
		busy: make(map[string]*Job),
	}
}

// Start begins copying sourcePath onto targetPath. Preconditions are
// checked before any byte is written: the source must be readable, the
// target must not be busy with another job, and the source must fit on
// the target. The returned job is already Running; observe it through
// Progress, Wait and Cancel.
func (e *Engine) Start(ctx context.Context, sourcePath, targetPath string) (*Job, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, &SourceUnreadableError{Path: sourcePath, Err: err}
	}

	st, err := src.Stat()
	if err != nil {
		src.Close()
		return nil, &SourceUnreadableError{Path: sourcePath, Err: err}
	}
	total := st.Size()

	if targetSize, err := catalog.DeviceSize(targetPath); err == nil && targetSize > 0 {
		if total > int64(targetSize) {
			src.Close()
			return nil, &SizeMismatchError{Source: total, Target: int64(targetSize)}
		}
	}

	target, err := os.OpenFile(targetPath, os.O_WRONLY, 0)
	if err != nil {
		src.Close()
		return nil, err
	}

	e.mu.Lock()
	if active, ok := e.busy[targetPath]; ok {
		e.mu.Unlock()
		src.Close()
		target.Close()
		return nil, &DeviceBusyError{Target: targetPath, JobID: active.ID}
	}

	copyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		TargetPath: targetPath,
		StartedAt:  time.Now(),
		bytesTotal: total,
		state:      StateRunning,
		cancelCopy: cancel,
		done:       make(chan struct{}),
	}
	e.jobs[job.ID] = job
	e.busy[targetPath] = job
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"job":    job.ID,
		"source": sourcePath,
		"target": targetPath,
		"bytes":  total,
	}).Info("imaging started")

	if e.Recorder != nil {
		e.Recorder.JobStarted(job.ID, sourcePath, targetPath, total, job.StartedAt)
	}

	go e.run(copyCtx, job, src, target)

	return job, nil
}

// Get returns the job with the given id, or nil.
func (e *Engine) Get(id string) *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jobs[id]
}

// Cancel stops the job at its next chunk boundary. Unknown or
// already-terminal jobs are a no-op: cancellation never races a
// terminal state into something else.
func (e *Engine) Cancel(id string) {
	job := e.Get(id)
	if job == nil {
		return
	}
	job.mu.Lock()
	terminal := job.state.Terminal()
	job.mu.Unlock()
	if terminal {
		return
	}
	job.cancelCopy()
}

// run owns the copy loop and both file handles. Whatever happens, the
// handles are closed, the busy slot is released, and the terminal
// state is published exactly once.
func (e *Engine) run(ctx context.Context, job *Job, src *os.File, target *os.File) {
	defer func() {
		src.Close()
		target.Close()
		e.mu.Lock()
		delete(e.busy, job.TargetPath)
		e.mu.Unlock()
		close(job.done)

		p := job.Progress()
		logrus.WithFields(logrus.Fields{
			"job":     job.ID,
			"state":   string(p.State),
			"written": p.BytesWritten,
		}).Info("imaging finished")
		if e.Recorder != nil {
			e.Recorder.JobEnded(job.ID, string(p.State), p.BytesWritten, p.Reason)
		}
	}()

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	var offset int64
	for offset < job.bytesTotal {
		// Cooperative cancellation: checked once per chunk, so a
		// cancel request completes within one chunk's worth of I/O
		if ctx.Err() != nil {
			job.setState(StateCancelled, "cancelled by caller; partial target contents are not safe to boot")
			return
		}

		want := chunkSize
		if remaining := job.bytesTotal - offset; remaining < int64(want) {
			want = int(remaining)
		}

		n, err := readChunkAt(src, buf[:want], offset)
		if err != nil {
			job.setState(StateFailed, (&IOError{Op: "read", Offset: offset, Err: err}).Error())
			return
		}

		if err := writeChunkAt(target, buf[:n], offset); err != nil {
			job.setState(StateFailed, (&IOError{Op: "write", Offset: offset, Err: err}).Error())
			return
		}

		offset += int64(n)
		job.bytesWritten.Store(offset)

		if e.chunkDelay > 0 {
			time.Sleep(e.chunkDelay)
		}
	}

	if err := unix.Fsync(int(target.Fd())); err != nil {
		job.setState(StateFailed, (&IOError{Op: "write", Offset: offset, Err: err}).Error())
		return
	}

	// Completion is strict: anything short of bytesTotal is a failure,
	// never silently reported as done
	if job.bytesWritten.Load() != job.bytesTotal {
		job.setState(StateFailed, (&IOError{
			Op:     "write",
			Offset: job.bytesWritten.Load(),
			Err:    errors.New("copy ended before reaching source size"),
		}).Error())
		return
	}

	job.setState(StateCompleted, "")
}

// readChunkAt retries short reads a bounded number of times.
func readChunkAt(src *os.File, buf []byte, offset int64) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= chunkRetries; attempt++ {
		n, err := src.ReadAt(buf, offset)
		if n == len(buf) {
			return n, nil
		}
		if err == io.EOF && n > 0 {
			return n, nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = io.ErrUnexpectedEOF
		}
	}
	return 0, lastErr
}

// writeChunkAt retries the chunk write a bounded number of times,
// resuming after partial progress.
func writeChunkAt(target *os.File, buf []byte, offset int64) error {
	written := 0
	var lastErr error
	for attempt := 0; attempt <= chunkRetries; attempt++ {
		n, err := target.WriteAt(buf[written:], offset+int64(written))
		written += n
		if written == len(buf) {
			return nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = io.ErrShortWrite
		}
	}
	return lastErr
}
