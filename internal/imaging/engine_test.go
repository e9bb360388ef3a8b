package imaging

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "source.img")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func writeTarget(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.img")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func waitDone(t *testing.T, job *Job) Progress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p, err := job.Wait(ctx)
	require.NoError(t, err, "job did not finish in time")
	return p
}

func TestImagingCompletes(t *testing.T) {
	source, data := writeSource(t, 256*1024+137)
	target := writeTarget(t, 512*1024)

	e := NewEngine()
	e.ChunkSize = 64 * 1024

	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	p := waitDone(t, job)
	assert.Equal(t, StateCompleted, p.State)
	assert.Equal(t, int64(len(data)), p.BytesWritten)
	assert.Equal(t, int64(len(data)), p.BytesTotal)
	assert.Empty(t, p.Reason)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got[:len(data)]), "target prefix must equal source byte for byte")
}

func TestImagingSizeMismatchFailsBeforeWriting(t *testing.T) {
	source, _ := writeSource(t, 128*1024)
	target := writeTarget(t, 64*1024)

	original, err := os.ReadFile(target)
	require.NoError(t, err)

	e := NewEngine()
	_, err = e.Start(context.Background(), source, target)
	var serr *SizeMismatchError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, int64(128*1024), serr.Source)
	assert.Equal(t, int64(64*1024), serr.Target)

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, after, "no byte may be written on a failed precondition")
}

func TestImagingSourceUnreadable(t *testing.T) {
	target := writeTarget(t, 64*1024)

	e := NewEngine()
	_, err := e.Start(context.Background(), filepath.Join(t.TempDir(), "missing.img"), target)
	var serr *SourceUnreadableError
	require.ErrorAs(t, err, &serr)
}

func TestImagingTargetBusy(t *testing.T) {
	source, _ := writeSource(t, 256*1024)
	target := writeTarget(t, 512*1024)

	e := NewEngine()
	e.ChunkSize = 4 * 1024
	e.chunkDelay = 20 * time.Millisecond

	first, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	_, err = e.Start(context.Background(), source, target)
	var busy *DeviceBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, first.ID, busy.JobID)
	assert.Equal(t, target, busy.Target)

	waitDone(t, first)

	// The slot is released once the first job is done
	second, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)
	waitDone(t, second)
}

func TestImagingCancel(t *testing.T) {
	source, _ := writeSource(t, 256*1024)
	target := writeTarget(t, 512*1024)

	e := NewEngine()
	e.ChunkSize = 4 * 1024
	e.chunkDelay = 20 * time.Millisecond

	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	e.Cancel(job.ID)

	p := waitDone(t, job)
	assert.Equal(t, StateCancelled, p.State)
	assert.Contains(t, p.Reason, "not safe to boot")
	assert.Less(t, p.BytesWritten, p.BytesTotal)
	assert.Greater(t, p.BytesWritten, int64(0), "some chunks went through before the cancel")
}

func TestImagingCancelAfterTerminalIsNoOp(t *testing.T) {
	source, _ := writeSource(t, 64*1024)
	target := writeTarget(t, 128*1024)

	e := NewEngine()
	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)
	p := waitDone(t, job)
	require.Equal(t, StateCompleted, p.State)

	e.Cancel(job.ID)
	assert.Equal(t, p, job.Progress(), "terminal state never changes")
}

func TestImagingCancelUnknownIsNoOp(t *testing.T) {
	NewEngine().Cancel("no-such-job")
}

func TestImagingProgressMonotonic(t *testing.T) {
	source, _ := writeSource(t, 128*1024)
	target := writeTarget(t, 256*1024)

	e := NewEngine()
	e.ChunkSize = 8 * 1024
	e.chunkDelay = 5 * time.Millisecond

	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	var last int64
	for !job.Progress().State.Terminal() {
		p := job.Progress()
		assert.GreaterOrEqual(t, p.BytesWritten, last)
		last = p.BytesWritten
		time.Sleep(2 * time.Millisecond)
	}
	waitDone(t, job)
}

func TestImagingGet(t *testing.T) {
	source, _ := writeSource(t, 64*1024)
	target := writeTarget(t, 128*1024)

	e := NewEngine()
	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	assert.Same(t, job, e.Get(job.ID))
	assert.Nil(t, e.Get("unknown"))
	waitDone(t, job)
}

type fakeJobRecorder struct {
	mu      sync.Mutex
	started []string
	ended   map[string]string
	written map[string]int64
	done    chan struct{}
}

func newFakeJobRecorder() *fakeJobRecorder {
	return &fakeJobRecorder{
		ended:   make(map[string]string),
		written: make(map[string]int64),
		done:    make(chan struct{}, 4),
	}
}

func (r *fakeJobRecorder) JobStarted(id, sourcePath, targetPath string, bytesTotal int64, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *fakeJobRecorder) JobEnded(id string, state string, bytesWritten int64, reason string) {
	r.mu.Lock()
	r.ended[id] = state
	r.written[id] = bytesWritten
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestImagingRecorderReceivesLifecycle(t *testing.T) {
	source, data := writeSource(t, 64*1024)
	target := writeTarget(t, 128*1024)

	rec := newFakeJobRecorder()
	e := NewEngine()
	e.Recorder = rec

	job, err := e.Start(context.Background(), source, target)
	require.NoError(t, err)

	select {
	case <-rec.done:
	case <-time.After(10 * time.Second):
		t.Fatal("recorder never saw the job end")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{job.ID}, rec.started)
	assert.Equal(t, string(StateCompleted), rec.ended[job.ID])
	assert.Equal(t, int64(len(data)), rec.written[job.ID])
}
