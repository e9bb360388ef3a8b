package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/bootgod/internal/bootspec"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testProfile() *bootspec.BootProfile {
	return &bootspec.BootProfile{
		Firmware:  bootspec.FirmwareUEFI,
		Interface: bootspec.InterfaceVirtio,
		MemoryMB:  4096,
		CPUs:      4,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := testDB(t)
	started := time.Now().Add(-time.Minute)

	db.SessionStarted("sess-1", "partition", "/dev/sda2", testProfile(), started)

	records, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "sess-1", rec.ID)
	assert.Equal(t, "partition", rec.SourceKind)
	assert.Equal(t, "/dev/sda2", rec.SourcePath)
	assert.Equal(t, "uefi", rec.Firmware)
	assert.Equal(t, "virtio", rec.Interface)
	assert.Equal(t, 4096, rec.MemoryMB)
	assert.Equal(t, "running", rec.State)
	assert.Nil(t, rec.ExitCode)
	assert.Nil(t, rec.EndedAt)

	db.SessionEnded("sess-1", "exited", 0, "")

	records, err = db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec = records[0]
	assert.Equal(t, "exited", rec.State)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
	assert.NotNil(t, rec.EndedAt)
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	db := testDB(t)
	base := time.Now().Add(-time.Hour)

	db.SessionStarted("old", "image", "/isos/a.iso", testProfile(), base)
	db.SessionStarted("new", "image", "/isos/b.iso", testProfile(), base.Add(30*time.Minute))

	records, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, "old", records[1].ID)

	records, err = db.RecentSessions(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)
}

func TestJobRoundTrip(t *testing.T) {
	db := testDB(t)

	db.JobStarted("job-1", "/isos/live.iso", "/dev/sdb", 1<<20, time.Now())
	db.JobEnded("job-1", "cancelled", 512<<10, "cancelled by caller")

	records, err := db.RecentJobs(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "job-1", rec.ID)
	assert.Equal(t, "/isos/live.iso", rec.SourcePath)
	assert.Equal(t, "/dev/sdb", rec.TargetPath)
	assert.Equal(t, int64(1<<20), rec.BytesTotal)
	assert.Equal(t, int64(512<<10), rec.BytesWritten)
	assert.Equal(t, "cancelled", rec.State)
	assert.Equal(t, "cancelled by caller", rec.Reason)
	assert.NotNil(t, rec.EndedAt)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := New(path)
	require.NoError(t, err)
	db.SessionStarted("sess-1", "device", "/dev/sdb", testProfile(), time.Now())
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	records, err := db.RecentSessions(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEndUnknownIDIsSilent(t *testing.T) {
	db := testDB(t)
	db.SessionEnded("ghost", "exited", 0, "")
	db.JobEnded("ghost", "failed", 0, "boom")
}
