package history

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/bootgod/internal/bootspec"
)

// SessionRecord is one supervised session as stored in the database
type SessionRecord struct {
	ID         string
	SourceKind string
	SourcePath string
	Firmware   string
	Interface  string
	MemoryMB   int
	CPUs       int
	State      string
	ExitCode   *int
	Reason     string
	StartedAt  time.Time
	EndedAt    *time.Time
}

// SessionStarted records a new running session. Implements the vmm
// recorder; failures are logged and swallowed.
func (d *DB) SessionStarted(id, sourceKind, sourcePath string, profile *bootspec.BootProfile, startedAt time.Time) {
	_, err := d.conn.Exec(`
		INSERT INTO vm_sessions (id, source_kind, source_path, firmware, disk_interface, memory_mb, cpus, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'running', ?)
	`, id, sourceKind, sourcePath, string(profile.Firmware), string(profile.Interface),
		profile.MemoryMB, profile.CPUs, startedAt)
	if err != nil {
		logrus.WithError(err).Warn("failed to record session start")
	}
}

// SessionEnded records the terminal state of a session.
func (d *DB) SessionEnded(id string, state string, exitCode int, reason string) {
	_, err := d.conn.Exec(`
		UPDATE vm_sessions SET state = ?, exit_code = ?, reason = ?, ended_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, exitCode, reason, id)
	if err != nil {
		logrus.WithError(err).Warn("failed to record session end")
	}
}

// RecentSessions returns the most recent sessions, newest first.
func (d *DB) RecentSessions(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.conn.Query(`
		SELECT id, source_kind, source_path, firmware, disk_interface, memory_mb, cpus, state, exit_code, reason, started_at, ended_at
		FROM vm_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var firmware, iface, reason sql.NullString
		var exitCode sql.NullInt64
		var endedAt sql.NullTime

		err := rows.Scan(&rec.ID, &rec.SourceKind, &rec.SourcePath,
			&firmware, &iface, &rec.MemoryMB, &rec.CPUs,
			&rec.State, &exitCode, &reason, &rec.StartedAt, &endedAt)
		if err != nil {
			return nil, err
		}

		rec.Firmware = firmware.String
		rec.Interface = iface.String
		rec.Reason = reason.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		if endedAt.Valid {
			rec.EndedAt = &endedAt.Time
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}
