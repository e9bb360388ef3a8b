package history

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"
)

// JobRecord is one imaging job as stored in the database
type JobRecord struct {
	ID           string
	SourcePath   string
	TargetPath   string
	BytesTotal   int64
	BytesWritten int64
	State        string
	Reason       string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// JobStarted records a new running imaging job. Implements the imaging
// recorder; failures are logged and swallowed.
func (d *DB) JobStarted(id, sourcePath, targetPath string, bytesTotal int64, startedAt time.Time) {
	_, err := d.conn.Exec(`
		INSERT INTO imaging_jobs (id, source_path, target_path, bytes_total, state, started_at)
		VALUES (?, ?, ?, ?, 'running', ?)
	`, id, sourcePath, targetPath, bytesTotal, startedAt)
	if err != nil {
		logrus.WithError(err).Warn("failed to record job start")
	}
}

// JobEnded records the terminal state of an imaging job.
func (d *DB) JobEnded(id string, state string, bytesWritten int64, reason string) {
	_, err := d.conn.Exec(`
		UPDATE imaging_jobs SET state = ?, bytes_written = ?, reason = ?, ended_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, bytesWritten, reason, id)
	if err != nil {
		logrus.WithError(err).Warn("failed to record job end")
	}
}

// RecentJobs returns the most recent imaging jobs, newest first.
func (d *DB) RecentJobs(limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.conn.Query(`
		SELECT id, source_path, target_path, bytes_total, bytes_written, state, reason, started_at, ended_at
		FROM imaging_jobs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		var rec JobRecord
		var reason sql.NullString
		var endedAt sql.NullTime

		err := rows.Scan(&rec.ID, &rec.SourcePath, &rec.TargetPath,
			&rec.BytesTotal, &rec.BytesWritten, &rec.State, &reason,
			&rec.StartedAt, &endedAt)
		if err != nil {
			return nil, err
		}

		rec.Reason = reason.String
		if endedAt.Valid {
			rec.EndedAt = &endedAt.Time
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}
