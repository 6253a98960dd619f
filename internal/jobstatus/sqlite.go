package jobstatus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// SQLiteStore is the durable Job Status Store backing, grounded on RevCBH/choo's
// internal/daemon/db/runs.go `UpdateRunStatus` — which preserves a run's `started_at`
// across repeated status writes, the exact model for this store's CreatedAt-preservation
// requirement.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path, enables WAL
// mode, and runs the job_status migration.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobstatus: failed to open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jobstatus: failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jobstatus: failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS job_status (
    job_id       TEXT PRIMARY KEY,
    type         TEXT NOT NULL,
    status       TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    started_at   DATETIME,
    completed_at DATETIME,
    attempt      INTEGER NOT NULL DEFAULT 0,
    last_error   TEXT,
    result_data  BLOB,
    metadata_json TEXT
);
`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) Set(ctx context.Context, status agentmodel.BackgroundJobStatusInfo) error {
	existing, found, err := s.Get(ctx, status.JobID)
	if err != nil {
		return err
	}
	if found {
		status.CreatedAt = existing.CreatedAt
	}

	metadataJSON, err := marshalMetadata(status.Metadata)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO job_status (
			job_id, type, status, created_at, started_at, completed_at, attempt,
			last_error, result_data, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			attempt = excluded.attempt,
			last_error = excluded.last_error,
			result_data = excluded.result_data,
			metadata_json = excluded.metadata_json
	`,
		status.JobID, string(status.Type), string(status.Status), status.CreatedAt.UTC(),
		nullableTime(status.StartedAt), nullableTime(status.CompletedAt), status.Attempt,
		status.LastError, status.ResultData, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("jobstatus: failed to upsert %s: %w", status.JobID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (agentmodel.BackgroundJobStatusInfo, bool, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT job_id, type, status, created_at, started_at, completed_at, attempt,
		       last_error, result_data, metadata_json
		FROM job_status WHERE job_id = ?
	`, jobID)

	var info agentmodel.BackgroundJobStatusInfo
	var jobType, status string
	var startedAt, completedAt sql.NullTime
	var lastError sql.NullString
	var resultData []byte
	var metadataJSON sql.NullString

	err := row.Scan(&info.JobID, &jobType, &status, &info.CreatedAt, &startedAt, &completedAt,
		&info.Attempt, &lastError, &resultData, &metadataJSON)
	if err == sql.ErrNoRows {
		return agentmodel.BackgroundJobStatusInfo{}, false, nil
	}
	if err != nil {
		return agentmodel.BackgroundJobStatusInfo{}, false, fmt.Errorf("jobstatus: failed to get %s: %w", jobID, err)
	}

	info.Type = agentmodel.JobType(jobType)
	info.Status = agentmodel.BackgroundJobStatus(status)
	info.LastError = lastError.String
	info.ResultData = resultData
	if startedAt.Valid {
		ts := startedAt.Time
		info.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		info.CompletedAt = &ts
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &info.Metadata); err != nil {
			return agentmodel.BackgroundJobStatusInfo{}, false, fmt.Errorf("jobstatus: failed to deserialize metadata: %w", err)
		}
	}
	return info, true, nil
}

func marshalMetadata(m map[string]string) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("jobstatus: failed to serialize metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
