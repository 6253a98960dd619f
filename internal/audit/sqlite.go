package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// SQLiteStore is the durable Audit Log Store backing (spec §4.3). Grounded on
// RevCBH/choo's internal/daemon/db/db.go (WAL-mode modernc.org/sqlite open-and-migrate)
// and events.go (parameterized database/sql queries, timestamp-ordered listing).
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path, enables WAL
// mode, and runs the audit_log migration.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit: failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit: failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id             TEXT PRIMARY KEY,
    event_type     TEXT NOT NULL,
    timestamp      DATETIME NOT NULL,
    correlation_id TEXT NOT NULL,
    initiator      TEXT NOT NULL,
    target         TEXT NOT NULL,
    description    TEXT NOT NULL,
    data_json      TEXT,
    result         TEXT NOT NULL,
    duration_ms    INTEGER NOT NULL,
    error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_log_correlation_id ON audit_log(correlation_id);
`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) Store(ctx context.Context, entry agentmodel.AuditLog) error {
	var dataJSON *string
	if len(entry.Data) > 0 {
		b, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("audit: failed to serialize data: %w", err)
		}
		s := string(b)
		dataJSON = &s
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, event_type, timestamp, correlation_id, initiator, target,
			description, data_json, result, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, string(entry.EventType), entry.Timestamp.UTC(), entry.CorrelationID,
		entry.Initiator, entry.Target, entry.Description, dataJSON, string(entry.Result),
		entry.DurationMs, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to insert entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, filter QueryFilter) ([]agentmodel.AuditLog, error) {
	var conditions []string
	var args []interface{}

	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}
	if filter.Start != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.End.UTC())
	}

	query := "SELECT id, event_type, timestamp, correlation_id, initiator, target, description, data_json, result, duration_ms, error FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, filter.normalizedLimit())

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []agentmodel.AuditLog
	for rows.Next() {
		var e agentmodel.AuditLog
		var eventType, result string
		var dataJSON sql.NullString
		var errStr sql.NullString

		if err := rows.Scan(&e.ID, &eventType, &e.Timestamp, &e.CorrelationID, &e.Initiator,
			&e.Target, &e.Description, &dataJSON, &result, &e.DurationMs, &errStr); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		e.EventType = agentmodel.AuditEventType(eventType)
		e.Result = agentmodel.AuditResult(result)
		e.Error = errStr.String
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
				return nil, fmt.Errorf("audit: failed to deserialize data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: error iterating entries: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.conn.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: failed to read affected count: %w", err)
	}
	return int(n), nil
}
