package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// SQLiteStore is the durable Task Store backing. Grounded on RevCBH/choo's
// internal/daemon/db/db.go + runs.go — the `runs` table's
// status/timestamps/config_json shape maps directly onto AgentTask's
// status/timestamps/embedded-plan-as-JSON shape.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path, enables WAL
// mode, and runs the agent_task migration.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("task: failed to open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("task: failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("task: failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS agent_task (
    id                   TEXT PRIMARY KEY,
    owner                TEXT NOT NULL,
    repo                 TEXT NOT NULL,
    issue_number         INTEGER NOT NULL,
    installation_id      INTEGER NOT NULL,
    status               TEXT NOT NULL,
    plan_json            TEXT,
    pull_request_number  INTEGER NOT NULL DEFAULT 0,
    branch_name          TEXT,
    image_type           TEXT,
    last_error           TEXT,
    created_at           DATETIME NOT NULL,
    updated_at           DATETIME NOT NULL,
    completed_at         DATETIME
);
CREATE INDEX IF NOT EXISTS idx_agent_task_installation ON agent_task(installation_id);
`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, t agentmodel.AgentTask) error {
	planJSON, err := marshalPlan(t.Plan)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO agent_task (
			id, owner, repo, issue_number, installation_id, status, plan_json,
			pull_request_number, branch_name, image_type, last_error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Owner, t.Repo, t.IssueNumber, t.InstallationID, string(t.Status), planJSON,
		t.PullRequestNumber, t.BranchName, t.ImageType, t.LastError, t.CreatedAt.UTC(), t.UpdatedAt.UTC(), completedAtArg(t),
	)
	if err != nil {
		return fmt.Errorf("task: failed to insert %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (agentmodel.AgentTask, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, owner, repo, issue_number, installation_id, status, plan_json,
		       pull_request_number, branch_name, image_type, last_error, created_at, updated_at, completed_at
		FROM agent_task WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return agentmodel.AgentTask{}, ErrNotFound
	}
	if err != nil {
		return agentmodel.AgentTask{}, fmt.Errorf("task: failed to get %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) Update(ctx context.Context, t agentmodel.AgentTask) error {
	planJSON, err := marshalPlan(t.Plan)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE agent_task SET
			owner = ?, repo = ?, issue_number = ?, installation_id = ?, status = ?,
			plan_json = ?, pull_request_number = ?, branch_name = ?, image_type = ?, last_error = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?
	`,
		t.Owner, t.Repo, t.IssueNumber, t.InstallationID, string(t.Status), planJSON,
		t.PullRequestNumber, t.BranchName, t.ImageType, t.LastError, t.UpdatedAt.UTC(), completedAtArg(t), t.ID,
	)
	if err != nil {
		return fmt.Errorf("task: failed to update %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.Create(ctx, t)
	}
	return nil
}

func (s *SQLiteStore) ListByInstallation(ctx context.Context, installationID int64) ([]agentmodel.AgentTask, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, owner, repo, issue_number, installation_id, status, plan_json,
		       pull_request_number, branch_name, image_type, last_error, created_at, updated_at, completed_at
		FROM agent_task WHERE installation_id = ?
	`, installationID)
	if err != nil {
		return nil, fmt.Errorf("task: failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []agentmodel.AgentTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("task: failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task: error iterating tasks: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (agentmodel.AgentTask, error) {
	var t agentmodel.AgentTask
	var status string
	var planJSON, branchName, imageType, lastError sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&t.ID, &t.Owner, &t.Repo, &t.IssueNumber, &t.InstallationID, &status,
		&planJSON, &t.PullRequestNumber, &branchName, &imageType, &lastError, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
		return agentmodel.AgentTask{}, err
	}

	t.Status = agentmodel.AgentTaskStatus(status)
	t.BranchName = branchName.String
	t.ImageType = imageType.String
	t.LastError = lastError.String
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	if planJSON.Valid && planJSON.String != "" {
		var plan agentmodel.AgentPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return agentmodel.AgentTask{}, fmt.Errorf("failed to deserialize plan: %w", err)
		}
		t.Plan = &plan
	}
	return t, nil
}

func marshalPlan(plan *agentmodel.AgentPlan) (*string, error) {
	if plan == nil {
		return nil, nil
	}
	b, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("task: failed to serialize plan: %w", err)
	}
	s := string(b)
	return &s, nil
}

func completedAtArg(t agentmodel.AgentTask) interface{} {
	if t.CompletedAt == nil {
		return nil
	}
	return t.CompletedAt.UTC()
}
