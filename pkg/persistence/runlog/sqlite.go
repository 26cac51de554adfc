package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout for a database file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite runlog: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite runlog: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			job_id TEXT NOT NULL DEFAULT '',
			statuses_json TEXT NOT NULL DEFAULT '[]',
			polls INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS jobs_by_session ON jobs(session_id, started_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS jobs_by_conversation ON jobs(conversation_id, started_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite runlog: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec JobRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite runlog: db is nil")
	}
	rec, err := normalizeRecord(rec)
	if err != nil {
		return err
	}
	statuses, err := json.Marshal(rec.Statuses)
	if err != nil {
		return errors.Wrap(err, "sqlite runlog: marshal statuses")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs(
			id, session_id, conversation_id, job_id, statuses_json, polls, outcome, message, started_at_ms, finished_at_ms
		) VALUES(?,?,?,?,?,?,?,?,?,?)
	`, rec.ID, rec.SessionID, rec.ConversationID, rec.JobID, string(statuses), rec.Polls, rec.Outcome, rec.Message, rec.StartedAtMs, rec.FinishedAtMs)
	if err != nil {
		return errors.Wrap(err, "sqlite runlog: insert job")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]JobRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite runlog: db is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.SessionID); v != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.ConversationID); v != "" {
		clauses = append(clauses, "conversation_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.Outcome); v != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, v)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, conversation_id, job_id, statuses_json, polls, outcome, message, started_at_ms, finished_at_ms
		FROM jobs
		%s
		ORDER BY started_at_ms DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite runlog: query")
	}
	defer func() { _ = rows.Close() }()

	items := []JobRecord{}
	for rows.Next() {
		var (
			item     JobRecord
			statuses string
		)
		if err := rows.Scan(
			&item.ID,
			&item.SessionID,
			&item.ConversationID,
			&item.JobID,
			&statuses,
			&item.Polls,
			&item.Outcome,
			&item.Message,
			&item.StartedAtMs,
			&item.FinishedAtMs,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite runlog: scan")
		}
		if err := json.Unmarshal([]byte(statuses), &item.Statuses); err != nil {
			return nil, errors.Wrap(err, "sqlite runlog: decode statuses")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite runlog: rows")
	}
	return items, nil
}
