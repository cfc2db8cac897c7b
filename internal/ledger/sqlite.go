package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in SQLite.
type SQLiteStore struct {
	// mu serializes counter read-modify-write across goroutines sharing db.
	mu  sync.Mutex
	db  *sql.DB
	now Clock
}

// OpenSQLite opens the database file at path and prepares the schema.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and ensures the schema.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureLedgerSchema(db); err != nil {
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

func ensureLedgerSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS incidents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			pod_name TEXT NOT NULL,
			namespace TEXT NOT NULL,
			ts INTEGER NOT NULL,
			severity TEXT NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			action_taken TEXT NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			issue_number INTEGER,
			issue_url TEXT,
			pr_number INTEGER,
			pr_url TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_incidents_pod ON incidents(namespace, pod_name);
		CREATE INDEX IF NOT EXISTS idx_incidents_ts ON incidents(ts);
		CREATE TABLE IF NOT EXISTS restart_counts (
			pod_name TEXT NOT NULL,
			namespace TEXT NOT NULL,
			count INTEGER NOT NULL,
			day TEXT NOT NULL,
			PRIMARY KEY (pod_name, namespace)
		);
	`)
	return err
}

// AddIncident inserts an incident.
func (s *SQLiteStore) AddIncident(ctx context.Context, in Incident) error {
	var issueNum, prNum sql.NullInt64
	var issueURL, prURL sql.NullString
	if in.IssueRef != nil {
		issueNum = sql.NullInt64{Int64: int64(in.IssueRef.Number), Valid: true}
		issueURL = sql.NullString{String: in.IssueRef.URL, Valid: true}
	}
	if in.PullRequestRef != nil {
		prNum = sql.NullInt64{Int64: int64(in.PullRequestRef.Number), Valid: true}
		prURL = sql.NullString{String: in.PullRequestRef.URL, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, type, pod_name, namespace, ts, severity, value, threshold,
			action_taken, resolved, issue_number, issue_url, pr_number, pr_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.ID, string(in.Type), in.PodName, in.Namespace, in.Timestamp, string(in.Severity),
		in.Metrics.Value, in.Metrics.Threshold, string(in.ActionTaken), in.Resolved,
		issueNum, issueURL, prNum, prURL,
	)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", in.ID, err)
	}
	return nil
}

// Incidents returns matching incidents newest first.
func (s *SQLiteStore) Incidents(ctx context.Context, f Filter) ([]Incident, error) {
	query := `
		SELECT id, type, pod_name, namespace, ts, severity, value, threshold,
			action_taken, resolved, issue_number, issue_url, pr_number, pr_url
		FROM incidents
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if f.Resolved != nil {
		addFilter("resolved = ?", *f.Resolved)
	}
	if f.Type != "" {
		addFilter("type = ?", string(f.Type))
	}
	if f.PodName != "" {
		addFilter("pod_name = ?", f.PodName)
	}
	if f.Namespace != "" {
		addFilter("namespace = ?", f.Namespace)
	}
	if f.Since > 0 {
		addFilter("ts >= ?", f.Since)
	}
	query += where + " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	out := make([]Incident, 0)
	for rows.Next() {
		var (
			in               Incident
			typ, sev, action string
			issueNum, prNum  sql.NullInt64
			issueURL, prURL  sql.NullString
		)
		if err := rows.Scan(
			&in.ID, &typ, &in.PodName, &in.Namespace, &in.Timestamp, &sev,
			&in.Metrics.Value, &in.Metrics.Threshold, &action, &in.Resolved,
			&issueNum, &issueURL, &prNum, &prURL,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		in.Type = policy.IssueType(typ)
		in.Severity = policy.Severity(sev)
		in.ActionTaken = ActionTaken(action)
		if issueNum.Valid {
			in.IssueRef = &Ref{Number: int(issueNum.Int64), URL: issueURL.String}
		}
		if prNum.Valid {
			in.PullRequestRef = &Ref{Number: int(prNum.Int64), URL: prURL.String}
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// RestartCount returns today's restart count, dropping a stale counter.
func (s *SQLiteStore) RestartCount(ctx context.Context, pod, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count, err := s.currentTx(ctx, tx, pod, namespace)
	if err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

func (s *SQLiteStore) currentTx(ctx context.Context, tx *sql.Tx, pod, namespace string) (int, error) {
	var count int
	var day string
	err := tx.QueryRowContext(ctx,
		`SELECT count, day FROM restart_counts WHERE pod_name = ? AND namespace = ?`,
		pod, namespace,
	).Scan(&count, &day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read restart count %s/%s: %w", namespace, pod, err)
	}
	if day != dayOf(s.now()) {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM restart_counts WHERE pod_name = ? AND namespace = ?`,
			pod, namespace,
		); err != nil {
			return 0, fmt.Errorf("reset restart count %s/%s: %w", namespace, pod, err)
		}
		return 0, nil
	}
	return count, nil
}

// IncrementRestartCount bumps today's count and returns the new value.
func (s *SQLiteStore) IncrementRestartCount(ctx context.Context, pod, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count, err := s.currentTx(ctx, tx, pod, namespace)
	if err != nil {
		return 0, err
	}
	count++
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO restart_counts (pod_name, namespace, count, day) VALUES (?, ?, ?, ?)
		ON CONFLICT(pod_name, namespace) DO UPDATE SET count = excluded.count, day = excluded.day
	`, pod, namespace, count, dayOf(s.now())); err != nil {
		return 0, fmt.Errorf("write restart count %s/%s: %w", namespace, pod, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// ClearOldRestartCounts removes counters whose day is not today.
func (s *SQLiteStore) ClearOldRestartCounts(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM restart_counts WHERE day != ?`, dayOf(s.now()))
	if err != nil {
		return 0, fmt.Errorf("clear restart counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RestartCounts returns today's counters sorted by namespace and pod.
func (s *SQLiteStore) RestartCounts(ctx context.Context) ([]RestartCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pod_name, namespace, count, day FROM restart_counts
		WHERE day = ? ORDER BY namespace, pod_name
	`, dayOf(s.now()))
	if err != nil {
		return nil, fmt.Errorf("query restart counts: %w", err)
	}
	defer rows.Close()

	out := make([]RestartCounter, 0)
	for rows.Next() {
		var c RestartCounter
		if err := rows.Scan(&c.PodName, &c.Namespace, &c.Count, &c.Day); err != nil {
			return nil, fmt.Errorf("scan restart count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
