// Package sqlite provides a single-file SQLite implementation of
// orchestrator.TraceStore for local runs without a database server.
// It uses the pure-Go glebarez/go-sqlite driver through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/storage"
)

// timeLayout is fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		id            TEXT PRIMARY KEY,
		domain_id     TEXT NOT NULL,
		query         TEXT NOT NULL,
		session_id    TEXT,
		status        TEXT NOT NULL,
		final_answer  TEXT,
		error_message TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_requests_domain_created ON requests (domain_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS plans (
		request_id TEXT PRIMARY KEY REFERENCES requests (id) ON DELETE CASCADE,
		steps      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS step_results (
		request_id     TEXT NOT NULL REFERENCES requests (id) ON DELETE CASCADE,
		step_index     INTEGER NOT NULL,
		agent_name     TEXT NOT NULL,
		input_payload  TEXT NOT NULL,
		output_payload TEXT NOT NULL,
		status         TEXT NOT NULL,
		latency_ms     INTEGER,
		created_at     TEXT NOT NULL,
		PRIMARY KEY (request_id, step_index)
	);`,
}

// Store is a SQLite-backed TraceStore. It owns its *sql.DB.
type Store struct {
	db *sql.DB
}

// Ensure Store implements orchestrator.TraceStore at compile time.
var _ orchestrator.TraceStore = (*Store)(nil)

// New opens (creating if needed) the database at path and its tables.
func New(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite has a single writer; one connection serializes access and
	// keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// CreateRequest inserts a new request row.
func (s *Store) CreateRequest(ctx context.Context, req *api.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, domain_id, query, session_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.DomainID, req.Query, nullString(req.SessionID), string(req.Status),
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// SavePlan inserts the plan of a request.
func (s *Store) SavePlan(ctx context.Context, requestID string, plan *api.Plan) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshaling steps: %w", err)
	}
	ok, err := s.exists(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO plans (request_id, steps, created_at) VALUES (?, ?, ?)",
		requestID, string(stepsJSON), formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

// SaveStepResult inserts one step result for a step of the saved plan.
func (s *Store) SaveStepResult(ctx context.Context, requestID string, result *api.StepResult) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO step_results (
			request_id, step_index, agent_name,
			input_payload, output_payload, status, latency_ms, created_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (
			SELECT 1 FROM plans, json_each(plans.steps) AS step
			WHERE plans.request_id = ?
			  AND json_extract(step.value, '$.step_index') = ?
		)`,
		requestID, result.StepIndex, result.AgentName,
		payload(result.Input), payload(result.Output), string(result.Status), result.LatencyMs,
		formatTime(time.Now()),
		requestID, result.StepIndex,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting step result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting step result: %w", err)
	}
	if n == 0 {
		ok, err := s.exists(ctx, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotFound
		}
		return storage.ErrUnknownStep
	}
	return nil
}

// FinalizeRequest sets the terminal status of a running request.
func (s *Store) FinalizeRequest(ctx context.Context, requestID string, status api.RequestStatus, finalAnswer, errorMessage string) error {
	if err := api.ValidateRequestTransition(api.RequestStatusRunning, status); err != nil {
		return fmt.Errorf("finalizing request: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, final_answer = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		string(status), nullString(finalAnswer), nullString(errorMessage), formatTime(time.Now()), requestID,
	)
	if err != nil {
		return fmt.Errorf("finalizing request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalizing request: %w", err)
	}
	if n == 0 {
		ok, err := s.exists(ctx, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotFound
		}
		return storage.ErrFinalized
	}
	return nil
}

const requestColumns = `id, domain_id, query, session_id, status, final_answer, error_message, created_at, updated_at`

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*api.Request, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying request: %w", err)
	}
	return req, nil
}

// GetPlan retrieves the plan of a request.
func (s *Store) GetPlan(ctx context.Context, requestID string) (*api.Plan, error) {
	var stepsJSON string
	err := s.db.QueryRowContext(ctx, "SELECT steps FROM plans WHERE request_id = ?", requestID).Scan(&stepsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan: %w", err)
	}
	var plan api.Plan
	if err := json.Unmarshal([]byte(stepsJSON), &plan.Steps); err != nil {
		return nil, fmt.Errorf("unmarshaling steps: %w", err)
	}
	return &plan, nil
}

// GetStepResults retrieves the step results of a request ordered by step index.
func (s *Store) GetStepResults(ctx context.Context, requestID string) ([]api.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, agent_name, input_payload, output_payload, status, latency_ms
		FROM step_results
		WHERE request_id = ?
		ORDER BY step_index`, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying step results: %w", err)
	}
	defer rows.Close()

	var results []api.StepResult
	for rows.Next() {
		var r api.StepResult
		var input, output, status string
		var latency sql.NullInt64
		if err := rows.Scan(&r.StepIndex, &r.AgentName, &input, &output, &status, &latency); err != nil {
			return nil, fmt.Errorf("scanning step result: %w", err)
		}
		r.Input = json.RawMessage(input)
		r.Output = json.RawMessage(output)
		r.Status = api.StepStatus(status)
		if latency.Valid {
			ms := latency.Int64
			r.LatencyMs = &ms
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning step results: %w", err)
	}

	if len(results) == 0 {
		ok, err := s.exists(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, storage.ErrNotFound
		}
		results = []api.StepResult{}
	}
	return results, nil
}

// LatestRequestID returns the most recently created request ID.
func (s *Store) LatestRequestID(ctx context.Context, domainID string) (string, error) {
	query := "SELECT id FROM requests"
	var args []any
	if domainID != "" {
		query += " WHERE domain_id = ?"
		args = append(args, domainID)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT 1"

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying latest request: %w", err)
	}
	return id, nil
}

// ListRequests returns requests newest first with cursor pagination.
func (s *Store) ListRequests(ctx context.Context, opts orchestrator.ListOptions) (*orchestrator.RequestList, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if opts.DomainID != "" {
		where = append(where, "domain_id = ?")
		args = append(args, opts.DomainID)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.After != "" {
		where = append(where, "(created_at, rowid) < (SELECT created_at, rowid FROM requests WHERE id = ?)")
		args = append(args, opts.After)
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, opts.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var reqs []*api.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning requests: %w", err)
	}
	return orchestrator.NewRequestList(reqs, opts.Limit), nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exists(ctx context.Context, requestID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM requests WHERE id = ?)", requestID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking request: %w", err)
	}
	return ok, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*api.Request, error) {
	var req api.Request
	var sessionID, finalAnswer, errorMessage sql.NullString
	var status, createdAt, updatedAt string
	err := row.Scan(
		&req.ID, &req.DomainID, &req.Query, &sessionID, &status,
		&finalAnswer, &errorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.SessionID = sessionID.String
	req.Status = api.RequestStatus(status)
	if finalAnswer.Valid {
		req.FinalAnswer = &finalAnswer.String
	}
	if errorMessage.Valid {
		req.ErrorMessage = &errorMessage.String
	}
	if req.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if req.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &req, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func payload(b json.RawMessage) string {
	if len(b) == 0 {
		return "null"
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
