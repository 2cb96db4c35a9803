// Package postgres provides a PostgreSQL implementation of orchestrator.TraceStore.
// It uses pgx/v5 connection pooling and JSONB columns for plans and payloads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/storage"
)

// Store is a PostgreSQL-backed TraceStore. It owns its connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements orchestrator.TraceStore at compile time.
var _ orchestrator.TraceStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateRequest inserts a new request row.
func (s *Store) CreateRequest(ctx context.Context, req *api.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO requests (id, domain_id, query, session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		req.ID, req.DomainID, req.Query, nullString(req.SessionID), string(req.Status),
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting request: %w", err)
	}
	debug.Log("storage", "request created", "request_id", req.ID, "domain_id", req.DomainID)
	return nil
}

// SavePlan inserts the plan of a request. A second plan for the same
// request is a conflict.
func (s *Store) SavePlan(ctx context.Context, requestID string, plan *api.Plan) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshaling steps: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO plans (request_id, steps) VALUES ($1, $2)",
		requestID, stepsJSON,
	)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return storage.ErrConflict
		case codeForeignKeyViolation:
			return storage.ErrNotFound
		}
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

// SaveStepResult inserts one step result. The insert only happens when the
// step index is part of the saved plan.
func (s *Store) SaveStepResult(ctx context.Context, requestID string, result *api.StepResult) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO step_results (
			request_id, step_index, agent_name,
			input_payload, output_payload, status, latency_ms
		)
		SELECT $1::text, $2::int, $3::text, $4::jsonb, $5::jsonb, $6::text, $7::bigint
		WHERE EXISTS (
			SELECT 1 FROM plans
			WHERE request_id = $1::text
			  AND steps @> jsonb_build_array(jsonb_build_object('step_index', $2::int))
		)
	`,
		requestID, result.StepIndex, result.AgentName,
		jsonOrNull(result.Input), jsonOrNull(result.Output), string(result.Status), result.LatencyMs,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting step result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if ok, err := s.exists(ctx, requestID); err != nil {
			return err
		} else if !ok {
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE requests
		SET status = $2, final_answer = $3, error_message = $4, updated_at = now()
		WHERE id = $1 AND status = 'running'
	`, requestID, string(status), nullString(finalAnswer), nullString(errorMessage))
	if err != nil {
		return fmt.Errorf("finalizing request: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	row := s.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = $1", id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying request: %w", err)
	}
	return req, nil
}

// GetPlan retrieves the plan of a request.
func (s *Store) GetPlan(ctx context.Context, requestID string) (*api.Plan, error) {
	var stepsJSON []byte
	err := s.pool.QueryRow(ctx, "SELECT steps FROM plans WHERE request_id = $1", requestID).Scan(&stepsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan: %w", err)
	}

	var plan api.Plan
	if err := json.Unmarshal(stepsJSON, &plan.Steps); err != nil {
		return nil, fmt.Errorf("unmarshaling steps: %w", err)
	}
	return &plan, nil
}

// GetStepResults retrieves all step results of a request ordered by step index.
func (s *Store) GetStepResults(ctx context.Context, requestID string) ([]api.StepResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT step_index, agent_name, input_payload, output_payload, status, latency_ms
		FROM step_results
		WHERE request_id = $1
		ORDER BY step_index
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying step results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.StepResult, error) {
		var r api.StepResult
		var input, output []byte
		var status string
		if err := row.Scan(&r.StepIndex, &r.AgentName, &input, &output, &status, &r.LatencyMs); err != nil {
			return r, err
		}
		r.Input = input
		r.Output = output
		r.Status = api.StepStatus(status)
		return r, nil
	})
	if err != nil {
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
	}
	return results, nil
}

// LatestRequestID returns the most recently created request ID.
func (s *Store) LatestRequestID(ctx context.Context, domainID string) (string, error) {
	query := "SELECT id FROM requests"
	var args []any
	if domainID != "" {
		query += " WHERE domain_id = $1"
		args = append(args, domainID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"

	var id string
	err := s.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.DomainID != "" {
		where = append(where, "domain_id = "+arg(opts.DomainID))
	}
	if opts.Status != "" {
		where = append(where, "status = "+arg(string(opts.Status)))
	}
	if opts.After != "" {
		p := arg(opts.After)
		where = append(where, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM requests WHERE id = %s)", p))
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(opts.Limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	reqs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.Request, error) {
		return scanRequest(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning requests: %w", err)
	}
	return orchestrator.NewRequestList(reqs, opts.Limit), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) exists(ctx context.Context, requestID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)", requestID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking request: %w", err)
	}
	return ok, nil
}

func scanRequest(row pgx.Row) (*api.Request, error) {
	var req api.Request
	var sessionID *string
	var status string
	err := row.Scan(
		&req.ID, &req.DomainID, &req.Query, &sessionID, &status,
		&req.FinalAnswer, &req.ErrorMessage, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		req.SessionID = *sessionID
	}
	req.Status = api.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return &req, nil
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// pgCode returns the SQLSTATE of a PostgreSQL error, or "" otherwise.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// jsonOrNull substitutes JSON null for an empty payload so NOT NULL JSONB
// columns always receive a valid document.
func jsonOrNull(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
