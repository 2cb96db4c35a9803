// Package sqlquery provides the query_facts capability: read-only SQL
// against the domain's PostgreSQL database.
package sqlquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/relay/pkg/tools"
)

// Name is the capability name the planner and agents refer to.
const Name = "query_facts"

// ErrNotReadOnly is returned for anything other than a single SELECT.
var ErrNotReadOnly = errors.New("only SELECT statements are allowed")

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Backend runs statements in read-only transactions and renders at most
// MaxRows rows as JSON.
type Backend struct {
	db      Beginner
	maxRows int
}

// New creates a backend over db. A non-positive maxRows defaults to 50.
func New(db Beginner, maxRows int) *Backend {
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Backend{db: db, maxRows: maxRows}
}

// Open connects a pool to dsn and verifies it with a ping. The caller owns
// the returned pool.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// Capability describes the backend as a registry entry.
func Capability(b *Backend) tools.Capability {
	return tools.Capability{
		Name:        Name,
		Description: "Run a read-only SQL query to get facts from the database. Input should be a valid SELECT statement.",
		Kind:        tools.KindSQL,
		SQL:         b,
	}
}

// Query runs one SELECT statement.
func (b *Backend) Query(ctx context.Context, statement string) (string, error) {
	stmt, err := readOnly(statement)
	if err != nil {
		return "", err
	}

	tx, err := b.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return "", fmt.Errorf("starting read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	truncated := false
	for rows.Next() {
		if len(out) == b.maxRows {
			truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("reading row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}

	if len(out) == 0 {
		return "No rows returned.", nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding rows: %w", err)
	}
	if truncated {
		return fmt.Sprintf("%s\n(truncated to %d rows)", data, b.maxRows), nil
	}
	return string(data), nil
}

// readOnly returns the statement without a trailing semicolon, or
// ErrNotReadOnly when it is not a single SELECT (or WITH ... SELECT).
func readOnly(statement string) (string, error) {
	stmt := strings.TrimSpace(statement)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" || strings.Contains(stmt, ";") {
		return "", ErrNotReadOnly
	}
	first := strings.ToUpper(strings.Fields(stmt)[0])
	if first != "SELECT" && first != "WITH" {
		return "", ErrNotReadOnly
	}
	return stmt, nil
}
