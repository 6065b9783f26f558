package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// DefaultMaxRows caps the rows read from a single result when no limit is configured.
const DefaultMaxRows = 1000

// ExecutorOptions bounds a single query.
type ExecutorOptions struct {
	StatementTimeout time.Duration // applied with SET LOCAL; zero leaves the server default
	MaxRows          int           // rows beyond this are not read
}

// QueryExecutor runs guard-approved statements against PostgreSQL.
type QueryExecutor struct {
	pool   *pgxpool.Pool
	opts   ExecutorOptions
	logger *zap.Logger
}

// NewQueryExecutor creates an executor over an existing pool.
func NewQueryExecutor(pool *pgxpool.Pool, opts ExecutorOptions, logger *zap.Logger) *QueryExecutor {
	if opts.MaxRows < 1 {
		opts.MaxRows = DefaultMaxRows
	}
	return &QueryExecutor{
		pool:   pool,
		opts:   opts,
		logger: logger.Named("query-executor"),
	}
}

// Run executes stmt in a read-only transaction that is always rolled back.
// The extended protocol pgx uses for Query accepts exactly one statement.
// Errors wrap apperrors.ErrQuery; the driver message is kept for logs only.
func (e *QueryExecutor) Run(ctx context.Context, stmt sqlguard.ValidatedSQL) (*models.QueryResult, error) {
	if stmt.IsZero() {
		return nil, fmt.Errorf("%w: statement was not validated", apperrors.ErrQuery)
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, e.fail("failed to begin read-only transaction", stmt, err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			e.logger.Warn("Rollback failed", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	if e.opts.StatementTimeout > 0 {
		setTimeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", e.opts.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, setTimeout); err != nil {
			return nil, e.fail("failed to set statement timeout", stmt, err)
		}
	}

	rows, err := tx.Query(ctx, stmt.String())
	if err != nil {
		return nil, e.fail("failed to execute query", stmt, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	fields := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		fields[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) == e.opts.MaxRows {
			truncated = true
			break
		}

		values, err := rows.Values()
		if err != nil {
			return nil, e.fail("failed to read row values", stmt, err)
		}

		// Duplicate column names keep the last value.
		rowMap := make(map[string]any, len(fields))
		for i, name := range fields {
			rowMap[name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, e.fail("error iterating rows", stmt, err)
	}

	if truncated {
		e.logger.Warn("Result truncated",
			zap.Int("max_rows", e.opts.MaxRows),
			zap.String("sql", logging.SanitizeQuery(stmt.String())))
	}

	return &models.QueryResult{
		Rows:   resultRows,
		Fields: fields,
	}, nil
}

func (e *QueryExecutor) fail(msg string, stmt sqlguard.ValidatedSQL, err error) error {
	e.logger.Error(msg,
		zap.String("sql", logging.SanitizeQuery(stmt.String())),
		zap.String("error", logging.SanitizeError(err)))
	return fmt.Errorf("%w: %s: %w", apperrors.ErrQuery, msg, err)
}
