package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/retry"
)

// DefaultSchema is introspected when none is configured.
const DefaultSchema = "public"

// SchemaDiscoverer lists the base tables of one PostgreSQL schema with their
// columns. It is the uncached schema provider behind services.SchemaCache.
type SchemaDiscoverer struct {
	pool   *pgxpool.Pool
	schema string
	retry  *retry.Config
	logger *zap.Logger
}

// NewSchemaDiscoverer creates a discoverer for schemaName.
// If logger is nil, a no-op logger is used.
func NewSchemaDiscoverer(pool *pgxpool.Pool, schemaName string, logger *zap.Logger) *SchemaDiscoverer {
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaDiscoverer{
		pool:   pool,
		schema: schemaName,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("schema-discoverer"),
	}
}

// Schema returns the introspected schema name.
func (d *SchemaDiscoverer) Schema() string {
	return d.schema
}

// GetSchema returns every base table in the schema ordered by name, with
// columns in ordinal order. Transient connection failures are retried.
func (d *SchemaDiscoverer) GetSchema(ctx context.Context) (*models.SchemaSummary, error) {
	var summary *models.SchemaSummary
	err := retry.DoIfRetryable(ctx, d.retry, func() error {
		var err error
		summary, err = d.discover(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema %q: %w", d.schema, err)
	}

	d.logger.Debug("Schema introspected",
		zap.String("schema", d.schema),
		zap.Int("tables", summary.TableCount()))
	return summary, nil
}

func (d *SchemaDiscoverer) discover(ctx context.Context) (*models.SchemaSummary, error) {
	// LEFT JOIN keeps tables that have no columns.
	const query = `
		SELECT t.table_name, c.column_name, c.data_type
		FROM information_schema.tables t
		LEFT JOIN information_schema.columns c
			ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema = $1
		  AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name, c.ordinal_position
	`

	rows, err := d.pool.Query(ctx, query, d.schema)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	summary := &models.SchemaSummary{Tables: []models.Table{}}
	for rows.Next() {
		var (
			tableName  string
			columnName *string
			dataType   *string
		)
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		n := len(summary.Tables)
		if n == 0 || summary.Tables[n-1].Name != tableName {
			summary.Tables = append(summary.Tables, models.Table{Name: tableName, Columns: []models.Column{}})
			n++
		}
		if columnName != nil {
			col := models.Column{Name: *columnName}
			if dataType != nil {
				col.Type = *dataType
			}
			summary.Tables[n-1].Columns = append(summary.Tables[n-1].Columns, col)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return summary, nil
}
