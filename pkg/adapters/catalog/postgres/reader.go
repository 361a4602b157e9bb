// Package postgres implements the catalog reader for PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// Reader reads the target schema through a pgx pool.
type Reader struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

// NewReader connects to the catalog database. The schema parameter scopes
// discovery; an empty value defaults to public.
func NewReader(ctx context.Context, connStr, schema string, logger *zap.Logger) (*Reader, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres catalog: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	return &Reader{
		pool:   pool,
		schema: schema,
		logger: logger.Named("catalog.postgres"),
	}, nil
}

// Close releases the connection pool.
func (r *Reader) Close() error {
	r.pool.Close()
	return nil
}

// Snapshot reads every base table and its columns in one pass over
// information_schema, ordered so columns land in ordinal order.
func (r *Reader) Snapshot(ctx context.Context) (models.CatalogSnapshot, error) {
	const query = `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1
		  AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, r.schema)
	if err != nil {
		return models.CatalogSnapshot{}, fmt.Errorf("query catalog columns: %w", err)
	}
	defer rows.Close()

	snapshot := models.CatalogSnapshot{Tables: make(map[string]models.CatalogTable)}
	for rows.Next() {
		var tableName string
		var col models.CatalogColumn
		if err := rows.Scan(&tableName, &col.ColumnName, &col.DataType, &col.IsNullable); err != nil {
			return models.CatalogSnapshot{}, fmt.Errorf("scan catalog column: %w", err)
		}

		table, ok := snapshot.Tables[tableName]
		if !ok {
			table = models.CatalogTable{TableName: tableName}
		}
		table.Columns = append(table.Columns, col)
		snapshot.Tables[tableName] = table
	}
	if err := rows.Err(); err != nil {
		return models.CatalogSnapshot{}, fmt.Errorf("iterate catalog columns: %w", err)
	}

	r.logger.Debug("catalog snapshot loaded",
		zap.String("schema", r.schema),
		zap.Int("tables", len(snapshot.Tables)))
	return snapshot, nil
}
