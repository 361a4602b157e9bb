// Package mssql implements the catalog reader for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// Reader reads the target schema through database/sql.
type Reader struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// NewReader opens a SQL Server connection for catalog discovery. The schema
// parameter scopes discovery; an empty value defaults to dbo.
func NewReader(connStr, schema string, logger *zap.Logger) (*Reader, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to mssql catalog: %w", err)
	}
	if schema == "" {
		schema = "dbo"
	}
	return &Reader{
		db:     db,
		schema: schema,
		logger: logger.Named("catalog.mssql"),
	}, nil
}

// Close releases the connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Snapshot reads every user table and its columns from the system views,
// ordered so columns land in column_id order.
func (r *Reader) Snapshot(ctx context.Context) (models.CatalogSnapshot, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    t.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable
	FROM sys.tables t
	INNER JOIN sys.columns c ON c.object_id = t.object_id
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE t.is_ms_shipped = 0
	  AND SCHEMA_NAME(t.schema_id) = @schema
	ORDER BY t.name, c.column_id
	`

	rows, err := r.db.QueryContext(ctx, query, sql.Named("schema", r.schema))
	if err != nil {
		return models.CatalogSnapshot{}, fmt.Errorf("query catalog columns: %w", err)
	}
	defer rows.Close()

	snapshot := models.CatalogSnapshot{Tables: make(map[string]models.CatalogTable)}
	for rows.Next() {
		var tableName string
		var col models.CatalogColumn
		var nullable int
		if err := rows.Scan(&tableName, &col.ColumnName, &col.DataType, &nullable); err != nil {
			return models.CatalogSnapshot{}, fmt.Errorf("scan catalog column: %w", err)
		}
		col.IsNullable = nullable == 1

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
