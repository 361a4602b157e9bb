// Package catalog reads the schema of the database sheets are imported
// into. Each supported dialect has its own reader; all of them produce the
// same point-in-time CatalogSnapshot.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/adapters/catalog/mssql"
	"github.com/sheetline-inc/sheetline-engine/pkg/adapters/catalog/postgres"
	"github.com/sheetline-inc/sheetline-engine/pkg/apperrors"
	"github.com/sheetline-inc/sheetline-engine/pkg/config"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// Reader provides point-in-time schema snapshots of the target database.
type Reader interface {
	Snapshot(ctx context.Context) (models.CatalogSnapshot, error)
	Close() error
}

// New connects a reader for the configured dialect.
func New(ctx context.Context, cfg *config.CatalogConfig, logger *zap.Logger) (Reader, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewReader(ctx, cfg.ConnectionString(), cfg.Schema, logger)
	case "mssql":
		return mssql.NewReader(cfg.ConnectionString(), cfg.Schema, logger)
	default:
		return nil, fmt.Errorf("catalog driver %q: %w", cfg.Driver, apperrors.ErrUnsupportedDialect)
	}
}
