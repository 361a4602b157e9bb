package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/logging"
	"github.com/sheetline-inc/sheetline-engine/pkg/models"
)

// ResultReporter receives the outcome of each committed sheet.
type ResultReporter = func(sheetName string, ok bool, message string)

// Executor applies commit plans to a PostgreSQL target.
type Executor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects an executor to the target database.
func New(ctx context.Context, connStr string, logger *zap.Logger) (*Executor, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect executor: %w", err)
	}
	return &Executor{
		pool:   pool,
		logger: logger.Named("executor"),
	}, nil
}

// Close releases the connection pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}

// Apply executes a commit plan: all schema proposals in one transaction,
// then each sheet's rows in its own transaction. A failing sheet is rolled
// back and reported without stopping the remaining sheets; a failure in the
// proposal phase aborts the whole commit since inserts depend on it.
func (e *Executor) Apply(ctx context.Context, plan models.CommitPlan, report ResultReporter) error {
	if err := e.applyProposals(ctx, plan.Proposals); err != nil {
		for _, sheet := range plan.Sheets {
			report(sheet.SheetName, false, logging.SanitizeError(err))
		}
		return err
	}

	for _, sheet := range plan.Sheets {
		if err := e.applySheet(ctx, sheet); err != nil {
			e.logger.Error("sheet commit failed",
				zap.String("sheet", sheet.SheetName),
				zap.String("table", sheet.TargetTable),
				zap.String("error", logging.SanitizeError(err)))
			report(sheet.SheetName, false, logging.SanitizeError(err))
			continue
		}
		e.logger.Info("sheet committed",
			zap.String("sheet", sheet.SheetName),
			zap.String("table", sheet.TargetTable),
			zap.Int("rows", len(sheet.Rows)))
		report(sheet.SheetName, true, "")
	}
	return nil
}

func (e *Executor) applyProposals(ctx context.Context, proposals []models.SchemaProposal) error {
	if len(proposals) == 0 {
		return nil
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin proposal transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range proposals {
		stmt, err := RenderProposal(p)
		if err != nil {
			return err
		}
		e.logger.Debug("applying schema proposal", zap.String("statement", logging.SanitizeStatement(stmt)))
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply proposal %s: %w", p.Key(), err)
		}
	}

	return tx.Commit(ctx)
}

func (e *Executor) applySheet(ctx context.Context, sheet models.ApprovedSheet) error {
	if len(sheet.Rows) == 0 {
		return nil
	}

	stmt, err := RenderInsert(sheet.TargetTable, sheet.ColumnOrder)
	if err != nil {
		return err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sheet transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, row := range sheet.Rows {
		args := make([]any, len(sheet.ColumnOrder))
		for j, col := range sheet.ColumnOrder {
			args[j] = row[col]
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i+1, sheet.TargetTable, err)
		}
	}

	return tx.Commit(ctx)
}
