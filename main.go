package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetline-inc/sheetline-engine/pkg/adapters/catalog"
	"github.com/sheetline-inc/sheetline-engine/pkg/adapters/executor"
	"github.com/sheetline-inc/sheetline-engine/pkg/adapters/spreadsheet"
	"github.com/sheetline-inc/sheetline-engine/pkg/config"
	"github.com/sheetline-inc/sheetline-engine/pkg/handlers"
	"github.com/sheetline-inc/sheetline-engine/pkg/logging"
	"github.com/sheetline-inc/sheetline-engine/pkg/matching"
	"github.com/sheetline-inc/sheetline-engine/pkg/services"
	"github.com/sheetline-inc/sheetline-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("catalog_driver", cfg.Catalog.Driver),
		zap.String("catalog", logging.SanitizeConnectionString(cfg.Catalog.ConnectionString())),
		zap.Int("analysis_workers", cfg.Analysis.Workers))

	ctx := context.Background()
	catalogReader, err := catalog.New(ctx, &cfg.Catalog, logger)
	if err != nil {
		logger.Fatal("failed to connect catalog reader", zap.Error(err))
	}
	defer catalogReader.Close()

	// Row inserts go through pgx; SQL Server targets get schema analysis and
	// review, but commit stays disabled.
	var commitExec handlers.CommitExecutor
	if cfg.Catalog.Driver == "postgres" {
		exec, err := executor.New(ctx, cfg.Catalog.ConnectionString(), logger)
		if err != nil {
			logger.Fatal("failed to connect commit executor", zap.Error(err))
		}
		defer exec.Close()
		commitExec = exec
	} else {
		logger.Warn("commit disabled for catalog driver", zap.String("driver", cfg.Catalog.Driver))
	}

	session := services.NewImportSession(logger, matching.WithDigitPrefix(cfg.Analysis.DigitPrefix))
	queue := workqueue.New(logger, workqueue.WithStrategy(workqueue.NewPooledStrategy(cfg.Analysis.Workers)))
	analysis := services.NewAnalysisService(session, queue, cfg.Analysis.TopN, logger)
	reader := spreadsheet.NewReader(cfg.Analysis.SampleRows, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewImportHandler(session, analysis, reader, catalogReader, commitExec, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting sheetline-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
