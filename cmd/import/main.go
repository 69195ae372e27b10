package main

import (
	"PromptVault/internal/api/config"
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/database"
	"PromptVault/internal/pkg/logger"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/service"
	"context"
	"flag"
	log "log/slog"
	"os"
	"path/filepath"
)

// 导入旧版 JSON 元数据：
//
//	import [-dry-run] [-source-dir DIR] legacy.json
func main() {
	dryRun := flag.Bool("dry-run", false, "只做校验与换算，不写入任何数据")
	sourceDir := flag.String("source-dir", "", "旧媒体文件所在目录，默认取 JSON 文件所在目录")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Error("usage: import [-dry-run] [-source-dir DIR] legacy.json")
		os.Exit(2)
	}
	jsonPath := flag.Arg(0)

	if err := config.LoadConfig(); err != nil {
		log.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger.InitLogger()

	db, err := database.NewGormDB(&config.Cfg.DB)
	if err != nil {
		log.Error("failed to create database connection", "err", err)
		os.Exit(1)
	}
	if err = model.Migrate(db); err != nil {
		log.Error("failed to migrate database schema", "err", err)
		os.Exit(1)
	}
	if err = storage.Init(&config.Cfg.Storage); err != nil {
		log.Error("failed to initialize media storage", "err", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		log.Error("failed to read legacy json", "path", jsonPath, "err", err)
		os.Exit(1)
	}

	dir := *sourceDir
	if dir == "" {
		dir = filepath.Dir(jsonPath)
	}

	importSvc := service.NewImportService(db)
	result, err := importSvc.ImportLegacyJSON(context.Background(), data, &service.ImportOptions{
		SourceDir: dir,
		DryRun:    *dryRun,
	})
	if err != nil {
		log.Error("import failed", "err", err)
		os.Exit(1)
	}

	log.Info("import finished",
		"imported", result.Imported,
		"reconciled", result.Reconciled,
		"dry_run", result.DryRun,
	)
}
