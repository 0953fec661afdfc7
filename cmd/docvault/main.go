// Точка входа docvault — подсистема хранения документов кредитных заявок.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиент хранилища объектов и fallback-хранилище,
// создаёт сервисный слой и API handlers, запускает фоновую сверку
// и мониторинг зависимостей, HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/lendora/docvault/internal/api/handlers"
	"github.com/lendora/docvault/internal/config"
	"github.com/lendora/docvault/internal/database"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/server"
	"github.com/lendora/docvault/internal/service"
	"github.com/lendora/docvault/internal/storage/fallback"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("docvault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждение о дефолтном значении topologymetrics
	if os.Getenv("DV_DEPHEALTH_GROUP") == "" {
		logger.Warn("DV_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент основного хранилища объектов
	store, err := objectstore.New(
		cfg.StoreURL, cfg.StoreToken, cfg.StoreCACertPath,
		cfg.StoreTimeout, cfg.StorePutRetries, logger,
	)
	if err != nil {
		logger.Error("Ошибка создания клиента хранилища объектов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент хранилища объектов создан", slog.String("url", cfg.StoreURL))

	// 6. Fallback-хранилище на локальном диске
	local, err := fallback.New(cfg.FallbackDir)
	if err != nil {
		logger.Error("Ошибка инициализации fallback-хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Fallback-хранилище готово", slog.String("dir", local.DataDir()))

	// 7. Repositories
	docRepo := repository.NewDocumentRepository(pool)
	attemptRepo := repository.NewUploadAttemptRepository(pool)

	// 8. Services
	cache := service.NewDocumentCache(cfg.CacheSize, cfg.CacheTTL)
	uploadSvc := service.NewUploadService(
		docRepo, attemptRepo, store, local, cache,
		cfg.MaxFileSize, cfg.SignedURLTTL, logger,
	)
	recoverySvc := service.NewRecoveryCoordinator(
		docRepo, attemptRepo, store, local, cache,
		cfg.RecoveryConcurrency, logger,
	)
	scannerSvc := service.NewConsistencyScanner(
		docRepo, store, local, cfg.ScanInterval, logger,
	)
	healthSvc := service.NewHealthReporter(
		docRepo, attemptRepo, store, pool, logger,
	)

	// 9. Фоновая сверка (отключается DV_SCAN_INTERVAL=0)
	scanCtx, scanCancel := context.WithCancel(ctx)
	defer scanCancel()
	scannerSvc.Start(scanCtx)
	defer scannerSvc.Stop()

	// 10. Мониторинг зависимостей (topologymetrics).
	// Отказ инициализации не фатален: сервис работает без метрик зависимостей.
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"docvault",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.StoreURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("Мониторинг зависимостей не инициализирован",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Мониторинг зависимостей не запущен",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
		}
	}

	// 11. API handlers
	pgChecker := database.NewReadinessChecker(pool)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewDocumentsHandler(uploadSvc, recoverySvc, cfg.MaxFileSize, logger),
		handlers.NewAdminHandler(healthSvc, scannerSvc, recoverySvc, logger),
		handlers.NewHealthHandler(pgChecker, store),
		logger,
	)

	// 12. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("docvault остановлен")
}
