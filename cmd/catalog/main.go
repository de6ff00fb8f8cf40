// Точка входа каталога открытых данных InnoCivic.
// Загружает конфигурацию, выбирает хранилище записей (JSON-документ или PostgreSQL),
// откатывает прерванные загрузки, создаёт клиент AI upstream, сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/3llimi/innocivic/catalog/internal/aiclient"
	"github.com/3llimi/innocivic/catalog/internal/api/handlers"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/api/openapi"
	"github.com/3llimi/innocivic/catalog/internal/config"
	"github.com/3llimi/innocivic/catalog/internal/database"
	"github.com/3llimi/innocivic/catalog/internal/server"
	"github.com/3llimi/innocivic/catalog/internal/service"
	"github.com/3llimi/innocivic/catalog/internal/storage/jsonstore"
	"github.com/3llimi/innocivic/catalog/internal/storage/pgstore"
	"github.com/3llimi/innocivic/catalog/internal/storage/uploads"
	"github.com/3llimi/innocivic/catalog/internal/storage/wal"
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
	logger.Info("Каталог запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("CATALOG_DEPHEALTH_GROUP") == "" {
		logger.Warn("CATALOG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx := context.Background()
	checks := map[string]handlers.ReadinessChecker{}

	// 3. Хранилище записей каталога
	var (
		store service.RecordStore
		pgDB  *sql.DB
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		store = pgstore.New(pool)
		checks["postgresql"] = database.NewReadinessChecker(pool)
	default:
		jsonStore := jsonstore.New(cfg.DataFile)
		if err := jsonStore.CheckReady(); err != nil {
			logger.Error("Хранилище записей недоступно", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = jsonStore
		checks["data_file"] = jsonStore
		logger.Info("Хранилище записей: JSON-документ", slog.String("path", jsonStore.Path()))
	}

	// 4. Дерево загрузок и журнал
	tree, err := uploads.New(cfg.FilesDir, cfg.AllowedExtensions, cfg.MaxUploadSize)
	if err != nil {
		logger.Error("Ошибка инициализации дерева загрузок", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checks["uploads"] = tree

	walEngine, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации WAL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	checks["wal"] = walEngine

	// 5. Сервисы каталога и файлов
	catalogSvc := service.NewCatalogService(store, logger)
	uploadSvc := service.NewUploadService(tree, walEngine, cfg.FilesURLPrefix, logger)
	downloadSvc := service.NewDownloadService(catalogSvc, tree, cfg.FilesURLPrefix, logger)

	// 5.1 Откат загрузок, прерванных предыдущей остановкой
	recovered, err := uploadSvc.RecoverPending()
	if err != nil {
		logger.Error("Ошибка восстановления WAL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if recovered > 0 {
		logger.Info("Прерванные загрузки откачены", slog.Int("count", recovered))
	}

	// 6. AI upstream
	aiClient := aiclient.New(aiclient.Options{
		BaseURL:       cfg.AIBaseURL,
		AuthURL:       cfg.AIAuthURL,
		AuthKey:       cfg.AIAuthKey,
		Scope:         cfg.AIScope,
		Model:         cfg.AIModel,
		Timeout:       cfg.AITimeout,
		MinInterval:   cfg.AIMinInterval,
		TLSSkipVerify: cfg.AITLSSkipVerify,
	}, logger)
	if !aiClient.Enabled() {
		logger.Warn("CATALOG_AI_AUTH_KEY не задан, AI-функции отключены")
	}
	aiSvc := service.NewAIService(
		aiClient,
		service.NewAIResponseCache(cfg.AICacheSize, cfg.AICacheTTL),
		cfg.AIHistoryLimit,
		logger,
	)

	// 7. API handlers
	healthHandler := handlers.NewHealthHandler(aiClient.Enabled(), checks)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		catalogSvc,
		uploadSvc,
		downloadSvc,
		aiSvc,
		logger,
	)

	// 8. OpenAPI документ и валидация запросов
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	specHandler, err := openapi.Handler(doc)
	if err != nil {
		logger.Error("Ошибка сериализации OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	routerOpts := server.RouterOptions{
		OpenAPI:            specHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.OpenAPIValidation {
		validator, err := middleware.OpenAPIValidator(doc, logger)
		if err != nil {
			logger.Error("Ошибка создания OpenAPI validator", slog.String("error", err.Error()))
			os.Exit(1)
		}
		routerOpts.Validator = validator
	}

	// 9. JWT middleware (опционально)
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jwtAuth.Close()
		routerOpts.Auth = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("CATALOG_JWKS_URL не задан, изменяющие операции доступны без аутентификации")
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL, JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     cfg.DephealthName,
		Group:         cfg.DephealthGroup,
		CheckInterval: cfg.DephealthCheckInterval,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWKSUrl,
	}, logger)
	switch {
	case errors.Is(dephealthErr, service.ErrNoDependencies):
		logger.Info("Внешних зависимостей нет, topologymetrics не запускается")
	case dephealthErr != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. HTTP-сервер
	router := server.NewRouter(apiHandler, logger, routerOpts)
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Каталог остановлен")
}
