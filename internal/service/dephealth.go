// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Каталог мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (только backend=postgres, critical)
//   - JWKS endpoint — HTTP checker (только при включённой аутентификации, critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoDependencies — в конфигурации нет ни одной внешней зависимости.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения (DEPHEALTH_NAME)
	ServiceID string
	// Group — имя группы в метриках (CATALOG_DEPHEALTH_GROUP)
	Group string
	// CheckInterval — интервал проверки
	CheckInterval time.Duration
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil для JSON-хранилища
	DB *sql.DB
	// PGConnURL — URL PostgreSQL для лейблов (без учётных данных)
	PGConnURL string
	// JWKSURL — JWKS endpoint; пустой — аутентификация отключена
	JWKSURL string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
// Если зависимостей нет, возвращает ErrNoDependencies.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	deps := make([]dephealth.Option, 0, 2)

	if cfg.DB != nil {
		// Connection pool mode: проверка идёт через пул приложения
		deps = append(deps, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if cfg.JWKSURL != "" {
		jwksOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.JWKSURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		}
		if parsed, err := url.Parse(cfg.JWKSURL); err == nil && parsed.Path != "" {
			jwksOpts = append(jwksOpts, dephealth.WithHTTPHealthPath(parsed.Path))
		}
		deps = append(deps, dephealth.HTTP("jwks", jwksOpts...))
	}

	if len(deps) == 0 {
		return nil, ErrNoDependencies
	}

	opts := make([]dephealth.Option, 0, 1+len(deps)+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))
	opts = append(opts, deps...)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
