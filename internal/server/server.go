// Пакет server — HTTP-сервер каталога с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/3llimi/innocivic/catalog/internal/api/handlers"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/config"
)

// RouterOptions — необязательные компоненты маршрутизатора.
type RouterOptions struct {
	// Auth — JWT middleware для изменяющих маршрутов; nil — без аутентификации
	Auth func(http.Handler) http.Handler
	// Validator — проверка запросов по OpenAPI; nil — без проверки
	Validator func(http.Handler) http.Handler
	// OpenAPI — обработчик GET /api/openapi.json; nil — маршрут не регистрируется
	OpenAPI http.HandlerFunc
	// CORSAllowedOrigins — разрешённые origins
	CORSAllowedOrigins []string
}

// Server — HTTP-сервер каталога.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// NewRouter собирает маршруты API.
// Чтение и AI открыты; создание, изменение, удаление записей
// и загрузка файлов требуют JWT, если задан opts.Auth.
func NewRouter(h *handlers.APIHandler, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))
	if opts.Validator != nil {
		r.Use(opts.Validator)
	}

	// Служебные endpoints
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)
	r.Get("/api/health", h.APIHealth)
	if opts.OpenAPI != nil {
		r.Get("/api/openapi.json", opts.OpenAPI)
	}

	// Чтение каталога
	r.Get("/api/categories", h.ListCategories)
	r.Get("/api/datasets", h.ListDatasets)
	r.Get("/api/datasets/{id}", h.GetDataset)
	r.Get("/api/datasets/{id}/download", h.DownloadDataset)

	// AI-помощник
	r.Route("/api/ai", func(r chi.Router) {
		r.Post("/chat", h.AIChat)
		r.Post("/dataset-summary", h.AIDatasetSummary)
		r.Post("/dataset-insights", h.AIDatasetInsights)
		r.Post("/generate-description", h.AIGenerateDescription)
		r.Post("/analyze", h.AIAnalyze)
	})

	// Изменяющие операции
	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Post("/api/datasets", h.CreateDataset)
		r.Patch("/api/datasets/{id}", h.UpdateDataset)
		r.Delete("/api/datasets/{id}", h.DeleteDataset)
		r.Post("/upload/{source}/{subject}", h.UploadDataset)
	})

	return r
}

// New создаёт HTTP-сервер с указанным обработчиком.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.serve(ctx)
}

// serve обслуживает запросы до отмены ctx.
func (s *Server) serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
