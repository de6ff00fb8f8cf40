// health.go — обработчики health endpoints каталога.
// /api/health — статус для front-end (включён ли AI, версия)
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилища доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3llimi/innocivic/catalog/internal/config"
	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает nil, если зависимость доступна.
	CheckReady() error
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	aiEnabled   bool
	checks      map[string]ReadinessChecker
	promHandler http.Handler
	now         func() time.Time
}

// NewHealthHandler создаёт обработчик health endpoints.
// checks — проверки readiness по именам (data_file, uploads, postgresql).
func NewHealthHandler(aiEnabled bool, checks map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		aiEnabled:   aiEnabled,
		checks:      checks,
		promHandler: promhttp.Handler(),
		now:         time.Now,
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type apiHealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	AIEnabled bool   `json:"ai_enabled"`
	Version   string `json:"version"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

const (
	serviceName = "catalog"
	statusOK    = "ok"
	statusFail  = "fail"
)

// APIHealth — GET /api/health.
func (h *HealthHandler) APIHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiHealthResponse{
		Status:    statusOK,
		Timestamp: model.FormatTimestamp(h.now()),
		AIEnabled: h.aiEnabled,
		Version:   config.Version,
	})
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Возвращает 200 или 503,
// если хотя бы одна проверка не прошла.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Status:    statusOK,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name].CheckReady(); err != nil {
			resp.Checks[name] = healthCheckResult{Status: statusFail, Message: err.Error()}
			resp.Status = statusFail
			continue
		}
		resp.Checks[name] = healthCheckResult{Status: statusOK}
	}

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}
