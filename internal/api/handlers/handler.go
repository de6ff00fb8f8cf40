// handler.go — основной обработчик API каталога.
// Объединяет health, каталог, загрузку, скачивание и AI-помощника.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/3llimi/innocivic/catalog/internal/service"
)

// maxJSONBodySize — предел размера JSON-тела запроса.
const maxJSONBodySize = 4 << 20

// APIHandler — основной обработчик API каталога.
type APIHandler struct {
	health    *HealthHandler
	catalog   *service.CatalogService
	uploads   *service.UploadService
	downloads *service.DownloadService
	ai        *service.AIService
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	catalog *service.CatalogService,
	uploads *service.UploadService,
	downloads *service.DownloadService,
	ai *service.AIService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		catalog:   catalog,
		uploads:   uploads,
		downloads: downloads,
		ai:        ai,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// APIHealth — GET /api/health.
func (h *APIHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	h.health.APIHealth(w, r)
}

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize)).Decode(dst)
}
