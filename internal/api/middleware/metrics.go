// metrics.go — Prometheus метрики каталога.
// HTTP: catalog_http_requests_total, catalog_http_request_duration_seconds.
// Бизнес-метрики: операции с наборами, загрузки, скачивания, вызовы AI.
// Лейбл path берётся из шаблона маршрута chi, что ограничивает кардинальность.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedPath — значение лейбла path для запросов вне таблицы маршрутов.
const unmatchedPath = "unmatched"

// HTTP метрики каталога
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Общее количество HTTP-запросов к каталогу",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к каталогу в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики
var (
	// DatasetOperationsTotal — операции над записями каталога по типу и результату.
	DatasetOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_dataset_operations_total",
			Help: "Количество операций над наборами данных",
		},
		[]string{"operation", "result"},
	)

	// DatasetsTotal — число записей в каталоге после последнего сохранения.
	DatasetsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_datasets",
			Help: "Количество наборов данных в каталоге",
		},
	)

	// UploadsTotal — загрузки файлов по результату.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_uploads_total",
			Help: "Количество загрузок файлов",
		},
		[]string{"result"},
	)

	// UploadBytesTotal — суммарный объём успешно загруженных файлов.
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_upload_bytes_total",
			Help: "Объём успешно загруженных файлов в байтах",
		},
	)

	// DownloadBytesTotal — объём отданных файлов.
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_download_bytes_total",
			Help: "Объём отданных файлов в байтах",
		},
	)

	// AIRequestsTotal — вызовы AI по операции и результату.
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ai_requests_total",
			Help: "Количество запросов к AI-сервису",
		},
		[]string{"operation", "result"},
	)

	// AIRequestDuration — длительность обработки AI-запроса, включая ожидание лимитера.
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_ai_request_duration_seconds",
			Help:    "Длительность AI-запросов в секундах",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"operation"},
	)

	// AICacheTotal — обращения к кэшу AI-ответов (hit/miss).
	AICacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ai_cache_total",
			Help: "Обращения к кэшу AI-ответов",
		},
		[]string{"result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого маршрута.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)
			path := routePattern(r)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// routePattern возвращает шаблон маршрута chi (/api/datasets/{id}).
// Шаблон известен только после маршрутизации, поэтому читается после next.ServeHTTP.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedPath
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedPath
}
