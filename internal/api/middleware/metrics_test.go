package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue читает текущее значение счётчика.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("чтение метрики: %v", err)
	}
	return m.GetCounter().GetValue()
}

// TestMetricsMiddleware_RoutePattern проверяет, что лейбл path — шаблон маршрута.
func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/api/datasets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/datasets/{id}", "404")
	before := counterValue(t, counter)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/datasets/"+id, nil))
	}

	if got := counterValue(t, counter) - before; got != 3 {
		t.Errorf("ожидалось 3 запроса с шаблоном пути, получено %v", got)
	}
}

// TestRoutePattern_Unmatched проверяет значение для запроса без контекста chi.
func TestRoutePattern_Unmatched(t *testing.T) {
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != unmatchedPath {
		t.Errorf("ожидалось %q, получено %q", unmatchedPath, got)
	}
}

// TestResponseWriter_FirstStatusWins проверяет фиксацию первого статуса.
func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rw.statusCode)
	}
	if rw.written != 2 {
		t.Errorf("ожидалось 2 байта, получено %d", rw.written)
	}
}
