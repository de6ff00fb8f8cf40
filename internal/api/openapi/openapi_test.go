package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestLoad проверяет, что встроенный документ валиден и содержит все маршруты.
func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	for _, path := range []string{
		"/api/health",
		"/api/categories",
		"/api/datasets",
		"/api/datasets/{id}",
		"/api/datasets/{id}/download",
		"/upload/{source}/{subject}",
		"/api/ai/chat",
		"/api/ai/dataset-summary",
		"/api/ai/dataset-insights",
		"/api/ai/generate-description",
		"/api/ai/analyze",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("в документе нет пути %s", path)
		}
	}
}

// TestHandler проверяет отдачу документа в JSON.
func TestHandler(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h, err := Handler(doc)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", body["openapi"])
	}
}
