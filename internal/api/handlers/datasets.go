// datasets.go — обработчики записей каталога:
// список с фильтрами и пагинацией, чтение, создание, частичное обновление,
// удаление, скачивание файла и агрегат категорий.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/domain/model"
	"github.com/3llimi/innocivic/catalog/internal/domain/query"
	"github.com/3llimi/innocivic/catalog/internal/domain/records"
)

// ListDatasetsParams — параметры запроса GET /api/datasets.
type ListDatasetsParams struct {
	Page     *int    `form:"page,omitempty" json:"page,omitempty"`
	Limit    *int    `form:"limit,omitempty" json:"limit,omitempty"`
	Search   *string `form:"search,omitempty" json:"search,omitempty"`
	Category *string `form:"category,omitempty" json:"category,omitempty"`
	Format   *string `form:"format,omitempty" json:"format,omitempty"`
	Tag      *string `form:"tag,omitempty" json:"tag,omitempty"`
}

type datasetListResponse struct {
	Success    bool             `json:"success"`
	Data       []model.Dataset  `json:"data"`
	Pagination query.Pagination `json:"pagination"`
}

type datasetResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    *model.Dataset `json:"data"`
}

type categoriesResponse struct {
	Success bool                   `json:"success"`
	Data    []query.CategoryBucket `json:"data"`
	Total   int                    `json:"total"`
}

// bindListParams разбирает query-параметры списка.
func bindListParams(r *http.Request) (ListDatasetsParams, error) {
	var params ListDatasetsParams
	q := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"page", &params.Page},
		{"limit", &params.Limit},
		{"search", &params.Search},
		{"category", &params.Category},
		{"format", &params.Format},
		{"tag", &params.Tag},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return params, fmt.Errorf("некорректный параметр %s: %w", b.name, err)
		}
	}
	return params, nil
}

// ListDatasets обрабатывает GET /api/datasets.
func (h *APIHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page := query.Page{Page: query.DefaultPage, Limit: query.DefaultLimit}
	if params.Page != nil {
		page.Page = *params.Page
	}
	if params.Limit != nil {
		page.Limit = *params.Limit
	}
	if err := page.Validate(); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	filter := query.Filter{
		Search:   deref(params.Search),
		Category: deref(params.Category),
		Format:   deref(params.Format),
		Tag:      deref(params.Tag),
	}

	result, err := h.catalog.List(r.Context(), filter, page)
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения каталога")
		return
	}

	items := result.Items
	if items == nil {
		items = []model.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasetListResponse{
		Success:    true,
		Data:       items,
		Pagination: result.Pagination,
	})
}

// GetDataset обрабатывает GET /api/datasets/{id}.
func (h *APIHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, datasetResponse{Success: true, Data: rec})
}

// CreateDataset обрабатывает POST /api/datasets.
// uploadedBy по умолчанию — пользователь из JWT (если аутентификация включена).
func (h *APIHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var draft model.DatasetDraft
	if err := decodeJSON(r, &draft); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	rec, err := h.catalog.Create(r.Context(), draft, middleware.UserFromContext(r.Context()))
	if err != nil {
		h.writeCatalogError(w, "", err)
		return
	}
	writeJSON(w, http.StatusCreated, datasetResponse{
		Success: true,
		Message: "Dataset created",
		Data:    rec,
	})
}

// UpdateDataset обрабатывает PATCH /api/datasets/{id}.
// Поля, отсутствующие в теле или равные null, не изменяются.
func (h *APIHandler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch model.DatasetPatch
	if err := decodeJSON(r, &patch); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	rec, err := h.catalog.Update(r.Context(), id, patch)
	if err != nil {
		h.writeCatalogError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, datasetResponse{
		Success: true,
		Message: "Dataset updated",
		Data:    rec,
	})
}

// DeleteDataset обрабатывает DELETE /api/datasets/{id}.
func (h *APIHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeCatalogError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadDataset обрабатывает GET /api/datasets/{id}/download.
func (h *APIHandler) DownloadDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if derr := h.downloads.Serve(w, r, id); derr != nil {
		apierrors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
	}
}

// ListCategories обрабатывает GET /api/categories.
func (h *APIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.catalog.Categories(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения каталога")
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{
		Success: true,
		Data:    buckets,
		Total:   len(buckets),
	})
}

// writeCatalogError сопоставляет ошибки каталога кодам API.
func (h *APIHandler) writeCatalogError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		apierrors.NotFound(w, fmt.Sprintf("Набор данных %s не найден", id))
	case errors.Is(err, records.ErrTitleRequired):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.Error("Ошибка операции каталога",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка сохранения каталога")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
