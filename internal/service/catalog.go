// Пакет service — бизнес-логика каталога наборов данных.
// catalog.go — операции над записями: загрузка набора, изменение, сохранение.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/domain/model"
	"github.com/3llimi/innocivic/catalog/internal/domain/query"
	"github.com/3llimi/innocivic/catalog/internal/domain/records"
)

// RecordStore — хранилище набора записей каталога целиком.
// Реализации: jsonstore.Store (JSON-документ) и pgstore.Store (PostgreSQL).
type RecordStore interface {
	Load(ctx context.Context) ([]model.Dataset, error)
	Save(ctx context.Context, set []model.Dataset) error
}

// CatalogService — операции над записями каталога.
// Изменяющие операции выполняют load → mutate → save под одним мьютексом,
// поэтому параллельные запросы внутри процесса не теряют обновления.
type CatalogService struct {
	store  RecordStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

// NewCatalogService создаёт сервис каталога поверх хранилища.
func NewCatalogService(store RecordStore, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: logger.With(slog.String("component", "catalog_service")),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// List возвращает страницу записей, удовлетворяющих фильтру.
// Параметры страницы должны быть проверены вызывающим кодом.
func (s *CatalogService) List(ctx context.Context, f query.Filter, p query.Page) (query.Result, error) {
	set, err := s.load(ctx, "list")
	if err != nil {
		return query.Result{}, err
	}
	middleware.DatasetOperationsTotal.WithLabelValues("list", "success").Inc()
	return query.Apply(set, f, p), nil
}

// Get возвращает запись по id или records.ErrNotFound.
func (s *CatalogService) Get(ctx context.Context, id string) (*model.Dataset, error) {
	set, err := s.load(ctx, "get")
	if err != nil {
		return nil, err
	}

	idx, err := records.FindByID(set, id)
	if err != nil {
		middleware.DatasetOperationsTotal.WithLabelValues("get", "not_found").Inc()
		return nil, err
	}

	middleware.DatasetOperationsTotal.WithLabelValues("get", "success").Inc()
	rec := set[idx]
	return &rec, nil
}

// Categories возвращает категории с числом наборов в каждой.
func (s *CatalogService) Categories(ctx context.Context) ([]query.CategoryBucket, error) {
	set, err := s.load(ctx, "categories")
	if err != nil {
		return nil, err
	}
	return query.Categories(set), nil
}

// Create добавляет запись. uploadedBy подставляется, если draft его не задаёт.
// Пустое название — records.ErrTitleRequired.
func (s *CatalogService) Create(ctx context.Context, draft model.DatasetDraft, uploadedBy string) (*model.Dataset, error) {
	if draft.UploadedBy == nil && uploadedBy != "" {
		draft.UploadedBy = &uploadedBy
	}

	var created model.Dataset
	err := s.mutate(ctx, "create", func(set []model.Dataset, now time.Time) ([]model.Dataset, error) {
		next, rec, err := records.Insert(set, draft, now, s.newID)
		if err != nil {
			return nil, err
		}
		created = rec
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Набор данных создан",
		slog.String("id", created.ID),
		slog.String("title", created.Title),
	)
	return &created, nil
}

// Update применяет частичное обновление к записи id.
func (s *CatalogService) Update(ctx context.Context, id string, patch model.DatasetPatch) (*model.Dataset, error) {
	var updated model.Dataset
	err := s.mutate(ctx, "update", func(set []model.Dataset, now time.Time) ([]model.Dataset, error) {
		idx, err := records.FindByID(set, id)
		if err != nil {
			return nil, err
		}
		records.ApplyPartialUpdate(&set[idx], patch, now)
		updated = set[idx].Clone()
		return set, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Набор данных обновлён", slog.String("id", id))
	return &updated, nil
}

// Delete удаляет запись id.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	err := s.mutate(ctx, "delete", func(set []model.Dataset, _ time.Time) ([]model.Dataset, error) {
		return records.DeleteByID(set, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Набор данных удалён", slog.String("id", id))
	return nil
}

// RegisterDownload увеличивает downloadCount записи на единицу,
// обновляет lastUpdated и возвращает запись после изменения.
func (s *CatalogService) RegisterDownload(ctx context.Context, id string) (*model.Dataset, error) {
	var rec model.Dataset
	err := s.mutate(ctx, "download", func(set []model.Dataset, now time.Time) ([]model.Dataset, error) {
		idx, err := records.FindByID(set, id)
		if err != nil {
			return nil, err
		}
		records.IncrementDownload(&set[idx], now)
		rec = set[idx].Clone()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// load читает набор целиком. Чтение выполняется без мьютекса:
// атомарная замена документа не даёт увидеть частично записанный файл.
func (s *CatalogService) load(ctx context.Context, op string) ([]model.Dataset, error) {
	set, err := s.store.Load(ctx)
	if err != nil {
		middleware.DatasetOperationsTotal.WithLabelValues(op, "error").Inc()
		s.logger.Error("Ошибка загрузки каталога",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("загрузка каталога: %w", err)
	}
	return set, nil
}

// mutate выполняет load → fn → save под мьютексом.
// Если fn вернула ошибку, набор не сохраняется.
func (s *CatalogService) mutate(
	ctx context.Context,
	op string,
	fn func(set []model.Dataset, now time.Time) ([]model.Dataset, error),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load(ctx, op)
	if err != nil {
		return err
	}

	next, err := fn(set, s.now().UTC())
	if err != nil {
		middleware.DatasetOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return err
	}

	if err := s.store.Save(ctx, next); err != nil {
		middleware.DatasetOperationsTotal.WithLabelValues(op, "error").Inc()
		s.logger.Error("Ошибка сохранения каталога",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("сохранение каталога: %w", err)
	}

	middleware.DatasetOperationsTotal.WithLabelValues(op, "success").Inc()
	middleware.DatasetsTotal.Set(float64(len(next)))
	return nil
}

// resultLabel возвращает значение лейбла result для доменной ошибки.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return "not_found"
	case errors.Is(err, records.ErrTitleRequired):
		return "invalid"
	default:
		return "error"
	}
}
