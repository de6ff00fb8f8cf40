// Пакет records — операции над набором записей каталога.
// Функции работают с срезом, загруженным из хранилища целиком,
// и не выполняют ввод-вывод: сохранение — забота вызывающего кода.
package records

import (
	"errors"
	"strings"
	"time"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// Ошибки операций над набором записей.
var (
	// ErrNotFound — запись с указанным id отсутствует.
	ErrNotFound = errors.New("набор данных не найден")
	// ErrTitleRequired — не передано название набора.
	ErrTitleRequired = errors.New("название обязательно")
)

// maxIDAttempts — число попыток сгенерировать id, не занятый в наборе.
const maxIDAttempts = 8

// FindByID возвращает индекс записи с указанным id.
// Линейный поиск; при отсутствии возвращает ErrNotFound.
func FindByID(set []model.Dataset, id string) (int, error) {
	for i := range set {
		if set[i].ID == id {
			return i, nil
		}
	}
	return -1, ErrNotFound
}

// Insert создаёт запись из draft и добавляет её в конец набора.
// id генерируется newID и проверяется на уникальность в наборе,
// uploadedAt и lastUpdated устанавливаются в now.
func Insert(set []model.Dataset, draft model.DatasetDraft, now time.Time, newID func() string) ([]model.Dataset, model.Dataset, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return set, model.Dataset{}, ErrTitleRequired
	}

	id := newID()
	for attempt := 1; attempt < maxIDAttempts && containsID(set, id); attempt++ {
		id = newID()
	}
	if containsID(set, id) {
		return set, model.Dataset{}, errors.New("не удалось сгенерировать уникальный id")
	}

	ts := model.FormatTimestamp(now)
	rec := model.Dataset{
		ID:                 id,
		Title:              draft.Title,
		Description:        valueOr(draft.Description, ""),
		Category:           draft.Category,
		Tags:               draft.Tags,
		Format:             valueOr(draft.Format, model.DefaultFormat),
		FileURL:            draft.FileURL,
		FileSize:           valueOr(draft.FileSize, 0),
		Source:             draft.Source,
		License:            draft.License,
		GeographicCoverage: draft.GeographicCoverage,
		TimePeriod:         draft.TimePeriod,
		UploadedBy:         draft.UploadedBy,
		UploadedAt:         ts,
		LastUpdated:        ts,
		DownloadCount:      valueOr(draft.DownloadCount, 0),
		ViewCount:          valueOr(draft.ViewCount, 0),
		QualityScore:       valueOr(draft.QualityScore, 0),
		Status:             valueOr(draft.Status, model.DefaultStatus),
		Metadata:           draft.Metadata,
		Version:            valueOr(draft.Version, model.DefaultVersion),
		IsPublic:           valueOr(draft.IsPublic, true),
		PreviewData:        draft.PreviewData,
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	return append(set, rec), rec.Clone(), nil
}

// ApplyPartialUpdate перезаписывает в rec только поля, переданные в patch
// со значением, отличным от null. Остальные поля не изменяются.
// После применения lastUpdated устанавливается в now, даже если patch пуст.
//
//nolint:cyclop // по ветке на каждое поле записи
func ApplyPartialUpdate(rec *model.Dataset, patch model.DatasetPatch, now time.Time) {
	setIf(&rec.Title, patch.Title)
	setIf(&rec.Description, patch.Description)
	if patch.Category != nil {
		c := *patch.Category
		rec.Category = &c
	}
	setIf(&rec.Tags, patch.Tags)
	setIf(&rec.Format, patch.Format)
	setPtrIf(&rec.FileURL, patch.FileURL)
	setIf(&rec.FileSize, patch.FileSize)
	setPtrIf(&rec.Source, patch.Source)
	setPtrIf(&rec.License, patch.License)
	setPtrIf(&rec.GeographicCoverage, patch.GeographicCoverage)
	if patch.TimePeriod != nil {
		tp := *patch.TimePeriod
		rec.TimePeriod = &tp
	}
	setPtrIf(&rec.UploadedBy, patch.UploadedBy)
	setIf(&rec.DownloadCount, patch.DownloadCount)
	setIf(&rec.ViewCount, patch.ViewCount)
	setIf(&rec.QualityScore, patch.QualityScore)
	setIf(&rec.Status, patch.Status)
	setIf(&rec.Metadata, patch.Metadata)
	setIf(&rec.Version, patch.Version)
	setIf(&rec.IsPublic, patch.IsPublic)
	setIf(&rec.PreviewData, patch.PreviewData)

	rec.LastUpdated = model.FormatTimestamp(now)
}

// DeleteByID возвращает новый набор без записи с указанным id.
// Если запись не найдена, возвращает исходный набор и ErrNotFound.
// Исходный срез не модифицируется.
func DeleteByID(set []model.Dataset, id string) ([]model.Dataset, error) {
	idx, err := FindByID(set, id)
	if err != nil {
		return set, err
	}

	remaining := make([]model.Dataset, 0, len(set)-1)
	remaining = append(remaining, set[:idx]...)
	remaining = append(remaining, set[idx+1:]...)
	return remaining, nil
}

// IncrementDownload увеличивает счётчик скачиваний на единицу
// и обновляет lastUpdated.
func IncrementDownload(rec *model.Dataset, now time.Time) {
	rec.DownloadCount++
	rec.LastUpdated = model.FormatTimestamp(now)
}

func containsID(set []model.Dataset, id string) bool {
	_, err := FindByID(set, id)
	return err == nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// setIf присваивает *dst значение *src, если src передан.
func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// setPtrIf заменяет опциональное поле копией переданного значения.
func setPtrIf[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
