package records

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// sequenceIDs возвращает генератор id, выдающий значения по порядку.
func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func strPtr(s string) *string { return &s }

// TestInsert_Defaults проверяет значения по умолчанию и генерацию служебных полей.
func TestInsert_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	set, rec, err := Insert(nil, model.DatasetDraft{Title: "Качество воды"}, now, sequenceIDs("id-1"))
	if err != nil {
		t.Fatalf("Insert() вернул ошибку: %v", err)
	}

	if len(set) != 1 {
		t.Fatalf("размер набора: ожидалось 1, получено %d", len(set))
	}
	if rec.ID != "id-1" {
		t.Errorf("ID = %q, ожидался id-1", rec.ID)
	}
	if rec.UploadedAt != rec.LastUpdated {
		t.Errorf("uploadedAt (%s) != lastUpdated (%s)", rec.UploadedAt, rec.LastUpdated)
	}
	if rec.UploadedAt != "2026-03-01T10:00:00.000000Z" {
		t.Errorf("uploadedAt = %s", rec.UploadedAt)
	}
	if rec.Format != model.DefaultFormat {
		t.Errorf("Format = %q, ожидался %q", rec.Format, model.DefaultFormat)
	}
	if rec.Status != model.DefaultStatus {
		t.Errorf("Status = %q, ожидался %q", rec.Status, model.DefaultStatus)
	}
	if rec.Version != model.DefaultVersion {
		t.Errorf("Version = %q, ожидался %q", rec.Version, model.DefaultVersion)
	}
	if !rec.IsPublic {
		t.Error("IsPublic по умолчанию должен быть true")
	}
	if rec.Tags == nil || len(rec.Tags) != 0 {
		t.Errorf("Tags должен быть пустым срезом, получено %#v", rec.Tags)
	}
	if rec.Metadata == nil {
		t.Error("Metadata должен быть пустой картой, а не nil")
	}
}

// TestInsert_TitleRequired проверяет отказ без названия.
func TestInsert_TitleRequired(t *testing.T) {
	existing := []model.Dataset{{ID: "a", Title: "A"}}

	for _, title := range []string{"", "   "} {
		set, _, err := Insert(existing, model.DatasetDraft{Title: title}, time.Now(), sequenceIDs("x"))
		if !errors.Is(err, ErrTitleRequired) {
			t.Errorf("title=%q: ожидалась ErrTitleRequired, получено %v", title, err)
		}
		if len(set) != 1 {
			t.Errorf("title=%q: набор не должен изменяться", title)
		}
	}
}

// TestInsert_UniqueID проверяет повторную генерацию id при коллизии.
func TestInsert_UniqueID(t *testing.T) {
	existing := []model.Dataset{{ID: "dup", Title: "A"}}

	set, rec, err := Insert(existing, model.DatasetDraft{Title: "B"}, time.Now(), sequenceIDs("dup", "fresh"))
	if err != nil {
		t.Fatalf("Insert() вернул ошибку: %v", err)
	}
	if rec.ID != "fresh" {
		t.Errorf("ID = %q, ожидался fresh", rec.ID)
	}

	seen := map[string]bool{}
	for _, d := range set {
		if seen[d.ID] {
			t.Fatalf("id %s встречается дважды", d.ID)
		}
		seen[d.ID] = true
	}
}

// TestInsert_ManyUnique проверяет уникальность id на серии вставок.
func TestInsert_ManyUnique(t *testing.T) {
	var set []model.Dataset
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}

	for i := 0; i < 50; i++ {
		var err error
		set, _, err = Insert(set, model.DatasetDraft{Title: "t"}, time.Now(), gen)
		if err != nil {
			t.Fatalf("Insert() #%d вернул ошибку: %v", i, err)
		}
	}

	seen := map[string]bool{}
	for _, d := range set {
		if seen[d.ID] {
			t.Fatalf("id %s встречается дважды", d.ID)
		}
		seen[d.ID] = true
	}
}

// TestApplyPartialUpdate_OnlySuppliedFields проверяет, что пропущенные
// и null-поля не затираются.
func TestApplyPartialUpdate_OnlySuppliedFields(t *testing.T) {
	rec := model.Dataset{
		ID:          "id-1",
		Title:       "Старое название",
		Description: "Описание",
		Tags:        []string{"вода"},
		Format:      "CSV",
		Source:      strPtr("Минприроды"),
		UploadedAt:  "2026-01-01T00:00:00.000000Z",
		LastUpdated: "2026-01-01T00:00:00.000000Z",
		Metadata:    map[string]any{"rows": float64(10)},
	}

	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	ApplyPartialUpdate(&rec, model.DatasetPatch{Title: strPtr("Новое название")}, now)

	if rec.Title != "Новое название" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Description != "Описание" {
		t.Errorf("Description изменился: %q", rec.Description)
	}
	if rec.Source == nil || *rec.Source != "Минприроды" {
		t.Errorf("Source изменился: %v", rec.Source)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "вода" {
		t.Errorf("Tags изменились: %v", rec.Tags)
	}
	if rec.Metadata["rows"] != float64(10) {
		t.Errorf("Metadata изменились: %v", rec.Metadata)
	}
	if rec.UploadedAt != "2026-01-01T00:00:00.000000Z" {
		t.Errorf("UploadedAt не должен меняться: %s", rec.UploadedAt)
	}
	if rec.LastUpdated != model.FormatTimestamp(now) {
		t.Errorf("LastUpdated = %s, ожидался %s", rec.LastUpdated, model.FormatTimestamp(now))
	}
}

// TestApplyPartialUpdate_ZeroValues проверяет, что явно переданные нулевые
// значения (пустая строка, false, 0) применяются.
func TestApplyPartialUpdate_ZeroValues(t *testing.T) {
	rec := model.Dataset{Description: "текст", IsPublic: true, QualityScore: 80}

	empty := ""
	off := false
	zero := int64(0)
	ApplyPartialUpdate(&rec, model.DatasetPatch{
		Description:  &empty,
		IsPublic:     &off,
		QualityScore: &zero,
	}, time.Now())

	if rec.Description != "" || rec.IsPublic || rec.QualityScore != 0 {
		t.Errorf("нулевые значения не применены: %+v", rec)
	}
}

// TestDeleteByID проверяет удаление и отказ для несуществующего id.
func TestDeleteByID(t *testing.T) {
	set := []model.Dataset{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	remaining, err := DeleteByID(set, "b")
	if err != nil {
		t.Fatalf("DeleteByID() вернул ошибку: %v", err)
	}
	if len(remaining) != 2 || remaining[0].ID != "a" || remaining[1].ID != "c" {
		t.Errorf("неожиданный результат: %+v", remaining)
	}
	if len(set) != 3 || set[1].ID != "b" {
		t.Error("исходный набор не должен изменяться")
	}

	same, err := DeleteByID(set, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
	if len(same) != 3 {
		t.Errorf("набор изменился при удалении несуществующей записи: %d", len(same))
	}
}

// TestIncrementDownload проверяет счётчик скачиваний.
func TestIncrementDownload(t *testing.T) {
	rec := model.Dataset{DownloadCount: 4, LastUpdated: "2026-01-01T00:00:00.000000Z"}
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)

	IncrementDownload(&rec, now)

	if rec.DownloadCount != 5 {
		t.Errorf("DownloadCount = %d, ожидалось 5", rec.DownloadCount)
	}
	if rec.LastUpdated != model.FormatTimestamp(now) {
		t.Errorf("LastUpdated = %s", rec.LastUpdated)
	}
}
