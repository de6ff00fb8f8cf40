package query

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// makeSet создаёт n записей с возрастающим uploadedAt.
func makeSet(n int) []model.Dataset {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	set := make([]model.Dataset, 0, n)
	for i := 0; i < n; i++ {
		set = append(set, model.Dataset{
			ID:         fmt.Sprintf("id-%02d", i),
			Title:      fmt.Sprintf("Набор %d", i),
			Format:     "CSV",
			Tags:       []string{},
			UploadedAt: model.FormatTimestamp(base.Add(time.Duration(i) * time.Hour)),
		})
	}
	return set
}

// TestApply_Pagination проверяет расчёт totalPages и срез страниц.
func TestApply_Pagination(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		page      int
		limit     int
		wantItems int
		wantPages int
		wantFirst string
	}{
		{name: "пустой набор", total: 0, page: 1, limit: 12, wantItems: 0, wantPages: 0},
		{name: "первая страница", total: 25, page: 1, limit: 12, wantItems: 12, wantPages: 3, wantFirst: "id-24"},
		{name: "последняя страница", total: 25, page: 3, limit: 12, wantItems: 1, wantPages: 3, wantFirst: "id-00"},
		{name: "за пределами", total: 25, page: 4, limit: 12, wantItems: 0, wantPages: 3},
		{name: "ровное деление", total: 24, page: 2, limit: 12, wantItems: 12, wantPages: 2},
		{name: "limit 100", total: 5, page: 1, limit: 100, wantItems: 5, wantPages: 1},
		{name: "огромный номер страницы", total: 3, page: math.MaxInt / 50, limit: 100, wantItems: 0, wantPages: 1},
		{name: "page MaxInt", total: 3, page: math.MaxInt, limit: 2, wantItems: 0, wantPages: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Apply(makeSet(tt.total), Filter{}, Page{Page: tt.page, Limit: tt.limit})

			if len(res.Items) != tt.wantItems {
				t.Errorf("items: ожидалось %d, получено %d", tt.wantItems, len(res.Items))
			}
			if res.Items == nil {
				t.Error("items не должен быть nil")
			}
			if res.Pagination.TotalPages != tt.wantPages {
				t.Errorf("totalPages: ожидалось %d, получено %d", tt.wantPages, res.Pagination.TotalPages)
			}
			if res.Pagination.Total != tt.total {
				t.Errorf("total: ожидалось %d, получено %d", tt.total, res.Pagination.Total)
			}
			if tt.wantFirst != "" && res.Items[0].ID != tt.wantFirst {
				t.Errorf("первая запись: ожидалась %s, получена %s", tt.wantFirst, res.Items[0].ID)
			}
		})
	}
}

// TestApply_OrderUploadedAtDesc проверяет сортировку новые-первые.
func TestApply_OrderUploadedAtDesc(t *testing.T) {
	set := []model.Dataset{
		{ID: "old", UploadedAt: "2025-01-01T00:00:00.000000Z"},
		{ID: "new", UploadedAt: "2026-06-01T00:00:00.000000Z"},
		{ID: "mid", UploadedAt: "2025-09-01T00:00:00.000000Z"},
	}

	res := Apply(set, Filter{}, Page{Page: 1, Limit: 10})

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if res.Items[i].ID != id {
			t.Errorf("позиция %d: ожидался %s, получен %s", i, id, res.Items[i].ID)
		}
	}
}

// TestFilter_SearchCaseInsensitive проверяет поиск без учёта регистра.
func TestFilter_SearchCaseInsensitive(t *testing.T) {
	set := []model.Dataset{
		{ID: "w", Title: "Water Quality Index"},
		{ID: "a", Title: "Air", Description: "Индекс качества воздуха"},
		{ID: "t", Title: "Transport", Tags: []string{"Bus", "Metro"}},
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"water quality", []string{"w"}},
		{"WATER", []string{"w"}},
		{"качества", []string{"a"}},
		{"bus metro", []string{"t"}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		res := Apply(set, Filter{Search: tt.search}, Page{Page: 1, Limit: 10})
		if len(res.Items) != len(tt.want) {
			t.Errorf("search=%q: ожидалось %d, получено %d", tt.search, len(tt.want), len(res.Items))
			continue
		}
		for i, id := range tt.want {
			if res.Items[i].ID != id {
				t.Errorf("search=%q: ожидался %s, получен %s", tt.search, id, res.Items[i].ID)
			}
		}
	}
}

// TestFilter_Combined проверяет объединение фильтров через AND.
func TestFilter_Combined(t *testing.T) {
	set := []model.Dataset{
		{ID: "1", Category: &model.Category{ID: "ecology"}, Format: "CSV", Tags: []string{"вода"}},
		{ID: "2", Category: &model.Category{ID: "ecology"}, Format: "JSON", Tags: []string{"вода"}},
		{ID: "3", Category: &model.Category{ID: "transport"}, Format: "CSV", Tags: []string{"вода"}},
		{ID: "4", Format: "CSV", Tags: []string{"воздух"}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"без фильтра", Filter{}, 4},
		{"категория", Filter{Category: "ecology"}, 2},
		{"категория отсутствует у записи", Filter{Category: "none"}, 0},
		{"формат", Filter{Format: "CSV"}, 3},
		{"формат точный", Filter{Format: "csv"}, 0},
		{"тег", Filter{Tag: "вода"}, 3},
		{"тег точный", Filter{Tag: "вод"}, 0},
		{"категория и формат", Filter{Category: "ecology", Format: "CSV"}, 1},
		{"все условия", Filter{Category: "ecology", Format: "JSON", Tag: "вода"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Apply(set, tt.filter, Page{Page: 1, Limit: 10})
			if res.Pagination.Total != tt.want {
				t.Errorf("ожидалось %d, получено %d", tt.want, res.Pagination.Total)
			}
		})
	}
}

// TestPage_Validate проверяет границы page и limit.
func TestPage_Validate(t *testing.T) {
	valid := []Page{{1, 1}, {1, 100}, {7, 12}}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("%+v: неожиданная ошибка %v", p, err)
		}
	}

	invalid := []Page{{0, 12}, {1, 0}, {1, 101}, {-1, 10}}
	for _, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Errorf("%+v: ожидалась ошибка", p)
		}
	}
}

// TestCategories проверяет агрегацию по категориям.
func TestCategories(t *testing.T) {
	icon := "leaf"
	set := []model.Dataset{
		{ID: "1", Category: &model.Category{ID: "ecology", Name: "Экология", Icon: &icon}},
		{ID: "2"},
		{ID: "3", Category: &model.Category{ID: "ecology", Name: "Экология"}},
		{ID: "4", Category: &model.Category{ID: "transport", Name: "Транспорт"}},
	}

	buckets := Categories(set)

	if len(buckets) != 3 {
		t.Fatalf("ожидалось 3 категории, получено %d", len(buckets))
	}
	if buckets[0].ID != "ecology" || buckets[0].DatasetCount != 2 {
		t.Errorf("ecology: %+v", buckets[0])
	}
	if buckets[0].Icon == nil || *buckets[0].Icon != "leaf" {
		t.Errorf("иконка категории потеряна: %+v", buckets[0])
	}
	if buckets[1].ID != UncategorizedID || buckets[1].Name != UncategorizedName || buckets[1].DatasetCount != 1 {
		t.Errorf("uncategorized: %+v", buckets[1])
	}
	if buckets[2].ID != "transport" || buckets[2].DatasetCount != 1 {
		t.Errorf("transport: %+v", buckets[2])
	}
}
