// Пакет query — фильтрация, сортировка и пагинация набора записей каталога.
// Работает над срезом в памяти, без обращения к хранилищу.
package query

import (
	"errors"
	"sort"
	"strings"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// Границы пагинации.
const (
	DefaultPage  = 1
	DefaultLimit = 12
	MaxLimit     = 100
)

// Ошибки параметров пагинации.
var (
	ErrInvalidPage  = errors.New("параметр page должен быть >= 1")
	ErrInvalidLimit = errors.New("параметр limit должен быть от 1 до 100")
)

// Filter — условия отбора. Пустое поле означает «без фильтра».
// Все заданные условия объединяются через AND.
type Filter struct {
	// Search — подстрока (без учёта регистра) в title + description + tags
	Search string
	// Category — точное совпадение с category.id
	Category string
	// Format — точное совпадение с format
	Format string
	// Tag — точное вхождение в tags
	Tag string
}

// Page — параметры пагинации (page нумеруется с 1).
type Page struct {
	Page  int
	Limit int
}

// Validate проверяет границы page и limit.
func (p Page) Validate() error {
	if p.Page < 1 {
		return ErrInvalidPage
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return ErrInvalidLimit
	}
	return nil
}

// Pagination — сведения о странице в ответе.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Result — страница записей и сведения о пагинации.
type Result struct {
	Items      []model.Dataset
	Pagination Pagination
}

// Match проверяет, удовлетворяет ли запись фильтру.
func (f Filter) Match(d *model.Dataset) bool {
	if f.Search != "" {
		haystack := strings.ToLower(d.Title + " " + d.Description + " " + strings.Join(d.Tags, " "))
		if !strings.Contains(haystack, strings.ToLower(f.Search)) {
			return false
		}
	}
	if f.Category != "" && d.CategoryID() != f.Category {
		return false
	}
	if f.Format != "" && d.Format != f.Format {
		return false
	}
	if f.Tag != "" && !d.HasTag(f.Tag) {
		return false
	}
	return true
}

// Apply отбирает записи по фильтру, сортирует по uploadedAt (новые первые)
// и возвращает запрошенную страницу. Страница за пределами результата
// возвращается пустой, без ошибки.
// Параметры page должны быть предварительно проверены через Page.Validate.
func Apply(set []model.Dataset, f Filter, p Page) Result {
	filtered := make([]model.Dataset, 0, len(set))
	for i := range set {
		if f.Match(&set[i]) {
			filtered = append(filtered, set[i])
		}
	}

	// uploadedAt хранится в ISO-8601 фиксированной ширины:
	// лексикографический порядок совпадает с хронологическим
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].UploadedAt > filtered[j].UploadedAt
	})

	total := len(filtered)
	items := []model.Dataset{}

	// Номер страницы сравнивается до умножения: (page-1)*limit переполняет int
	if p.Page-1 < TotalPages(total, p.Limit) {
		start := (p.Page - 1) * p.Limit
		end := start + p.Limit
		if end > total {
			end = total
		}
		items = filtered[start:end]
	}

	return Result{
		Items: items,
		Pagination: Pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: TotalPages(total, p.Limit),
		},
	}
}

// TotalPages возвращает ceil(total/limit) или 0 для пустого результата.
func TotalPages(total, limit int) int {
	if total == 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
