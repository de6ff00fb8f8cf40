package query

import "github.com/3llimi/innocivic/catalog/internal/domain/model"

// Корзина для записей без категории.
const (
	UncategorizedID   = "uncategorized"
	UncategorizedName = "Uncategorized"
)

// CategoryBucket — категория с числом принадлежащих ей наборов.
type CategoryBucket struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Icon         *string `json:"icon"`
	DatasetCount int     `json:"datasetCount"`
}

// Categories группирует записи по category.id в порядке первого появления.
// Название, описание и иконка берутся из первой записи категории.
func Categories(set []model.Dataset) []CategoryBucket {
	buckets := make([]CategoryBucket, 0)
	index := make(map[string]int)

	for i := range set {
		id := UncategorizedID
		name := UncategorizedName
		var description string
		var icon *string

		if c := set[i].Category; c != nil {
			if c.ID != "" {
				id = c.ID
			}
			if c.Name != "" {
				name = c.Name
			}
			description = c.Description
			icon = c.Icon
		}

		pos, ok := index[id]
		if !ok {
			buckets = append(buckets, CategoryBucket{
				ID:          id,
				Name:        name,
				Description: description,
				Icon:        icon,
			})
			pos = len(buckets) - 1
			index[id] = pos
		}
		buckets[pos].DatasetCount++
	}

	return buckets
}
