// Пакет model — доменные модели каталога наборов данных.
// Dataset — единая структура записи каталога, используется
// как in-memory представление, как формат JSON-документа на диске
// и как тело API-ответа.
package model

import (
	"encoding/json"
	"time"
)

// Значения по умолчанию для новой записи.
const (
	DefaultFormat  = "CSV"
	DefaultStatus  = "pending"
	DefaultVersion = "1.0"
)

// Category — категория набора данных.
// Форма не валидируется: отсутствующие поля допустимы.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// TimePeriod — временной охват набора данных.
type TimePeriod struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Dataset — запись каталога.
type Dataset struct {
	// ID — уникальный идентификатор (UUID v4), неизменяемый
	ID string `json:"id"`

	// Title — название, обязательное
	Title string `json:"title"`

	Description string    `json:"description"`
	Category    *Category `json:"category"`
	Tags        []string  `json:"tags"`
	Format      string    `json:"format"`

	// FileURL — ссылка на загруженный файл (/datasets/{subject}/{source}/{date}/{filename})
	FileURL  *string `json:"fileUrl"`
	FileSize int64   `json:"fileSize"`

	Source             *string     `json:"source"`
	License            *string     `json:"license"`
	GeographicCoverage *string     `json:"geographicCoverage"`
	TimePeriod         *TimePeriod `json:"timePeriod"`
	UploadedBy         *string     `json:"uploadedBy"`

	// UploadedAt — момент создания, устанавливается один раз
	UploadedAt string `json:"uploadedAt"`
	// LastUpdated — момент последнего изменения (включая скачивание)
	LastUpdated string `json:"lastUpdated"`

	DownloadCount int64 `json:"downloadCount"`
	ViewCount     int64 `json:"viewCount"`
	QualityScore  int64 `json:"qualityScore"`

	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
	Version  string         `json:"version"`
	IsPublic bool           `json:"isPublic"`

	// PreviewData — первые строки набора в исходном виде
	PreviewData []json.RawMessage `json:"previewData"`
}

// CategoryID возвращает id категории или пустую строку, если категория не задана.
func (d *Dataset) CategoryID() string {
	if d.Category == nil {
		return ""
	}
	return d.Category.ID
}

// HasTag проверяет точное вхождение тега.
func (d *Dataset) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию записи.
// Срезы и карты копируются, чтобы изменения копии не затрагивали оригинал.
func (d Dataset) Clone() Dataset {
	out := d
	if d.Category != nil {
		c := *d.Category
		out.Category = &c
	}
	if d.Tags != nil {
		out.Tags = append([]string(nil), d.Tags...)
	}
	if d.TimePeriod != nil {
		tp := *d.TimePeriod
		out.TimePeriod = &tp
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	if d.PreviewData != nil {
		out.PreviewData = append([]json.RawMessage(nil), d.PreviewData...)
	}
	return out
}

// timestampLayout — ISO-8601 UTC фиксированной ширины.
// Фиксированная ширина дробной части сохраняет совпадение
// лексикографического и хронологического порядка.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp форматирует момент времени для полей uploadedAt/lastUpdated.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
