package model

import "encoding/json"

// DatasetDraft — входные данные для создания записи.
// Поля id, uploadedAt и lastUpdated генерируются хранилищем
// и во входных данных игнорируются.
type DatasetDraft struct {
	Title              string            `json:"title"`
	Description        *string           `json:"description"`
	Category           *Category         `json:"category"`
	Tags               []string          `json:"tags"`
	Format             *string           `json:"format"`
	FileURL            *string           `json:"fileUrl"`
	FileSize           *int64            `json:"fileSize"`
	Source             *string           `json:"source"`
	License            *string           `json:"license"`
	GeographicCoverage *string           `json:"geographicCoverage"`
	TimePeriod         *TimePeriod       `json:"timePeriod"`
	UploadedBy         *string           `json:"uploadedBy"`
	DownloadCount      *int64            `json:"downloadCount"`
	ViewCount          *int64            `json:"viewCount"`
	QualityScore       *int64            `json:"qualityScore"`
	Status             *string           `json:"status"`
	Metadata           map[string]any    `json:"metadata"`
	Version            *string           `json:"version"`
	IsPublic           *bool             `json:"isPublic"`
	PreviewData        []json.RawMessage `json:"previewData"`
}

// DatasetPatch — частичное обновление записи.
// nil означает «поле не передано или передано как null»: такие поля не изменяются.
type DatasetPatch struct {
	Title              *string            `json:"title"`
	Description        *string            `json:"description"`
	Category           *Category          `json:"category"`
	Tags               *[]string          `json:"tags"`
	Format             *string            `json:"format"`
	FileURL            *string            `json:"fileUrl"`
	FileSize           *int64             `json:"fileSize"`
	Source             *string            `json:"source"`
	License            *string            `json:"license"`
	GeographicCoverage *string            `json:"geographicCoverage"`
	TimePeriod         *TimePeriod        `json:"timePeriod"`
	UploadedBy         *string            `json:"uploadedBy"`
	DownloadCount      *int64             `json:"downloadCount"`
	ViewCount          *int64             `json:"viewCount"`
	QualityScore       *int64             `json:"qualityScore"`
	Status             *string            `json:"status"`
	Metadata           *map[string]any    `json:"metadata"`
	Version            *string            `json:"version"`
	IsPublic           *bool              `json:"isPublic"`
	PreviewData        *[]json.RawMessage `json:"previewData"`
}
