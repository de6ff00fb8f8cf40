// Пакет prompts — шаблоны запросов к языковой модели для работы с наборами данных.
// Все шаблоны на русском языке; отсутствующие поля подставляются как «Не указано».
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Сколько строк превью попадает в разные шаблоны.
const (
	insightsPreviewRows    = 5
	descriptionPreviewRows = 3
	analysisPreviewRows    = 10
)

// Типы анализа для Analysis.
const (
	AnalysisTrends        = "trends"
	AnalysisQuality       = "quality"
	AnalysisInsights      = "insights"
	AnalysisVisualization = "visualization"
)

const notSpecified = "Не указано"

// CategoryName — название категории. В JSON принимается как строка
// или как объект категории {id, name}.
type CategoryName string

// UnmarshalJSON принимает строку или объект с полем name (или id).
func (c *CategoryName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = CategoryName(s)
		return nil
	}

	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("category: ожидалась строка или объект: %w", err)
	}
	if obj.Name != "" {
		*c = CategoryName(obj.Name)
	} else {
		*c = CategoryName(obj.ID)
	}
	return nil
}

// Period — временной охват набора.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Dataset — контекст набора данных, передаваемый клиентом в AI-запросах.
type Dataset struct {
	Title              string            `json:"title,omitempty"`
	Description        string            `json:"description,omitempty"`
	Category           CategoryName      `json:"category,omitempty"`
	Format             string            `json:"format,omitempty"`
	Source             string            `json:"source,omitempty"`
	GeographicCoverage string            `json:"geographicCoverage,omitempty"`
	TimePeriod         *Period           `json:"timePeriod,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	QualityScore       float64           `json:"qualityScore,omitempty"`
	License            string            `json:"license,omitempty"`
	UploadedBy         string            `json:"uploadedBy,omitempty"`
	DownloadCount      int64             `json:"downloadCount,omitempty"`
	ViewCount          int64             `json:"viewCount,omitempty"`
	PreviewData        []json.RawMessage `json:"previewData,omitempty"`
}

// ChatSystem возвращает системный промпт чата по набору данных.
func ChatSystem(d *Dataset) string {
	var b strings.Builder
	b.WriteString("Вы - ИИ-помощник платформы InnoCivic для работы с данными. ")
	b.WriteString("Вы помогаете пользователям анализировать датасеты, отвечать на вопросы о данных и предлагать идеи для анализа.\n\n")
	b.WriteString("Информация о датасете:\n")
	writeField(&b, "Название", d.Title)
	writeField(&b, "Описание", d.Description)
	writeCommon(&b, d)
	fmt.Fprintf(&b, "- Качество: %s/10\n", quality(d.QualityScore))
	writeField(&b, "Лицензия", d.License)
	writeField(&b, "Загружено", d.UploadedBy)
	fmt.Fprintf(&b, "- Скачиваний: %d\n", d.DownloadCount)
	fmt.Fprintf(&b, "- Просмотров: %d\n\n", d.ViewCount)
	b.WriteString(`Отвечайте на русском языке. Будьте:
- Полезны и точны
- Объясняйте сложные концепции простыми словами
- Предлагайте конкретные идеи и рекомендации
- Честны относительно ограничений данных
- Дружелюбны и профессиональны

Если пользователь задает вопрос о датасете, используйте предоставленный контекст для ответа. Если вопрос не связан с датасетом, вежливо направьте разговор обратно к теме данных.`)
	return b.String()
}

// GeneralSystem — системный промпт чата без контекста набора.
const GeneralSystem = `Вы - ИИ-помощник платформы InnoCivic для работы с открытыми городскими данными. ` +
	`Помогайте пользователям находить и понимать наборы данных, отвечайте на русском языке кратко и по делу.`

// Summary возвращает промпт краткого описания набора.
func Summary(d *Dataset) string {
	ctx, _ := json.MarshalIndent(d, "", "  ")

	return `Вы - ИИ-помощник платформы InnoCivic. Ваша задача - помогать пользователям понимать и анализировать наборы данных.

Создайте краткое, но информативное описание этого датасета на основе предоставленной информации. Описание должно быть на русском языке и включать:
- Что содержит датасет
- Его ключевые характеристики
- Потенциальную ценность для пользователей

Информация о датасете:
` + string(ctx) + `

Будьте кратки, но полезны. Не добавляйте лишнюю информацию.`
}

// Insights возвращает промпт аналитических выводов по набору и первым строкам превью.
func Insights(d *Dataset, preview []json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Проанализируйте этот набор данных и предоставьте полезные insights на русском языке.\n\n")
	b.WriteString("Информация о датасете:\n")
	writeField(&b, "Название", d.Title)
	writeField(&b, "Описание", d.Description)
	writeCommon(&b, d)
	fmt.Fprintf(&b, "- Качество: %s/10\n\n", quality(d.QualityScore))
	b.WriteString("Превью данных (первые строки):\n")
	b.WriteString(previewBlock(preview, insightsPreviewRows, "Превью данных недоступно"))
	b.WriteString(`

Пожалуйста, предоставьте:
1. Краткое описание того, что содержит этот датасет
2. Потенциальные сферы применения этих данных
3. Рекомендации по анализу
4. Возможные ограничения или предостережения
5. Предложения по визуализации

Ответьте на русском языке в структурированном формате.`)
	return b.String()
}

// Description возвращает промпт генерации описания набора (2-4 предложения).
func Description(d *Dataset, preview []json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Создайте подробное описание для этого набора данных на русском языке.\n\n")
	b.WriteString("Информация о датасете:\n")
	writeField(&b, "Название", d.Title)
	writeCommon(&b, d)
	b.WriteString("\nСтруктура данных (превью):\n")
	b.WriteString(previewBlock(preview, descriptionPreviewRows, "Структура данных недоступна"))
	b.WriteString(`

Создайте привлекательное и информативное описание, которое:
- Объясняет, что содержит датасет
- Указывает на ценность и полезность данных
- Описывает ключевые характеристики
- Упоминает потенциальные применения

Описание должно быть на русском языке и занимать 2-4 предложения.`)
	return b.String()
}

// Analysis возвращает промпт анализа указанного типа.
// Неизвестный тип даёт общий анализ.
func Analysis(d *Dataset, preview []json.RawMessage, kind string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Проанализируйте датасет и предоставьте %s на русском языке.\n\n", analysisSubject(kind))
	fmt.Fprintf(&b, "Датасет: %s\n", orDefault(d.Title))
	fmt.Fprintf(&b, "Описание: %s\n", orDefault(d.Description))
	fmt.Fprintf(&b, "Категория: %s\n", orDefault(string(d.Category)))
	fmt.Fprintf(&b, "Формат: %s\n\n", orDefault(d.Format))
	b.WriteString("Превью данных:\n")
	b.WriteString(previewBlock(preview, analysisPreviewRows, "Нет превью данных"))
	b.WriteString("\n\n")

	switch kind {
	case AnalysisTrends:
		b.WriteString("Определите основные тенденции и паттерны в данных. Какие выводы можно сделать?")
	case AnalysisQuality:
		b.WriteString("Оцените качество данных. Выявите потенциальные проблемы, пропущенные значения, аномалии.")
	case AnalysisInsights:
		b.WriteString("Предоставьте ключевые insights и интересные факты из этих данных.")
	case AnalysisVisualization:
		b.WriteString("Предложите наиболее подходящие типы визуализаций для этих данных и объясните почему.")
	default:
		b.WriteString("Предоставьте общий анализ данных.")
	}
	return b.String()
}

func analysisSubject(kind string) string {
	switch kind {
	case AnalysisTrends:
		return "анализ тенденций"
	case AnalysisQuality:
		return "оценку качества данных"
	case AnalysisInsights:
		return "ключевые выводы"
	case AnalysisVisualization:
		return "рекомендации по визуализации"
	default:
		return "общий анализ"
	}
}

// writeCommon пишет поля, общие для нескольких шаблонов.
func writeCommon(b *strings.Builder, d *Dataset) {
	writeField(b, "Категория", string(d.Category))
	writeField(b, "Формат", d.Format)
	writeField(b, "Источник", d.Source)
	writeField(b, "Географическое покрытие", d.GeographicCoverage)

	start, end := notSpecified, notSpecified
	if d.TimePeriod != nil {
		start, end = orDefault(d.TimePeriod.Start), orDefault(d.TimePeriod.End)
	}
	fmt.Fprintf(b, "- Временной период: %s - %s\n", start, end)

	tags := "Не указаны"
	if len(d.Tags) > 0 {
		tags = strings.Join(d.Tags, ", ")
	}
	fmt.Fprintf(b, "- Теги: %s\n", tags)
}

func writeField(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "- %s: %s\n", label, orDefault(value))
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}

func quality(score float64) string {
	if score == 0 {
		return notSpecified
	}
	return fmt.Sprintf("%g", score)
}

// previewBlock возвращает первые rows строк превью в виде JSON или fallback.
func previewBlock(preview []json.RawMessage, rows int, fallback string) string {
	if len(preview) == 0 {
		return fallback
	}
	if len(preview) > rows {
		preview = preview[:rows]
	}
	data, err := json.MarshalIndent(preview, "", "  ")
	if err != nil {
		return fallback
	}
	return string(data)
}
