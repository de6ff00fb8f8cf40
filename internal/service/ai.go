// ai.go — сервис AI-помощника: чат по набору данных и одноразовые задачи
// (краткое описание, выводы, генерация описания, анализ).
// Одноразовые ответы кэшируются; одинаковые параллельные запросы
// объединяются в один вызов upstream.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/aiclient"
	"github.com/3llimi/innocivic/catalog/internal/prompts"
)

// Операции AI (значения лейбла operation в метриках).
const (
	AIOpChat        = "chat"
	AIOpSummary     = "summary"
	AIOpInsights    = "insights"
	AIOpDescription = "description"
	AIOpAnalysis    = "analysis"
)

// Completer — клиент chat API.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, messages []aiclient.Message) (*aiclient.Completion, error)
}

// AIResult — ответ модели.
type AIResult struct {
	Text  string
	Model string
	Usage *aiclient.Usage
}

// ServiceError — ошибка сервиса с HTTP-кодом.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AIService — сервис AI-помощника.
type AIService struct {
	client       Completer
	cache        *AIResponseCache
	historyLimit int
	group        singleflight.Group
	logger       *slog.Logger
}

// NewAIService создаёт сервис. historyLimit — сколько последних сообщений
// диалога передаётся модели вместе с системным промптом.
func NewAIService(client Completer, cache *AIResponseCache, historyLimit int, logger *slog.Logger) *AIService {
	return &AIService{
		client:       client,
		cache:        cache,
		historyLimit: historyLimit,
		logger:       logger.With(slog.String("component", "ai_service")),
	}
}

// Enabled возвращает true, если upstream настроен.
func (s *AIService) Enabled() bool {
	return s.client.Enabled()
}

// Chat отвечает на диалог. Системный промпт: systemPrompt, если задан,
// иначе промпт по набору datasetCtx, иначе общий. Модели передаются
// только последние historyLimit сообщений.
func (s *AIService) Chat(
	ctx context.Context,
	messages []aiclient.Message,
	datasetCtx *prompts.Dataset,
	systemPrompt string,
) (*AIResult, *ServiceError) {
	if len(messages) == 0 {
		return nil, validationError("Список сообщений пуст")
	}
	for i, m := range messages {
		switch m.Role {
		case aiclient.RoleUser, aiclient.RoleAssistant, aiclient.RoleSystem:
		default:
			return nil, validationError(fmt.Sprintf("Недопустимая роль сообщения %d: %q", i, m.Role))
		}
	}

	system := systemPrompt
	if system == "" {
		if datasetCtx != nil {
			system = prompts.ChatSystem(datasetCtx)
		} else {
			system = prompts.GeneralSystem
		}
	}

	history := messages
	if s.historyLimit > 0 && len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	conversation := make([]aiclient.Message, 0, len(history)+1)
	conversation = append(conversation, aiclient.Message{Role: aiclient.RoleSystem, Content: system})
	conversation = append(conversation, history...)

	start := time.Now()
	completion, err := s.client.Complete(ctx, conversation)
	s.observe(AIOpChat, start, err)
	if err != nil {
		return nil, s.serviceError(AIOpChat, err)
	}

	return &AIResult{
		Text:  completion.Content,
		Model: completion.Model,
		Usage: completion.Usage,
	}, nil
}

// DatasetSummary возвращает краткое описание набора.
func (s *AIService) DatasetSummary(ctx context.Context, d *prompts.Dataset) (*AIResult, *ServiceError) {
	if d == nil {
		return nil, validationError("Не передан набор данных")
	}
	return s.oneShot(ctx, AIOpSummary, prompts.Summary(d))
}

// DatasetInsights возвращает аналитические выводы по набору.
// Если preview пуст, используется previewData набора.
func (s *AIService) DatasetInsights(ctx context.Context, d *prompts.Dataset, preview []json.RawMessage) (*AIResult, *ServiceError) {
	if d == nil {
		return nil, validationError("Не передан набор данных")
	}
	return s.oneShot(ctx, AIOpInsights, prompts.Insights(d, previewOf(d, preview)))
}

// GenerateDescription генерирует описание набора.
func (s *AIService) GenerateDescription(ctx context.Context, d *prompts.Dataset, preview []json.RawMessage) (*AIResult, *ServiceError) {
	if d == nil {
		return nil, validationError("Не передан набор данных")
	}
	return s.oneShot(ctx, AIOpDescription, prompts.Description(d, previewOf(d, preview)))
}

// Analyze выполняет анализ указанного типа (trends, quality, insights, visualization).
func (s *AIService) Analyze(ctx context.Context, d *prompts.Dataset, preview []json.RawMessage, kind string) (*AIResult, *ServiceError) {
	if d == nil {
		return nil, validationError("Не передан набор данных")
	}
	return s.oneShot(ctx, AIOpAnalysis, prompts.Analysis(d, previewOf(d, preview), kind))
}

// oneShot отправляет промпт одним сообщением пользователя.
// Ответ берётся из кэша, если есть; параллельные одинаковые
// запросы ждут один общий вызов upstream.
func (s *AIService) oneShot(ctx context.Context, op, prompt string) (*AIResult, *ServiceError) {
	if !s.client.Enabled() {
		s.observe(op, time.Now(), aiclient.ErrNotConfigured)
		return nil, s.serviceError(op, aiclient.ErrNotConfigured)
	}

	key := cacheKey(op, prompt)
	if cached, ok := s.cache.Get(key); ok {
		middleware.AIRequestsTotal.WithLabelValues(op, "cached").Inc()
		return cached, nil
	}

	start := time.Now()
	// Общий вызов не зависит от отмены контекста отдельного клиента
	callCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		completion, err := s.client.Complete(callCtx, []aiclient.Message{
			{Role: aiclient.RoleUser, Content: prompt},
		})
		if err != nil {
			return nil, err
		}
		result := &AIResult{
			Text:  completion.Content,
			Model: completion.Model,
			Usage: completion.Usage,
		}
		s.cache.Set(key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		err := fmt.Errorf("%w: %v", aiclient.ErrUnavailable, ctx.Err())
		s.observe(op, start, err)
		return nil, s.serviceError(op, err)
	case res := <-ch:
		s.observe(op, start, res.Err)
		if res.Err != nil {
			return nil, s.serviceError(op, res.Err)
		}
		return res.Val.(*AIResult), nil
	}
}

func (s *AIService) observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	middleware.AIRequestsTotal.WithLabelValues(op, result).Inc()
	middleware.AIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// serviceError сопоставляет ошибки клиента кодам API:
// не настроен или недоступен — 503, ошибка upstream — 502.
func (s *AIService) serviceError(op string, err error) *ServiceError {
	var upErr *aiclient.UpstreamError
	switch {
	case errors.Is(err, aiclient.ErrNotConfigured):
		return &ServiceError{
			StatusCode: http.StatusServiceUnavailable,
			Code:       apierrors.CodeAIUnavailable,
			Message:    "AI-сервис не настроен",
		}
	case errors.Is(err, aiclient.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("AI-сервис недоступен",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return &ServiceError{
			StatusCode: http.StatusServiceUnavailable,
			Code:       apierrors.CodeAIUnavailable,
			Message:    "AI-сервис временно недоступен",
		}
	case errors.As(err, &upErr):
		s.logger.Error("AI upstream вернул ошибку",
			slog.String("operation", op),
			slog.Int("status", upErr.StatusCode),
			slog.String("error", upErr.Message),
		)
		return &ServiceError{
			StatusCode: http.StatusBadGateway,
			Code:       apierrors.CodeUpstreamError,
			Message:    fmt.Sprintf("AI upstream вернул статус %d", upErr.StatusCode),
		}
	default:
		s.logger.Error("Ошибка AI-запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка AI-сервиса",
		}
	}
}

func validationError(msg string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    msg,
	}
}

// previewOf возвращает превью из запроса или previewData набора.
func previewOf(d *prompts.Dataset, preview []json.RawMessage) []json.RawMessage {
	if len(preview) > 0 {
		return preview
	}
	return d.PreviewData
}
