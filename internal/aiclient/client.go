// Пакет aiclient — HTTP-клиент upstream LLM API (GigaChat-совместимый).
// Получает bearer-токен по ключу авторизации и кэширует его до истечения,
// ограничивает частоту вызовов chat API одним глобальным лимитером
// и возвращает структурированные ошибки вместо текста в теле ответа.
package aiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Роли сообщений диалога.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// tokenSafetyMargin — запас до истечения токена, после которого он обновляется.
	tokenSafetyMargin = 60 * time.Second
	// defaultTokenTTL — время жизни токена, если upstream не сообщил срок.
	defaultTokenTTL = 30 * time.Minute
	// maxResponseSize — предел размера читаемого ответа upstream.
	maxResponseSize = 4 << 20
	// defaultTemperature — температура генерации по умолчанию.
	defaultTemperature = 0.7
)

// Ошибки клиента.
var (
	// ErrNotConfigured — не задан ключ авторизации.
	ErrNotConfigured = errors.New("AI-сервис не настроен")
	// ErrUnavailable — upstream недоступен (сеть, таймаут, отмена ожидания лимитера).
	ErrUnavailable = errors.New("AI-сервис недоступен")
)

// UpstreamError — upstream ответил неуспешным статусом или некорректным телом.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream вернул статус %d: %s", e.StatusCode, e.Message)
}

// Message — сообщение диалога.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage — расход токенов модели.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion — результат вызова chat API.
type Completion struct {
	Content string
	Model   string
	Usage   *Usage
}

// Options — параметры клиента.
type Options struct {
	// BaseURL — базовый URL chat API (без /chat/completions)
	BaseURL string
	// AuthURL — URL выдачи access token
	AuthURL string
	// AuthKey — ключ авторизации для заголовка Basic; пустой — клиент отключён
	AuthKey string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	// Scope — OAuth scope
	Scope string
	// Model — имя модели
	Model string
	// Temperature — температура генерации (0 — значение по умолчанию)
	Temperature float64
	// Timeout — таймаут HTTP-запросов
	Timeout time.Duration
	// MinInterval — минимальный интервал между вызовами chat API (0 — без ограничения)
	MinInterval time.Duration
	// TLSSkipVerify — не проверять сертификат upstream
	TLSSkipVerify bool
}

type tokenInfo struct {
	accessToken string
	expiresAt   time.Time
}

// Client — клиент upstream LLM API. Безопасен для параллельного использования.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time

	// Кэш токена (thread-safe)
	mu    sync.RWMutex
	token *tokenInfo
}

// New создаёт клиент. Лимитер с burst 1 пропускает не более
// одного вызова за MinInterval на весь процесс.
func New(opts Options, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.TLSSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // G402: включается явно через конфигурацию
		}
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Client{
		httpClient: httpClient,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With(slog.String("component", "ai_client")),
		now:        time.Now,
	}
}

// Enabled возвращает true, если задан ключ авторизации.
func (c *Client) Enabled() bool {
	return c.opts.AuthKey != ""
}

// Complete отправляет диалог в chat API и возвращает ответ модели.
// Перед каждым вызовом ожидает разрешения глобального лимитера.
// Ответ 401 сбрасывает закэшированный токен; запрос повторяется один раз.
func (c *Client) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	for attempt := 0; ; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}

		completion, err := c.chat(ctx, token, messages)
		var upErr *UpstreamError
		if attempt == 0 && errors.As(err, &upErr) && upErr.StatusCode == http.StatusUnauthorized {
			c.logger.Info("Токен отклонён upstream, повторное получение")
			c.invalidate(token)
			continue
		}
		return completion, err
	}
}

// Token возвращает bearer-токен. Если закэшированный токен ещё валиден
// (expires_at - 60s), возвращает его, иначе запрашивает новый.
func (c *Client) Token(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}

	c.mu.RLock()
	if c.token != nil && c.now().Before(c.token.expiresAt) {
		token := c.token.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check после получения write lock
	if c.token != nil && c.now().Before(c.token.expiresAt) {
		return c.token.accessToken, nil
	}

	return c.requestToken(ctx)
}

// invalidate сбрасывает кэш, если в нём всё ещё лежит отклонённый токен.
func (c *Client) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.accessToken == token {
		c.token = nil
	}
}

// requestToken запрашивает новый токен. Вызывается под write lock.
func (c *Client) requestToken(ctx context.Context) (string, error) {
	form := url.Values{"scope": {c.opts.Scope}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("создание запроса token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.opts.AuthKey)
	req.Header.Set("RqUID", uuid.New().String())

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("%w: запрос token: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: чтение ответа token: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "token endpoint: " + truncate(string(body))}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"` //nolint:gosec // G117: JSON-маппинг OAuth2 ответа
		ExpiresAt   int64  `json:"expires_at"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "некорректный ответ token endpoint"}
	}
	if tokenResp.AccessToken == "" {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "пустой access_token"}
	}

	now := c.now()
	expiresAt := now.Add(defaultTokenTTL)
	switch {
	case tokenResp.ExpiresAt > 0:
		// expires_at — unix-время в миллисекундах
		expiresAt = time.UnixMilli(tokenResp.ExpiresAt)
	case tokenResp.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	c.token = &tokenInfo{
		accessToken: tokenResp.AccessToken,
		expiresAt:   expiresAt.Add(-tokenSafetyMargin),
	}

	c.logger.Debug("Токен upstream получен",
		slog.Time("expires_at", expiresAt),
	)

	return tokenResp.AccessToken, nil
}

// chat выполняет один вызов chat API после ожидания лимитера.
func (c *Client) chat(ctx context.Context, token string, messages []Message) (*Completion, error) {
	payload, err := json.Marshal(struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса chat: %w", err)
	}

	waitStart := c.now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: ожидание лимитера: %v", ErrUnavailable, err)
	}
	if waited := c.now().Sub(waitStart); waited > time.Millisecond {
		c.logger.Debug("Вызов AI задержан лимитером", slog.Duration("waited", waited))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%w: запрос chat: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа chat: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: truncate(string(body))}
	}

	var chatResp struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage *Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "некорректный ответ chat API"}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "ответ без choices"}
	}

	model := chatResp.Model
	if model == "" {
		model = c.opts.Model
	}

	return &Completion{
		Content: chatResp.Choices[0].Message.Content,
		Model:   model,
		Usage:   chatResp.Usage,
	}, nil
}

// truncate укорачивает тело ответа для сообщений об ошибках.
func truncate(s string) string {
	const limit = 512
	s = strings.TrimSpace(s)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
