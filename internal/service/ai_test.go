package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3llimi/innocivic/catalog/internal/aiclient"
	"github.com/3llimi/innocivic/catalog/internal/prompts"
)

// fakeCompleter — Completer с подсчётом вызовов.
// Если задан block, вызов ждёт закрытия канала.
type fakeCompleter struct {
	enabled bool
	err     error
	block   chan struct{}
	calls   atomic.Int32

	mu   sync.Mutex
	last []aiclient.Message
}

func (f *fakeCompleter) Enabled() bool { return f.enabled }

func (f *fakeCompleter) Complete(ctx context.Context, messages []aiclient.Message) (*aiclient.Completion, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = append([]aiclient.Message(nil), messages...)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &aiclient.Completion{
		Content: "ответ",
		Model:   "GigaChat",
		Usage:   &aiclient.Usage{TotalTokens: 3},
	}, nil
}

func (f *fakeCompleter) lastMessages() []aiclient.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestAIService(client *fakeCompleter) *AIService {
	return NewAIService(client, NewAIResponseCache(16, time.Minute), 3, testLogger())
}

func messages(n int) []aiclient.Message {
	out := make([]aiclient.Message, 0, n)
	for i := 0; i < n; i++ {
		role := aiclient.RoleUser
		if i%2 == 1 {
			role = aiclient.RoleAssistant
		}
		out = append(out, aiclient.Message{Role: role, Content: string(rune('a' + i))})
	}
	return out
}

// TestChat_HistoryLimit проверяет усечение истории и системный промпт первым.
func TestChat_HistoryLimit(t *testing.T) {
	client := &fakeCompleter{enabled: true}
	svc := newTestAIService(client)

	res, serr := svc.Chat(context.Background(), messages(5), nil, "")
	if serr != nil {
		t.Fatalf("Chat() вернул ошибку: %v", serr)
	}
	if res.Text != "ответ" || res.Model != "GigaChat" {
		t.Errorf("результат = %+v", res)
	}

	sent := client.lastMessages()
	if len(sent) != 4 {
		t.Fatalf("ожидалось 4 сообщения (system + 3), получено %d", len(sent))
	}
	if sent[0].Role != aiclient.RoleSystem || sent[0].Content != prompts.GeneralSystem {
		t.Errorf("первое сообщение = %+v", sent[0])
	}
	if sent[1].Content != "c" || sent[3].Content != "e" {
		t.Errorf("переданы не последние сообщения: %+v", sent[1:])
	}
}

// TestChat_SystemPrompt проверяет выбор системного промпта.
func TestChat_SystemPrompt(t *testing.T) {
	client := &fakeCompleter{enabled: true}
	svc := newTestAIService(client)
	ctx := context.Background()

	if _, serr := svc.Chat(ctx, messages(1), &prompts.Dataset{Title: "Транспорт"}, ""); serr != nil {
		t.Fatal(serr)
	}
	if got := client.lastMessages()[0].Content; !strings.Contains(got, "- Название: Транспорт") {
		t.Errorf("промпт по набору не использован: %q", got)
	}

	if _, serr := svc.Chat(ctx, messages(1), &prompts.Dataset{Title: "Транспорт"}, "Свой промпт"); serr != nil {
		t.Fatal(serr)
	}
	if got := client.lastMessages()[0].Content; got != "Свой промпт" {
		t.Errorf("явный промпт не использован: %q", got)
	}
}

// TestChat_Validation проверяет отказ на пустой диалог и неизвестную роль.
func TestChat_Validation(t *testing.T) {
	client := &fakeCompleter{enabled: true}
	svc := newTestAIService(client)

	tests := map[string][]aiclient.Message{
		"empty":    nil,
		"bad role": {{Role: "robot", Content: "x"}},
	}
	for name, msgs := range tests {
		t.Run(name, func(t *testing.T) {
			_, serr := svc.Chat(context.Background(), msgs, nil, "")
			if serr == nil || serr.StatusCode != http.StatusBadRequest {
				t.Errorf("ожидалась ошибка 400, получено %v", serr)
			}
		})
	}
	if n := client.calls.Load(); n != 0 {
		t.Errorf("upstream не должен вызываться, вызовов: %d", n)
	}
}

// TestAI_ErrorMapping проверяет коды ответов на ошибки клиента.
func TestAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeCompleter
		status int
	}{
		{"not configured", &fakeCompleter{enabled: false}, http.StatusServiceUnavailable},
		{"unavailable", &fakeCompleter{enabled: true, err: aiclient.ErrUnavailable}, http.StatusServiceUnavailable},
		{"upstream", &fakeCompleter{enabled: true, err: &aiclient.UpstreamError{StatusCode: 500, Message: "boom"}}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.client.enabled {
				tt.client.err = aiclient.ErrNotConfigured
			}
			svc := newTestAIService(tt.client)

			_, serr := svc.DatasetSummary(context.Background(), &prompts.Dataset{Title: "t"})
			if serr == nil || serr.StatusCode != tt.status {
				t.Errorf("DatasetSummary: ожидался статус %d, получено %v", tt.status, serr)
			}
			_, serr = svc.Chat(context.Background(), messages(1), nil, "")
			if serr == nil || serr.StatusCode != tt.status {
				t.Errorf("Chat: ожидался статус %d, получено %v", tt.status, serr)
			}
		})
	}
}

// TestOneShot_NilDataset проверяет 400 без набора данных.
func TestOneShot_NilDataset(t *testing.T) {
	svc := newTestAIService(&fakeCompleter{enabled: true})
	ctx := context.Background()

	calls := map[string]func() *ServiceError{
		"summary": func() *ServiceError {
			_, e := svc.DatasetSummary(ctx, nil)
			return e
		},
		"insights": func() *ServiceError {
			_, e := svc.DatasetInsights(ctx, nil, nil)
			return e
		},
		"description": func() *ServiceError {
			_, e := svc.GenerateDescription(ctx, nil, nil)
			return e
		},
		"analysis": func() *ServiceError {
			_, e := svc.Analyze(ctx, nil, nil, prompts.AnalysisTrends)
			return e
		},
	}
	for name, call := range calls {
		if serr := call(); serr == nil || serr.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: ожидалась ошибка 400, получено %v", name, serr)
		}
	}
}

// TestOneShot_Cached проверяет, что повторный запрос берётся из кэша.
func TestOneShot_Cached(t *testing.T) {
	client := &fakeCompleter{enabled: true}
	svc := newTestAIService(client)
	d := &prompts.Dataset{Title: "Транспорт"}

	for i := 0; i < 3; i++ {
		res, serr := svc.GenerateDescription(context.Background(), d, nil)
		if serr != nil {
			t.Fatalf("вызов %d: %v", i, serr)
		}
		if res.Text != "ответ" {
			t.Errorf("вызов %d: Text = %q", i, res.Text)
		}
	}
	if n := client.calls.Load(); n != 1 {
		t.Errorf("ожидался 1 вызов upstream, получено %d", n)
	}

	// Другой тип анализа — другой ключ
	if _, serr := svc.Analyze(context.Background(), d, nil, prompts.AnalysisQuality); serr != nil {
		t.Fatal(serr)
	}
	if n := client.calls.Load(); n != 2 {
		t.Errorf("ожидалось 2 вызова upstream, получено %d", n)
	}
}

// TestOneShot_ErrorNotCached проверяет, что ошибки не кэшируются.
func TestOneShot_ErrorNotCached(t *testing.T) {
	client := &fakeCompleter{enabled: true, err: aiclient.ErrUnavailable}
	svc := newTestAIService(client)
	d := &prompts.Dataset{Title: "t"}

	for i := 0; i < 2; i++ {
		if _, serr := svc.DatasetSummary(context.Background(), d); serr == nil {
			t.Fatal("ожидалась ошибка")
		}
	}
	if n := client.calls.Load(); n != 2 {
		t.Errorf("ожидалось 2 вызова upstream, получено %d", n)
	}
}

// TestOneShot_Singleflight проверяет объединение одинаковых параллельных запросов.
func TestOneShot_Singleflight(t *testing.T) {
	client := &fakeCompleter{enabled: true, block: make(chan struct{})}
	svc := newTestAIService(client)
	d := &prompts.Dataset{Title: "t"}

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan *ServiceError, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, serr := svc.DatasetInsights(context.Background(), d, nil)
			errs <- serr
		}()
	}

	// Ждём, пока первый вызов дойдёт до upstream
	deadline := time.Now().Add(2 * time.Second)
	for client.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(client.block)
	wg.Wait()
	close(errs)

	for serr := range errs {
		if serr != nil {
			t.Errorf("неожиданная ошибка: %v", serr)
		}
	}
	if got := client.calls.Load(); got != 1 {
		t.Errorf("ожидался 1 вызов upstream, получено %d", got)
	}
}

// TestOneShot_ContextCancelled проверяет 503 при отмене запроса клиентом.
func TestOneShot_ContextCancelled(t *testing.T) {
	client := &fakeCompleter{enabled: true, block: make(chan struct{})}
	defer close(client.block)
	svc := newTestAIService(client)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, serr := svc.DatasetSummary(ctx, &prompts.Dataset{Title: "t"})
	if serr == nil || serr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ожидалась ошибка 503, получено %v", serr)
	}
}

// TestOneShot_PreviewFallback проверяет подстановку previewData набора.
func TestOneShot_PreviewFallback(t *testing.T) {
	client := &fakeCompleter{enabled: true}
	svc := newTestAIService(client)
	d := &prompts.Dataset{
		Title:       "t",
		PreviewData: []json.RawMessage{json.RawMessage(`{"district":"Центральный"}`)},
	}

	if _, serr := svc.DatasetInsights(context.Background(), d, nil); serr != nil {
		t.Fatal(serr)
	}
	sent := client.lastMessages()
	if len(sent) != 1 || sent[0].Role != aiclient.RoleUser {
		t.Fatalf("ожидалось одно сообщение пользователя, получено %+v", sent)
	}
	if !strings.Contains(sent[0].Content, "Центральный") {
		t.Error("previewData набора не попал в промпт")
	}
}
