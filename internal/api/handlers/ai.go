// ai.go — обработчики AI-помощника: чат и одноразовые задачи по набору данных.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/aiclient"
	"github.com/3llimi/innocivic/catalog/internal/prompts"
	"github.com/3llimi/innocivic/catalog/internal/service"
)

type chatRequest struct {
	Messages       []aiclient.Message `json:"messages"`
	DatasetContext *prompts.Dataset   `json:"dataset_context,omitempty"`
	SystemPrompt   string             `json:"system_prompt,omitempty"`
}

// datasetRequest — тело одноразовых AI-запросов по набору.
type datasetRequest struct {
	Dataset      *prompts.Dataset  `json:"dataset"`
	PreviewData  []json.RawMessage `json:"preview_data,omitempty"`
	AnalysisType string            `json:"analysis_type,omitempty"`
}

// AIChat обрабатывает POST /api/ai/chat.
func (h *APIHandler) AIChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	result, serr := h.ai.Chat(r.Context(), req.Messages, req.DatasetContext, req.SystemPrompt)
	writeAIResult(w, "response", result, serr)
}

// AIDatasetSummary обрабатывает POST /api/ai/dataset-summary.
func (h *APIHandler) AIDatasetSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDatasetRequest(w, r)
	if !ok {
		return
	}
	result, serr := h.ai.DatasetSummary(r.Context(), req.Dataset)
	writeAIResult(w, "summary", result, serr)
}

// AIDatasetInsights обрабатывает POST /api/ai/dataset-insights.
func (h *APIHandler) AIDatasetInsights(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDatasetRequest(w, r)
	if !ok {
		return
	}
	result, serr := h.ai.DatasetInsights(r.Context(), req.Dataset, req.PreviewData)
	writeAIResult(w, "insights", result, serr)
}

// AIGenerateDescription обрабатывает POST /api/ai/generate-description.
func (h *APIHandler) AIGenerateDescription(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDatasetRequest(w, r)
	if !ok {
		return
	}
	result, serr := h.ai.GenerateDescription(r.Context(), req.Dataset, req.PreviewData)
	writeAIResult(w, "description", result, serr)
}

// AIAnalyze обрабатывает POST /api/ai/analyze.
func (h *APIHandler) AIAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDatasetRequest(w, r)
	if !ok {
		return
	}
	result, serr := h.ai.Analyze(r.Context(), req.Dataset, req.PreviewData, req.AnalysisType)
	writeAIResult(w, "analysis", result, serr)
}

func decodeDatasetRequest(w http.ResponseWriter, r *http.Request) (*datasetRequest, bool) {
	var req datasetRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return nil, false
	}
	return &req, true
}

// writeAIResult пишет ответ модели под ключом field или ошибку сервиса.
func writeAIResult(w http.ResponseWriter, field string, result *service.AIResult, serr *service.ServiceError) {
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	resp := map[string]any{
		"success": true,
		field:     result.Text,
		"model":   result.Model,
	}
	if result.Usage != nil {
		resp["usage"] = result.Usage
	}
	writeJSON(w, http.StatusOK, resp)
}
