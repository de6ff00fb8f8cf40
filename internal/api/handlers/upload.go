// upload.go — обработчик POST /upload/{source}/{subject}.
// Тело multipart читается потоково: файл не буферизуется в памяти
// и не попадает во временные файлы net/http.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/service"
)

// uploadFieldName — имя multipart-поля с файлом.
const uploadFieldName = "file"

type uploadResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FileURL     string `json:"fileUrl"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

// UploadDataset обрабатывает POST /upload/{source}/{subject}.
func (h *APIHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	subject := chi.URLParam(r, "subject")

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data")
		return
	}

	// Ищем part с файлом, остальные поля пропускаются
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Поле 'file' обязательно")
			return
		}
		if err != nil {
			apierrors.ValidationError(w, "Ошибка разбора multipart: "+err.Error())
			return
		}
		if part.FormName() != uploadFieldName {
			part.Close()
			continue
		}

		result, uerr := h.uploads.Upload(r.Context(), service.UploadParams{
			Subject:     subject,
			Source:      source,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Reader:      part,
		})
		part.Close()
		if uerr != nil {
			apierrors.WriteError(w, uerr.StatusCode, uerr.Code, uerr.Message)
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{
			Success:     true,
			Message:     "Dataset uploaded",
			FileURL:     result.FileURL,
			FileSize:    result.BytesWritten,
			ContentType: result.ContentType,
		})
		return
	}
}
