// download.go — сервис скачивания файла набора данных.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/domain/records"
	"github.com/3llimi/innocivic/catalog/internal/storage/uploads"
)

// DownloadError — ошибка скачивания с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DownloadService — сервис скачивания файлов наборов данных.
type DownloadService struct {
	catalog   *CatalogService
	tree      *uploads.Tree
	urlPrefix string
	logger    *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(catalog *CatalogService, tree *uploads.Tree, urlPrefix string, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		catalog:   catalog,
		tree:      tree,
		urlPrefix: urlPrefix,
		logger:    logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт файл набора id через http.ServeContent и увеличивает
// downloadCount записи. Скачиванием считается ответ 200 или 206 с начала
// файла: ответы 304 и докачка частей не меняют счётчик.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, id string) *DownloadError {
	ctx := r.Context()

	// 1. Запись каталога
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		return s.catalogError(id, err)
	}
	if rec.FileURL == nil || *rec.FileURL == "" {
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("У набора %s нет файла", id),
		}
	}

	// 2. Путь внутри дерева загрузок
	path, err := s.tree.Resolve(*rec.FileURL, s.urlPrefix)
	if err != nil {
		return s.resolveError(id, *rec.FileURL, err)
	}

	// 3. Открываем файл
	file, err := os.Open(path)
	if err != nil {
		s.logger.Error("Ошибка открытия файла",
			slog.String("id", id),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Файл набора %s не найден", id),
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	// 4. Заголовки и отдача
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	sw := &statusWriter{ResponseWriter: w}
	http.ServeContent(sw, r, name, stat.ModTime(), file)

	if !countsAsDownload(sw.status, r) {
		return nil
	}

	// 5. Счётчик скачиваний. Ответ уже отправлен, ошибка только логируется
	if _, err := s.catalog.RegisterDownload(ctx, id); err != nil {
		s.logger.Error("Ошибка обновления счётчика скачиваний",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}

	middleware.DownloadBytesTotal.Add(float64(stat.Size()))

	s.logger.Debug("Файл скачан",
		slog.String("id", id),
		slog.String("filename", name),
		slog.Int64("size", stat.Size()),
	)

	return nil
}

// countsAsDownload — полный ответ либо диапазон, начинающийся с нулевого байта.
func countsAsDownload(status int, r *http.Request) bool {
	switch status {
	case http.StatusOK:
		return true
	case http.StatusPartialContent:
		return strings.HasPrefix(strings.TrimSpace(r.Header.Get("Range")), "bytes=0-")
	default:
		return false
	}
}

// statusWriter запоминает код ответа, выбранный http.ServeContent.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

func (s *DownloadService) catalogError(id string, err error) *DownloadError {
	if errors.Is(err, records.ErrNotFound) {
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Набор данных %s не найден", id),
		}
	}
	return &DownloadError{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    "Ошибка чтения каталога",
	}
}

func (s *DownloadService) resolveError(id, ref string, err error) *DownloadError {
	switch {
	case errors.Is(err, uploads.ErrPathEscape):
		s.logger.Warn("Ссылка на файл выходит за пределы корня загрузок",
			slog.String("id", id),
			slog.String("file_url", ref),
		)
		return &DownloadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "Некорректный путь к файлу",
		}
	case errors.Is(err, uploads.ErrFileNotFound):
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Файл набора %s не найден", id),
		}
	default:
		s.logger.Error("Ошибка разрешения пути к файлу",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}
}
