// upload.go — сервис приёма файлов в дерево загрузок с журналированием в WAL.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/3llimi/innocivic/catalog/internal/api/errors"
	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
	"github.com/3llimi/innocivic/catalog/internal/storage/uploads"
	"github.com/3llimi/innocivic/catalog/internal/storage/wal"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Subject — тематический раздел (первый сегмент пути)
	Subject string
	// Source — источник данных (второй сегмент пути)
	Source string
	// Filename — имя файла из multipart part; каталоги отбрасываются
	Filename string
	// ContentType — MIME-тип из заголовка part
	ContentType string
	// Reader — поток данных файла
	Reader io.Reader
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	// RelativePath — /{subject}/{source}/{date}/{filename}
	RelativePath string
	// FileURL — публичная ссылка: префикс + RelativePath
	FileURL      string
	BytesWritten int64
	ContentType  string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	tree      *uploads.Tree
	walEngine *wal.WAL
	urlPrefix string
	logger    *slog.Logger
	now       func() time.Time
}

// NewUploadService создаёт сервис загрузки файлов.
// urlPrefix — публичный префикс ссылок на файлы (например /datasets).
func NewUploadService(tree *uploads.Tree, walEngine *wal.WAL, urlPrefix string, logger *slog.Logger) *UploadService {
	return &UploadService{
		tree:      tree,
		walEngine: walEngine,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		logger:    logger.With(slog.String("component", "upload_service")),
		now:       time.Now,
	}
}

// Upload принимает файл в {subject}/{source}/{UTC-дата}/{filename}.
//
// Поток:
//  1. Plan: имя файла, расширение, сегменты пути, проверка существования
//  2. WAL Begin
//  3. Receive: запись во временный файл порциями с лимитом размера
//  4. Publish: жёсткая ссылка на итоговое имя
//  5. WAL Commit
//
// При ошибке временный файл удаляется, WAL откатывается.
// Директории создаются только после успешной проверки расширения.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*UploadResult, *UploadError) {
	// 1. Проверяем входные данные и вычисляем размещение
	target, err := s.tree.Plan(params.Subject, params.Source, params.Filename, s.now())
	if err != nil {
		return nil, s.fail(err, params)
	}

	tmpPath := s.tree.TempPath(target)

	// 2. WAL Begin
	entry, err := s.walEngine.Begin(wal.OpUploadCreate, target.RelPath, tmpPath)
	if err != nil {
		s.logger.Error("Ошибка создания WAL-транзакции", slog.String("error", err.Error()))
		return nil, s.fail(err, params)
	}

	rollback := func() {
		if err := s.tree.Discard(tmpPath); err != nil {
			s.logger.Warn("Не удалось удалить временный файл",
				slog.String("path", tmpPath),
				slog.String("error", err.Error()),
			)
		}
		if rbErr := s.walEngine.Rollback(entry.TransactionID); rbErr != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", rbErr.Error()),
			)
		}
	}

	// 3. Приём байтов во временный файл
	written, err := s.tree.Receive(target, tmpPath, params.Reader)
	if err != nil {
		rollback()
		if ctx.Err() != nil {
			s.logger.Info("Загрузка прервана клиентом",
				slog.String("target", target.RelPath),
				slog.Int64("bytes", written),
			)
		}
		return nil, s.fail(err, params)
	}

	// 4. Публикация
	if err := s.tree.Publish(target, tmpPath); err != nil {
		rollback()
		return nil, s.fail(err, params)
	}

	// 5. WAL Commit
	if err := s.walEngine.Commit(entry.TransactionID); err != nil {
		// Файл уже опубликован, коммит WAL — best effort
		s.logger.Error("Ошибка коммита WAL (файл сохранён)",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	middleware.UploadsTotal.WithLabelValues("success").Inc()
	middleware.UploadBytesTotal.Add(float64(written))

	s.logger.Info("Файл загружен",
		slog.String("path", target.RelPath),
		slog.Int64("size", written),
	)

	return &UploadResult{
		RelativePath: target.RelPath,
		FileURL:      s.urlPrefix + target.RelPath,
		BytesWritten: written,
		ContentType:  detectContentType(params.ContentType),
	}, nil
}

// RecoverPending откатывает загрузки, прерванные остановкой процесса:
// удаляет их временные файлы и помечает записи rolled_back.
// Закрытые записи журнала удаляются. Возвращает число откатанных загрузок.
func (s *UploadService) RecoverPending() (int, error) {
	pending, err := s.walEngine.Pending()
	if err != nil {
		return 0, fmt.Errorf("чтение WAL: %w", err)
	}

	recovered := 0
	for _, entry := range pending {
		if err := s.tree.Discard(entry.TempPath); err != nil {
			s.logger.Warn("Не удалось удалить временный файл прерванной загрузки",
				slog.String("tx_id", entry.TransactionID),
				slog.String("path", entry.TempPath),
				slog.String("error", err.Error()),
			)
		}
		if err := s.walEngine.Rollback(entry.TransactionID); err != nil {
			return recovered, fmt.Errorf("откат WAL %s: %w", entry.TransactionID, err)
		}
		recovered++
		s.logger.Info("Прерванная загрузка откачена",
			slog.String("tx_id", entry.TransactionID),
			slog.String("target", entry.Target),
		)
	}

	pruned, err := s.walEngine.Prune()
	if err != nil {
		return recovered, fmt.Errorf("очистка WAL: %w", err)
	}
	if pruned > 0 {
		s.logger.Debug("Закрытые записи WAL удалены", slog.Int("count", pruned))
	}

	return recovered, nil
}

// fail переводит ошибку дерева загрузок в UploadError и учитывает её в метриках.
func (s *UploadService) fail(err error, params UploadParams) *UploadError {
	ue := uploadError(err, s.tree.MaxSize())
	middleware.UploadsTotal.WithLabelValues(ue.Code).Inc()

	if ue.StatusCode == http.StatusInternalServerError {
		s.logger.Error("Ошибка загрузки файла",
			slog.String("subject", params.Subject),
			slog.String("source", params.Source),
			slog.String("filename", params.Filename),
			slog.String("error", err.Error()),
		)
	}
	return ue
}

// uploadError сопоставляет ошибки пакета uploads кодам API.
func uploadError(err error, maxSize int64) *UploadError {
	switch {
	case errors.Is(err, uploads.ErrFilenameRequired),
		errors.Is(err, uploads.ErrExtensionNotAllowed),
		errors.Is(err, uploads.ErrInvalidSegment):
		return &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
		}
	case errors.Is(err, uploads.ErrExists):
		return &UploadError{
			StatusCode: http.StatusConflict,
			Code:       apierrors.CodeConflict,
			Message:    "Файл с таким именем уже загружен сегодня",
		}
	case errors.Is(err, uploads.ErrTooLarge):
		return &UploadError{
			StatusCode: http.StatusRequestEntityTooLarge,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла превышает максимум %d байт", maxSize),
		}
	default:
		return &UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}
}

// detectContentType определяет Content-Type из заголовка multipart part.
// Если не указан — используется application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}
