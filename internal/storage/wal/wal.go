package wal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WAL — файловый журнал загрузок.
type WAL struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New создаёт журнал в указанной директории, создавая её при необходимости,
// и проверяет, что директория доступна на запись.
func New(dir string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	w := &WAL{
		dir:    dir,
		logger: logger.With(slog.String("component", "wal")),
	}
	if err := w.CheckReady(); err != nil {
		return nil, err
	}
	return w, nil
}

// Begin открывает запись pending для загрузки в target через tempPath.
func (w *WAL) Begin(op OperationType, target, tempPath string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		Target:        target,
		TempPath:      tempPath,
		StartedAt:     time.Now().UTC(),
	}

	if err := w.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать WAL-запись: %w", err)
	}

	w.logger.Debug("WAL транзакция начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(entry.Operation)),
		slog.String("target", entry.Target),
	)

	return entry, nil
}

// Commit помечает загрузку как опубликованную.
func (w *WAL) Commit(txID string) error {
	return w.complete(txID, StatusCommitted)
}

// Rollback помечает загрузку как отменённую.
func (w *WAL) Rollback(txID string) error {
	return w.complete(txID, StatusRolledBack)
}

func (w *WAL) complete(txID string, status TransactionStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.readEntry(txID)
	if err != nil {
		return fmt.Errorf("не удалось прочитать WAL-запись %s: %w", txID, err)
	}

	if entry.Status != StatusPending {
		return fmt.Errorf("WAL-запись %s имеет статус %s, ожидается %s", txID, entry.Status, StatusPending)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.CompletedAt = &now

	if err := w.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить WAL-запись %s: %w", txID, err)
	}

	w.logger.Debug("WAL транзакция закрыта",
		slog.String("tx_id", txID),
		slog.String("status", string(status)),
		slog.String("target", entry.Target),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)

	return nil
}

// Pending возвращает все записи со статусом pending.
// Вызывается при старте, до приёма запросов.
func (w *WAL) Pending() ([]*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pending []*Entry
	err := w.scan(func(path string, entry *Entry) {
		if entry.Status != StatusPending {
			return
		}
		pending = append(pending, entry)
		w.logger.Warn("Обнаружена незавершённая загрузка",
			slog.String("tx_id", entry.TransactionID),
			slog.String("target", entry.Target),
			slog.Time("started_at", entry.StartedAt),
		)
	})
	return pending, err
}

// Get читает запись по идентификатору транзакции.
func (w *WAL) Get(txID string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readEntry(txID)
}

// Prune удаляет закрытые записи (committed/rolled_back).
// Возвращает число удалённых записей.
func (w *WAL) Prune() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cleaned := 0
	err := w.scan(func(path string, entry *Entry) {
		if entry.Status == StatusPending {
			return
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Не удалось удалить закрытую WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		cleaned++
	})
	if err != nil {
		return cleaned, err
	}

	if cleaned > 0 {
		w.logger.Info("Очистка WAL завершена", slog.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

// CheckReady проверяет, что директория журнала доступна на запись.
func (w *WAL) CheckReady() error {
	probe := filepath.Join(w.dir, ".wal_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return fmt.Errorf("директория WAL %s недоступна для записи: %w", w.dir, err)
	}
	os.Remove(probe)
	return nil
}

// Dir возвращает путь к директории журнала.
func (w *WAL) Dir() string {
	return w.dir
}

// scan вызывает fn для каждой читаемой записи журнала.
// Нечитаемые записи пропускаются с предупреждением.
func (w *WAL) scan(fn func(path string, entry *Entry)) error {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.wal.json"))
	if err != nil {
		return fmt.Errorf("не удалось сканировать директорию WAL: %w", err)
	}

	for _, path := range paths {
		txID := strings.TrimSuffix(filepath.Base(path), ".wal.json")
		entry, err := w.readEntry(txID)
		if err != nil {
			w.logger.Warn("Не удалось прочитать WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		fn(path, entry)
	}
	return nil
}

// writeEntry атомарно записывает запись на диск: temp → fsync → rename.
func (w *WAL) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(w.dir, walFileName(entry.TransactionID))
	tmpPath := targetPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

func (w *WAL) readEntry(txID string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, walFileName(txID)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}

	return &entry, nil
}
