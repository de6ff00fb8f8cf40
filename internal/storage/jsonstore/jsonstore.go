// Пакет jsonstore — хранилище записей каталога в одном JSON-документе.
// Документ — массив записей; каждое сохранение перезаписывает его целиком.
// Запись выполняется атомарно: temp → fsync → rename, поэтому читатели
// видят либо старую, либо новую версию документа, но не промежуточную.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// Store — JSON-документ с записями каталога.
type Store struct {
	path string
}

// New создаёт хранилище для документа по указанному пути.
// Файл и директория создаются при первом сохранении.
func New(path string) *Store {
	return &Store{path: path}
}

// Path возвращает путь к JSON-документу.
func (s *Store) Path() string {
	return s.path
}

// Load читает весь набор записей.
// Отсутствующий или пустой документ означает пустой набор.
func (s *Store) Load(_ context.Context) ([]model.Dataset, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Dataset{}, nil
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", s.path, err)
	}

	if len(data) == 0 {
		return []model.Dataset{}, nil
	}

	var set []model.Dataset
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", s.path, err)
	}
	if set == nil {
		set = []model.Dataset{}
	}
	return set, nil
}

// Save атомарно перезаписывает документ набором записей.
// Паттерн: JSON → temp файл в той же директории → fsync → atomic rename.
func (s *Store) Save(_ context.Context, set []model.Dataset) error {
	if set == nil {
		set = []model.Dataset{}
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации записей: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	// Уникальное имя temp-файла: параллельные Save не затирают друг друга
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

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

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// CheckReady проверяет, что директория документа существует и доступна на запись.
func (s *Store) CheckReady() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("директория %s недоступна: %w", dir, err)
	}
	probe := filepath.Join(dir, ".catalog_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return fmt.Errorf("директория %s недоступна для записи: %w", dir, err)
	}
	os.Remove(probe)
	return nil
}
