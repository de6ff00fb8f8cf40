package wal

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestWAL(t *testing.T) *WAL {
	t.Helper()
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	return w
}

// TestNew_CreatesDirectory проверяет, что New создаёт директорию журнала.
func TestNew_CreatesDirectory(t *testing.T) {
	walDir := filepath.Join(t.TempDir(), "wal")

	w, err := New(walDir, testLogger())
	if err != nil {
		t.Fatalf("ожидалось успешное создание WAL, получена ошибка: %v", err)
	}
	if w.Dir() != walDir {
		t.Errorf("ожидался путь %s, получен %s", walDir, w.Dir())
	}
	if info, err := os.Stat(walDir); err != nil || !info.IsDir() {
		t.Fatalf("директория WAL не создана: %v", err)
	}
}

// TestBegin_Commit проверяет полный цикл успешной загрузки.
func TestBegin_Commit(t *testing.T) {
	w := newTestWAL(t)

	entry, err := w.Begin(OpUploadCreate, "/water/city/2026-01-01/a.csv", "/tmp/.a.csv.tmp")
	if err != nil {
		t.Fatalf("Begin() вернул ошибку: %v", err)
	}
	if entry.TransactionID == "" {
		t.Error("TransactionID не должен быть пустым")
	}
	if entry.Status != StatusPending {
		t.Errorf("ожидался статус %s, получен %s", StatusPending, entry.Status)
	}

	if err := w.Commit(entry.TransactionID); err != nil {
		t.Fatalf("Commit() вернул ошибку: %v", err)
	}

	got, err := w.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
	if got.Status != StatusCommitted {
		t.Errorf("ожидался статус %s, получен %s", StatusCommitted, got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt должен быть установлен")
	}
	if got.Target != "/water/city/2026-01-01/a.csv" || got.TempPath != "/tmp/.a.csv.tmp" {
		t.Errorf("пути не сохранены: %+v", got)
	}
}

// TestRollback_Twice проверяет, что закрытую запись нельзя закрыть повторно.
func TestRollback_Twice(t *testing.T) {
	w := newTestWAL(t)

	entry, err := w.Begin(OpUploadCreate, "/a", "/tmp/a")
	if err != nil {
		t.Fatalf("Begin() вернул ошибку: %v", err)
	}
	if err := w.Rollback(entry.TransactionID); err != nil {
		t.Fatalf("Rollback() вернул ошибку: %v", err)
	}
	if err := w.Rollback(entry.TransactionID); err == nil {
		t.Error("ожидалась ошибка при повторном Rollback")
	}
	if err := w.Commit(entry.TransactionID); err == nil {
		t.Error("ожидалась ошибка при Commit после Rollback")
	}
}

// TestPending_AndPrune проверяет поиск незавершённых и очистку закрытых записей.
func TestPending_AndPrune(t *testing.T) {
	w := newTestWAL(t)

	committed, _ := w.Begin(OpUploadCreate, "/c", "/tmp/c")
	rolled, _ := w.Begin(OpUploadCreate, "/r", "/tmp/r")
	pending, _ := w.Begin(OpUploadCreate, "/p", "/tmp/p")
	_ = w.Commit(committed.TransactionID)
	_ = w.Rollback(rolled.TransactionID)

	got, err := w.Pending()
	if err != nil {
		t.Fatalf("Pending() вернул ошибку: %v", err)
	}
	if len(got) != 1 || got[0].TransactionID != pending.TransactionID {
		t.Fatalf("ожидалась одна pending-запись %s, получено %+v", pending.TransactionID, got)
	}

	cleaned, err := w.Prune()
	if err != nil {
		t.Fatalf("Prune() вернул ошибку: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("ожидалось удаление 2 записей, удалено %d", cleaned)
	}

	if _, err := w.Get(pending.TransactionID); err != nil {
		t.Errorf("pending-запись не должна удаляться: %v", err)
	}
	if _, err := w.Get(committed.TransactionID); err == nil {
		t.Error("committed-запись должна быть удалена")
	}
}

// TestPending_SkipsCorrupted проверяет, что повреждённые файлы журнала пропускаются.
func TestPending_SkipsCorrupted(t *testing.T) {
	w := newTestWAL(t)

	if err := os.WriteFile(filepath.Join(w.Dir(), "broken.wal.json"), []byte("{"), 0o640); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}
	if _, err := w.Begin(OpUploadCreate, "/p", "/tmp/p"); err != nil {
		t.Fatalf("Begin() вернул ошибку: %v", err)
	}

	got, err := w.Pending()
	if err != nil {
		t.Fatalf("Pending() вернул ошибку: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ожидалась 1 pending-запись, получено %d", len(got))
	}
}

// TestConcurrentBegin проверяет параллельное создание записей.
func TestConcurrentBegin(t *testing.T) {
	w := newTestWAL(t)

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := w.Begin(OpUploadCreate, "/x", "/tmp/x")
			if err != nil {
				t.Errorf("Begin() вернул ошибку: %v", err)
				return
			}
			ids <- entry.TransactionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("дублирующийся TransactionID %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("ожидалось %d записей, получено %d", n, len(seen))
	}
}

// TestCheckReady проверяет доступность директории журнала.
func TestCheckReady(t *testing.T) {
	w, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.CheckReady(); err != nil {
		t.Errorf("CheckReady() вернул ошибку: %v", err)
	}
}
