package service

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/3llimi/innocivic/catalog/internal/storage/uploads"
	"github.com/3llimi/innocivic/catalog/internal/storage/wal"
)

var testUploadTime = time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)

// newTestUploadService создаёт сервис с деревом и WAL во временных директориях.
func newTestUploadService(t *testing.T, maxSize int64) (*UploadService, string, *wal.WAL) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "datasets")
	tree, err := uploads.New(root, []string{".csv", ".json"}, maxSize)
	if err != nil {
		t.Fatal(err)
	}
	w, err := wal.New(filepath.Join(t.TempDir(), "wal"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewUploadService(tree, w, "/datasets/", testLogger())
	svc.now = func() time.Time { return testUploadTime }
	return svc, tree.Root(), w
}

func upload(svc *UploadService, filename, body string) (*UploadResult, *UploadError) {
	return svc.Upload(context.Background(), UploadParams{
		Subject:     "ecology",
		Source:      "city",
		Filename:    filename,
		ContentType: "text/csv; charset=utf-8",
		Reader:      strings.NewReader(body),
	})
}

// TestUpload_Success проверяет путь, ссылку и содержимое файла.
func TestUpload_Success(t *testing.T) {
	svc, root, w := newTestUploadService(t, 1024)

	res, uerr := upload(svc, `C:\Users\me\water.csv`, "a,b\n1,2\n")
	if uerr != nil {
		t.Fatalf("Upload() вернул ошибку: %v", uerr)
	}

	if res.RelativePath != "/ecology/city/2025-03-01/water.csv" {
		t.Errorf("RelativePath = %q", res.RelativePath)
	}
	if res.FileURL != "/datasets/ecology/city/2025-03-01/water.csv" {
		t.Errorf("FileURL = %q", res.FileURL)
	}
	if res.BytesWritten != 8 {
		t.Errorf("BytesWritten = %d", res.BytesWritten)
	}
	if res.ContentType != "text/csv" {
		t.Errorf("ContentType = %q", res.ContentType)
	}

	data, err := os.ReadFile(filepath.Join(root, "ecology", "city", "2025-03-01", "water.csv"))
	if err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("содержимое = %q", data)
	}

	pending, _ := w.Pending()
	if len(pending) != 0 {
		t.Errorf("после загрузки остались pending-записи WAL: %d", len(pending))
	}
}

// TestUpload_BadExtension проверяет 400 без создания директорий.
func TestUpload_BadExtension(t *testing.T) {
	svc, root, _ := newTestUploadService(t, 1024)

	_, uerr := upload(svc, "script.exe", "MZ")
	if uerr == nil || uerr.StatusCode != http.StatusBadRequest {
		t.Fatalf("ожидалась ошибка 400, получено %v", uerr)
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("в корне созданы записи: %d", len(entries))
	}
}

// TestUpload_InvalidInput проверяет проверку имени и сегментов пути.
func TestUpload_InvalidInput(t *testing.T) {
	svc, _, _ := newTestUploadService(t, 1024)

	tests := []struct {
		name   string
		params UploadParams
	}{
		{"empty filename", UploadParams{Subject: "s", Source: "x", Filename: ""}},
		{"dot-dot subject", UploadParams{Subject: "..", Source: "x", Filename: "a.csv"}},
		{"slash in source", UploadParams{Subject: "s", Source: "a/b", Filename: "a.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.Reader = strings.NewReader("x")
			_, uerr := svc.Upload(context.Background(), tt.params)
			if uerr == nil || uerr.StatusCode != http.StatusBadRequest {
				t.Errorf("ожидалась ошибка 400, получено %v", uerr)
			}
		})
	}
}

// TestUpload_TooLarge проверяет 413 и отсутствие частичного файла.
func TestUpload_TooLarge(t *testing.T) {
	svc, root, w := newTestUploadService(t, 16)

	_, uerr := upload(svc, "big.csv", strings.Repeat("x", 17))
	if uerr == nil || uerr.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("ожидалась ошибка 413, получено %v", uerr)
	}

	dir := filepath.Join(root, "ecology", "city", "2025-03-01")
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("остались файлы после отказа: %v", entries)
	}

	pending, _ := w.Pending()
	if len(pending) != 0 {
		t.Errorf("WAL-запись не откачена: %d pending", len(pending))
	}
}

// TestUpload_Duplicate проверяет 409 и неизменность первого файла.
func TestUpload_Duplicate(t *testing.T) {
	svc, root, _ := newTestUploadService(t, 1024)

	if _, uerr := upload(svc, "data.csv", "first"); uerr != nil {
		t.Fatalf("первая загрузка: %v", uerr)
	}
	_, uerr := upload(svc, "data.csv", "second")
	if uerr == nil || uerr.StatusCode != http.StatusConflict {
		t.Fatalf("ожидалась ошибка 409, получено %v", uerr)
	}

	data, _ := os.ReadFile(filepath.Join(root, "ecology", "city", "2025-03-01", "data.csv"))
	if !bytes.Equal(data, []byte("first")) {
		t.Errorf("первый файл изменён: %q", data)
	}
}

// TestRecoverPending проверяет откат прерванной загрузки при старте.
func TestRecoverPending(t *testing.T) {
	svc, root, w := newTestUploadService(t, 1024)

	dir := filepath.Join(root, "ecology", "city", "2025-03-01")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(dir, ".data.csv.crash.part")
	if err := os.WriteFile(tmp, []byte("partial"), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Begin(wal.OpUploadCreate, "/ecology/city/2025-03-01/data.csv", tmp); err != nil {
		t.Fatal(err)
	}

	n, err := svc.RecoverPending()
	if err != nil {
		t.Fatalf("RecoverPending() вернул ошибку: %v", err)
	}
	if n != 1 {
		t.Errorf("ожидалась 1 откаченная загрузка, получено %d", n)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}

	entries, _ := os.ReadDir(w.Dir())
	if len(entries) != 0 {
		t.Errorf("закрытые записи WAL не удалены: %d", len(entries))
	}
}

// TestDetectContentType проверяет нормализацию MIME-типа.
func TestDetectContentType(t *testing.T) {
	tests := map[string]string{
		"":                                "application/octet-stream",
		"text/csv":                        "text/csv",
		"application/json; charset=utf-8": "application/json",
	}
	for in, want := range tests {
		if got := detectContentType(in); got != want {
			t.Errorf("detectContentType(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}
