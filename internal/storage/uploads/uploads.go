// Пакет uploads — дерево загруженных файлов наборов данных.
// Раскладка: {root}/{subject}/{source}/{YYYY-MM-DD}/{filename}.
// Файл принимается во временный файл в целевой директории порциями по 1 МиБ
// с подсчётом размера и публикуется жёсткой ссылкой: существующий файл
// никогда не перезаписывается.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ChunkSize — размер порции копирования.
const ChunkSize = 1 << 20

// dateLayout — формат сегмента даты в пути.
const dateLayout = "2006-01-02"

// Ошибки дерева загрузок.
var (
	// ErrFilenameRequired — имя файла пустое.
	ErrFilenameRequired = errors.New("имя файла обязательно")
	// ErrExtensionNotAllowed — расширение вне списка разрешённых.
	ErrExtensionNotAllowed = errors.New("расширение файла не разрешено")
	// ErrInvalidSegment — subject или source не является безопасным сегментом пути.
	ErrInvalidSegment = errors.New("недопустимый сегмент пути")
	// ErrExists — файл по целевому пути уже существует.
	ErrExists = errors.New("файл уже существует")
	// ErrTooLarge — размер файла превысил лимит.
	ErrTooLarge = errors.New("размер файла превышает лимит")
	// ErrPathEscape — ссылка на файл указывает за пределы корня.
	ErrPathEscape = errors.New("путь выходит за пределы корня загрузок")
	// ErrFileNotFound — файл по ссылке отсутствует.
	ErrFileNotFound = errors.New("файл не найден")
)

// Tree — корень дерева загрузок с политикой приёма.
type Tree struct {
	root    string
	allowed map[string]struct{}
	maxSize int64
}

// Target — итоговое размещение принимаемого файла.
type Target struct {
	// Filename — имя файла (базовое имя, без каталогов)
	Filename string
	// Dir — абсолютный путь целевой директории
	Dir string
	// FullPath — абсолютный путь итогового файла
	FullPath string
	// RelPath — путь относительно корня: /{subject}/{source}/{date}/{filename}
	RelPath string
}

// New создаёт дерево загрузок, создавая корневую директорию при необходимости.
// extensions — разрешённые расширения в нижнем регистре с точкой.
func New(root string, extensions []string, maxSize int64) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный корень загрузок %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", abs, err)
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &Tree{root: abs, allowed: allowed, maxSize: maxSize}, nil
}

// Root возвращает абсолютный путь корня.
func (t *Tree) Root() string {
	return t.root
}

// MaxSize возвращает лимит размера файла в байтах.
func (t *Tree) MaxSize() int64 {
	return t.maxSize
}

// Plan проверяет имя файла и сегменты пути и вычисляет размещение.
// Ничего не создаёт на диске. Если итоговый файл уже существует,
// возвращает ErrExists.
func (t *Tree) Plan(subject, source, filename string, now time.Time) (*Target, error) {
	name := BaseName(filename)
	if name == "" {
		return nil, ErrFilenameRequired
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := t.allowed[ext]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}

	if !safeSegment(subject) {
		return nil, fmt.Errorf("%w: subject %q", ErrInvalidSegment, subject)
	}
	if !safeSegment(source) {
		return nil, fmt.Errorf("%w: source %q", ErrInvalidSegment, source)
	}

	date := now.UTC().Format(dateLayout)
	dir := filepath.Join(t.root, subject, source, date)
	target := &Target{
		Filename: name,
		Dir:      dir,
		FullPath: filepath.Join(dir, name),
		RelPath:  path.Join("/", subject, source, date, name),
	}

	if _, err := os.Lstat(target.FullPath); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка проверки %s: %w", target.RelPath, err)
	}

	return target, nil
}

// TempPath возвращает путь скрытого временного файла в целевой директории.
func (t *Tree) TempPath(target *Target) string {
	return filepath.Join(target.Dir, "."+target.Filename+"."+uuid.New().String()+".part")
}

// Receive создаёт целевую директорию и записывает r во временный файл tmpPath
// порциями по ChunkSize. Как только счётчик байтов превышает лимит,
// запись прерывается с ErrTooLarge. При любой ошибке временный файл удаляется.
// Возвращает число записанных байтов.
func (t *Tree) Receive(target *Target, tmpPath string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(target.Dir, 0o750); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию %s: %w", target.Dir, err)
	}

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	written, err := copyCapped(f, r, t.maxSize)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return written, err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return written, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return written, nil
}

// Publish делает временный файл видимым под итоговым именем.
// Жёсткая ссылка не перезаписывает существующий файл: если итоговое
// имя занято параллельной загрузкой, возвращается ErrExists.
// Временный файл удаляется в любом случае.
func (t *Tree) Publish(target *Target, tmpPath string) error {
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, target.FullPath); err != nil {
		if errors.Is(err, fs.ErrExist) || errors.Is(err, syscall.EEXIST) {
			return ErrExists
		}
		return fmt.Errorf("ошибка публикации %s: %w", target.RelPath, err)
	}
	return nil
}

// Discard удаляет временный файл. Отсутствующий файл не считается ошибкой.
func (t *Tree) Discard(tmpPath string) error {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления %s: %w", tmpPath, err)
	}
	return nil
}

// Resolve переводит ссылку на файл (fileUrl) в абсолютный путь внутри корня.
// prefix — публичный префикс ссылок (например /datasets), снимается, если ссылка
// с него начинается. Симлинки разрешаются до проверки принадлежности корню.
// Возвращает ErrPathEscape для путей за пределами корня
// и ErrFileNotFound для отсутствующих файлов.
func (t *Tree) Resolve(ref, prefix string) (string, error) {
	rel := ref
	if prefix != "" && (rel == prefix || strings.HasPrefix(rel, prefix+"/")) {
		rel = strings.TrimPrefix(rel, prefix)
	}

	candidate := filepath.Join(t.root, filepath.FromSlash(rel))
	if !within(t.root, candidate) {
		return "", ErrPathEscape
	}

	rootReal, err := filepath.EvalSymlinks(t.root)
	if err != nil {
		return "", fmt.Errorf("ошибка разрешения корня загрузок: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("ошибка разрешения пути: %w", err)
	}
	if !within(rootReal, resolved) {
		return "", ErrPathEscape
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("ошибка получения информации о файле: %w", err)
	}
	if info.IsDir() {
		return "", ErrFileNotFound
	}

	return resolved, nil
}

// CheckReady проверяет, что корень существует и доступен на запись.
func (t *Tree) CheckReady() error {
	probe := filepath.Join(t.root, ".uploads_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return fmt.Errorf("директория загрузок %s недоступна для записи: %w", t.root, err)
	}
	os.Remove(probe)
	return nil
}

// BaseName возвращает имя файла без каталогов.
// Учитываются оба разделителя: браузеры на Windows присылают полный путь.
func BaseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.TrimSpace(filename)
	if filename == "." || filename == ".." {
		return ""
	}
	return filename
}

// copyCapped копирует src в dst порциями по ChunkSize.
// Счётчик проверяется до записи порции, поэтому на диск
// никогда не попадает больше limit байтов.
func copyCapped(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if written+int64(n) > limit {
				return written, ErrTooLarge
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("ошибка записи данных: %w", werr)
			}
			written += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				return written, nil
			}
			return written, fmt.Errorf("ошибка чтения данных: %w", rerr)
		}
	}
}

// safeSegment проверяет, что s — один непустой сегмент пути.
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// within проверяет, что path совпадает с root или лежит внутри него.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
