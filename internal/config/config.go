// Пакет config — загрузка и валидация конфигурации каталога
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые хранилища записей каталога.
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

// DefaultAllowedExtensions — расширения файлов, разрешённые к загрузке по умолчанию.
var DefaultAllowedExtensions = []string{".csv", ".json", ".xml", ".xlsx", ".xls", ".pdf", ".tsv", ".zip"}

// Config содержит все параметры конфигурации каталога.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
	// Разрешённые CORS origins ("*" — любые)
	CORSAllowedOrigins []string
	// Проверять JSON-запросы по OpenAPI-контракту
	OpenAPIValidation bool

	// --- Хранилище записей ---

	// json или postgres
	StoreBackend string
	// Путь к JSON-документу с записями
	DataFile string

	// --- PostgreSQL (только StoreBackend=postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Загрузка файлов ---

	// Корень дерева загруженных файлов
	FilesDir string
	// Префикс fileUrl в ответах API (/datasets)
	FilesURLPrefix string
	// Директория журнала загрузок
	WALDir string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Разрешённые расширения (в нижнем регистре, с точкой)
	AllowedExtensions []string

	// --- AI ---

	// Базовый URL chat API
	AIBaseURL string
	// URL выдачи access token
	AIAuthURL string
	// Ключ авторизации (Basic); пустой — AI отключён
	AIAuthKey string
	// OAuth scope
	AIScope string
	// Имя модели
	AIModel string
	// Таймаут HTTP-запросов к upstream
	AITimeout time.Duration
	// Минимальный интервал между вызовами chat API
	AIMinInterval time.Duration
	// Сколько последних сообщений истории передавать
	AIHistoryLimit int
	// Размер и TTL кэша ответов
	AICacheSize int
	AICacheTTL  time.Duration
	// Пропускать проверку TLS upstream
	AITLSSkipVerify bool

	// --- JWT (опционально) ---

	// URL JWKS; пустой — аутентификация отключена
	JWKSUrl string
	// Путь к CA-сертификату для JWKS endpoint
	JWKSCACert string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthCheckInterval time.Duration
	DephealthGroup         string
	DephealthName          string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны или не заданы
// обязательные для выбранного хранилища переменные.
//
//nolint:gocyclo,cyclop // линейная последовательность проверок
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CATALOG_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("CATALOG_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("CATALOG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CATALOG_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CATALOG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CATALOG_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CATALOG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CATALOG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("CATALOG_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись ответа включает стриминг файлов и ожидание upstream AI
	if cfg.HTTPWriteTimeout, err = getEnvDuration("CATALOG_HTTP_WRITE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("CATALOG_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CATALOG_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.CORSAllowedOrigins = splitList(getEnvDefault("CATALOG_CORS_ALLOWED_ORIGINS", "*"))

	if cfg.OpenAPIValidation, err = getEnvBool("CATALOG_OPENAPI_VALIDATION", true); err != nil {
		return nil, fmt.Errorf("CATALOG_OPENAPI_VALIDATION: %w", err)
	}

	// --- Хранилище записей ---

	cfg.StoreBackend = getEnvDefault("CATALOG_STORE_BACKEND", BackendJSON)
	if cfg.StoreBackend != BackendJSON && cfg.StoreBackend != BackendPostgres {
		return nil, fmt.Errorf("CATALOG_STORE_BACKEND: недопустимое значение %q, допустимые: json, postgres", cfg.StoreBackend)
	}
	cfg.DataFile = getEnvDefault("CATALOG_DATA_FILE", "./data/datasets.json")

	if cfg.StoreBackend == BackendPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- Загрузка файлов ---

	cfg.FilesDir = getEnvDefault("CATALOG_FILES_DIR", "./datasets")
	cfg.FilesURLPrefix = strings.TrimRight(getEnvDefault("CATALOG_FILES_URL_PREFIX", "/datasets"), "/")
	cfg.WALDir = getEnvDefault("CATALOG_WAL_DIR", "./data/wal")

	// CATALOG_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 100 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("CATALOG_MAX_UPLOAD_SIZE", 100*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("CATALOG_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("CATALOG_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.AllowedExtensions, err = parseExtensions(getEnvDefault("CATALOG_ALLOWED_EXTENSIONS",
		strings.Join(DefaultAllowedExtensions, ",")))
	if err != nil {
		return nil, fmt.Errorf("CATALOG_ALLOWED_EXTENSIONS: %w", err)
	}

	// --- AI ---

	if err := loadAI(cfg); err != nil {
		return nil, err
	}

	// --- JWT ---

	cfg.JWKSUrl = getEnvDefault("CATALOG_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("CATALOG_JWKS_CA_CERT", "")
	if cfg.JWKSRefreshInterval, err = getEnvDuration("CATALOG_JWKS_REFRESH_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("CATALOG_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("CATALOG_DEPHEALTH_CHECK_INTERVAL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CATALOG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("CATALOG_DEPHEALTH_GROUP", "innocivic")
	// DEPHEALTH_NAME — имя вершины графа (без префикса модуля)
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "catalog")

	return cfg, nil
}

// loadDatabase читает параметры подключения к PostgreSQL.
func loadDatabase(cfg *Config) error {
	var err error

	if cfg.DBHost, err = getEnvRequired("CATALOG_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("CATALOG_DB_PORT", 5432); err != nil {
		return fmt.Errorf("CATALOG_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("CATALOG_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("CATALOG_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("CATALOG_DB_PASSWORD"); err != nil {
		return err
	}
	cfg.DBSSLMode = getEnvDefault("CATALOG_DB_SSL_MODE", "disable")
	return nil
}

// loadAI читает параметры upstream LLM API.
func loadAI(cfg *Config) error {
	var err error

	cfg.AIBaseURL = strings.TrimRight(getEnvDefault("CATALOG_AI_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"), "/")
	cfg.AIAuthURL = getEnvDefault("CATALOG_AI_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth")
	cfg.AIAuthKey = getEnvDefault("CATALOG_AI_AUTH_KEY", "")
	cfg.AIScope = getEnvDefault("CATALOG_AI_SCOPE", "GIGACHAT_API_PERS")
	cfg.AIModel = getEnvDefault("CATALOG_AI_MODEL", "GigaChat")

	if cfg.AITimeout, err = getEnvDuration("CATALOG_AI_TIMEOUT", 60*time.Second); err != nil {
		return fmt.Errorf("CATALOG_AI_TIMEOUT: %w", err)
	}
	// CATALOG_AI_MIN_INTERVAL — минимальный интервал между вызовами (по умолчанию 6s)
	if cfg.AIMinInterval, err = getEnvDuration("CATALOG_AI_MIN_INTERVAL", 6*time.Second); err != nil {
		return fmt.Errorf("CATALOG_AI_MIN_INTERVAL: %w", err)
	}
	if cfg.AIMinInterval < 0 {
		return fmt.Errorf("CATALOG_AI_MIN_INTERVAL: значение не может быть отрицательным")
	}
	if cfg.AIHistoryLimit, err = getEnvInt("CATALOG_AI_HISTORY_LIMIT", 10); err != nil {
		return fmt.Errorf("CATALOG_AI_HISTORY_LIMIT: %w", err)
	}
	if cfg.AIHistoryLimit < 1 {
		return fmt.Errorf("CATALOG_AI_HISTORY_LIMIT: значение должно быть >= 1")
	}
	if cfg.AICacheSize, err = getEnvInt("CATALOG_AI_CACHE_SIZE", 256); err != nil {
		return fmt.Errorf("CATALOG_AI_CACHE_SIZE: %w", err)
	}
	if cfg.AICacheSize < 1 {
		return fmt.Errorf("CATALOG_AI_CACHE_SIZE: значение должно быть >= 1")
	}
	if cfg.AICacheTTL, err = getEnvDuration("CATALOG_AI_CACHE_TTL", 10*time.Minute); err != nil {
		return fmt.Errorf("CATALOG_AI_CACHE_TTL: %w", err)
	}
	if cfg.AITLSSkipVerify, err = getEnvBool("CATALOG_AI_TLS_SKIP_VERIFY", false); err != nil {
		return fmt.Errorf("CATALOG_AI_TLS_SKIP_VERIFY: %w", err)
	}
	return nil
}

// AIEnabled возвращает true, если задан ключ авторизации upstream AI.
func (c *Config) AIEnabled() bool {
	return c.AIAuthKey != ""
}

// AuthEnabled возвращает true, если задан JWKS endpoint.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных.
// Используется в лейблах метрик зависимостей, не для подключения.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 6s, 10m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseExtensions разбирает список расширений через запятую.
// Точка в начале добавляется при отсутствии, регистр приводится к нижнему.
func parseExtensions(raw string) ([]string, error) {
	var result []string
	for _, ext := range splitList(raw) {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if len(ext) < 2 || strings.ContainsAny(ext, `/\`) {
			return nil, fmt.Errorf("некорректное расширение %q", ext)
		}
		result = append(result, ext)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("список расширений пуст")
	}
	return result, nil
}

// splitList разбивает строку по запятым, отбрасывая пустые элементы.
func splitList(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
