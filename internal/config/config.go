// Пакет config — загрузка и валидация конфигурации Photo Module
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

// Config содержит все параметры конфигурации Photo Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Приём загрузок ---

	// Каталог для временных файлов до финализации модерации
	TempDir string
	// Максимальный размер загружаемого файла в байтах (по умолчанию 50 MB)
	MaxUploadSize int64

	// --- Внешнее хранилище изображений ---

	// Базовый URL API хранилища изображений
	ImagesAPIURL string
	// Bearer-токен API хранилища изображений
	ImagesToken string
	// Account hash для построения delivery URL
	ImagesAccountHash string
	// Базовый delivery URL (по умолчанию https://imagedelivery.net)
	ImagesDeliveryURL string
	// Таймаут запросов к хранилищу изображений (по умолчанию 30s)
	ImagesTimeout time.Duration

	// --- Модерация ---

	// Общий секрет для admin/модераторских endpoints.
	// Пустая строка — защита отключена (как в дев-окружении).
	AdminToken string

	// --- Галерейный клиент (retry + кэш) ---

	// Максимальное количество повторов запроса (по умолчанию 3)
	GalleryMaxRetries int
	// Базовая задержка перед повтором, удваивается на каждой попытке (по умолчанию 300ms)
	GalleryBaseDelay time.Duration
	// Максимальное количество записей в кэше чтения (по умолчанию 128)
	GalleryCacheSize int
	// TTL записи кэша чтения (по умолчанию 5m)
	GalleryCacheTTL time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("PM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("PM_PORT: %w", err)
	}

	// PM_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("PM_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("PM_LOG_LEVEL: %w", err)
	}

	// PM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("PM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("PM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("PM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// PM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("PM_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("PM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PM_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("PM_DB_NAME", "photoarchive")
	cfg.DBUser = getEnvDefault("PM_DB_USER", "photoarchive")
	cfg.DBPassword = os.Getenv("PM_DB_PASSWORD")
	cfg.DBSSLMode = getEnvDefault("PM_DB_SSL_MODE", "disable")

	// --- Приём загрузок ---

	cfg.TempDir = getEnvDefault("PM_TEMP_DIR", "uploads/temp")

	maxUpload, err := getEnvInt("PM_MAX_UPLOAD_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("PM_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("PM_MAX_UPLOAD_SIZE: значение должно быть > 0")
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- Внешнее хранилище изображений ---

	cfg.ImagesAPIURL = os.Getenv("PM_IMAGES_API_URL")
	cfg.ImagesToken = os.Getenv("PM_IMAGES_TOKEN")
	cfg.ImagesAccountHash = os.Getenv("PM_IMAGES_ACCOUNT_HASH")
	cfg.ImagesDeliveryURL = getEnvDefault("PM_IMAGES_DELIVERY_URL", "https://imagedelivery.net")
	cfg.ImagesTimeout, err = getEnvDuration("PM_IMAGES_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_IMAGES_TIMEOUT: %w", err)
	}

	// --- Модерация ---

	cfg.AdminToken = os.Getenv("PM_ADMIN_TOKEN")

	// --- Галерейный клиент ---

	cfg.GalleryMaxRetries, err = getEnvInt("PM_GALLERY_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("PM_GALLERY_MAX_RETRIES: %w", err)
	}
	if cfg.GalleryMaxRetries < 0 {
		return nil, fmt.Errorf("PM_GALLERY_MAX_RETRIES: значение должно быть >= 0")
	}
	cfg.GalleryBaseDelay, err = getEnvDuration("PM_GALLERY_BASE_DELAY", 300*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("PM_GALLERY_BASE_DELAY: %w", err)
	}
	cfg.GalleryCacheSize, err = getEnvInt("PM_GALLERY_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("PM_GALLERY_CACHE_SIZE: %w", err)
	}
	cfg.GalleryCacheTTL, err = getEnvDuration("PM_GALLERY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PM_GALLERY_CACHE_TTL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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
