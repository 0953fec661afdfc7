// Пакет config — загрузка и валидация конфигурации docvault
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

// Config содержит все параметры конфигурации docvault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8020-8029)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Основное хранилище объектов ---

	// Базовый URL хранилища (например, https://objstore.lendora.lan)
	StoreURL string
	// Статический токен доступа к хранилищу (опционально)
	StoreToken string
	// Путь к CA-сертификату для TLS-соединений с хранилищем (опционально)
	StoreCACertPath string
	// Таймаут HTTP-запросов к хранилищу
	StoreTimeout time.Duration
	// Количество попыток put перед признанием хранилища недоступным
	StorePutRetries int

	// --- Fallback-хранилище ---

	// Путь к директории fallback-хранилища
	FallbackDir string

	// --- Ограничения ---

	// Максимальный размер загружаемого документа в байтах
	MaxFileSize int64
	// TTL подписанных URL
	SignedURLTTL time.Duration

	// --- Сверка и восстановление ---

	// Интервал фоновой сверки (0 — только по запросу)
	ScanInterval time.Duration
	// Число параллельных миграций в bulk-режиме
	RecoveryConcurrency int

	// --- Кэш метаданных ---

	// Максимальное количество записей в LRU-кэше
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DV_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("DV_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("DV_PORT: %w", err)
	}
	if cfg.Port < 8020 || cfg.Port > 8029 {
		return nil, fmt.Errorf("DV_PORT: значение %d вне допустимого диапазона 8020-8029", cfg.Port)
	}

	// DV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DV_LOG_LEVEL: %w", err)
	}

	// DV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// DV_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DV_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DV_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DV_DB_PORT: %w", err)
	}

	// DV_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("DV_DB_NAME")
	if err != nil {
		return nil, err
	}

	// DV_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DV_DB_USER")
	if err != nil {
		return nil, err
	}

	// DV_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DV_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DV_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Основное хранилище ---

	// DV_STORE_URL — обязательный
	cfg.StoreURL, err = getEnvRequired("DV_STORE_URL")
	if err != nil {
		return nil, err
	}
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")

	// DV_STORE_TOKEN — токен доступа (опционально)
	cfg.StoreToken = getEnvDefault("DV_STORE_TOKEN", "")

	// DV_STORE_CA_CERT_PATH — CA-сертификат хранилища (опционально)
	cfg.StoreCACertPath = getEnvDefault("DV_STORE_CA_CERT_PATH", "")

	// DV_STORE_TIMEOUT — таймаут запросов к хранилищу (по умолчанию 30s)
	cfg.StoreTimeout, err = getEnvDuration("DV_STORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_STORE_TIMEOUT: %w", err)
	}

	// DV_STORE_PUT_RETRIES — количество попыток put (по умолчанию 3)
	cfg.StorePutRetries, err = getEnvInt("DV_STORE_PUT_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("DV_STORE_PUT_RETRIES: %w", err)
	}
	if cfg.StorePutRetries < 1 || cfg.StorePutRetries > 10 {
		return nil, fmt.Errorf("DV_STORE_PUT_RETRIES: значение %d вне допустимого диапазона 1-10", cfg.StorePutRetries)
	}

	// --- Fallback ---

	// DV_FALLBACK_DIR — обязательный
	cfg.FallbackDir, err = getEnvRequired("DV_FALLBACK_DIR")
	if err != nil {
		return nil, err
	}

	// --- Ограничения ---

	// DV_MAX_FILE_SIZE — максимальный размер документа (по умолчанию 50 МиБ)
	maxSize, err := getEnvInt("DV_MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("DV_MAX_FILE_SIZE: %w", err)
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("DV_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = int64(maxSize)

	// DV_SIGNED_URL_TTL — TTL подписанных URL (по умолчанию 15m)
	cfg.SignedURLTTL, err = getEnvDuration("DV_SIGNED_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_SIGNED_URL_TTL: %w", err)
	}

	// --- Сверка и восстановление ---

	// DV_SCAN_INTERVAL — интервал фоновой сверки (по умолчанию 0 — отключена)
	cfg.ScanInterval, err = getEnvDuration("DV_SCAN_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("DV_SCAN_INTERVAL: %w", err)
	}

	// DV_RECOVERY_CONCURRENCY — параллелизм bulk-миграции (по умолчанию 5)
	cfg.RecoveryConcurrency, err = getEnvInt("DV_RECOVERY_CONCURRENCY", 5)
	if err != nil {
		return nil, fmt.Errorf("DV_RECOVERY_CONCURRENCY: %w", err)
	}
	if cfg.RecoveryConcurrency < 1 || cfg.RecoveryConcurrency > 64 {
		return nil, fmt.Errorf("DV_RECOVERY_CONCURRENCY: значение %d вне допустимого диапазона 1-64", cfg.RecoveryConcurrency)
	}

	// --- Кэш ---

	// DV_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("DV_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DV_CACHE_SIZE: %w", err)
	}

	// DV_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("DV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	// DV_DEPHEALTH_GROUP — имя группы (по умолчанию lendora)
	cfg.DephealthGroup = getEnvDefault("DV_DEPHEALTH_GROUP", "lendora")

	// DV_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// DV_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для dephealth-лейблов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
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
