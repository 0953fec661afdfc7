package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv задаёт минимальный набор обязательных переменных.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DV_DB_HOST", "localhost")
	t.Setenv("DV_DB_NAME", "docvault")
	t.Setenv("DV_DB_USER", "docvault")
	t.Setenv("DV_DB_PASSWORD", "secret")
	t.Setenv("DV_STORE_URL", "https://objstore.lendora.lan/")
	t.Setenv("DV_FALLBACK_DIR", "/var/lib/docvault/fallback")
}

// TestLoad_Defaults проверяет значения по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port: ожидалось 8020, получено %d", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидался info, получен %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидался json, получен %s", cfg.LogFormat)
	}
	if cfg.StorePutRetries != 3 {
		t.Errorf("StorePutRetries: ожидалось 3, получено %d", cfg.StorePutRetries)
	}
	if cfg.MaxFileSize != 50*1024*1024 {
		t.Errorf("MaxFileSize: ожидалось 50 МиБ, получено %d", cfg.MaxFileSize)
	}
	if cfg.SignedURLTTL != 15*time.Minute {
		t.Errorf("SignedURLTTL: ожидалось 15m, получено %v", cfg.SignedURLTTL)
	}
	if cfg.ScanInterval != 0 {
		t.Errorf("ScanInterval: ожидался 0, получено %v", cfg.ScanInterval)
	}
	if cfg.RecoveryConcurrency != 5 {
		t.Errorf("RecoveryConcurrency: ожидалось 5, получено %d", cfg.RecoveryConcurrency)
	}
	if cfg.DephealthGroup != "lendora" {
		t.Errorf("DephealthGroup: ожидалось lendora, получено %s", cfg.DephealthGroup)
	}

	// Хвостовой слэш URL хранилища должен срезаться
	if strings.HasSuffix(cfg.StoreURL, "/") {
		t.Errorf("StoreURL не нормализован: %s", cfg.StoreURL)
	}
}

// TestLoad_MissingRequired проверяет ошибку при отсутствии обязательной переменной.
func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DV_STORE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка при пустом DV_STORE_URL")
	}
}

// TestLoad_PortRange проверяет валидацию диапазона порта.
func TestLoad_PortRange(t *testing.T) {
	setRequiredEnv(t)

	for _, port := range []string{"8019", "8030", "80"} {
		t.Setenv("DV_PORT", port)
		if _, err := Load(); err == nil {
			t.Errorf("порт %s вне диапазона 8020-8029 должен отклоняться", port)
		}
	}

	t.Setenv("DV_PORT", "8025")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("порт 8025 должен приниматься: %v", err)
	}
	if cfg.Port != 8025 {
		t.Errorf("Port: ожидалось 8025, получено %d", cfg.Port)
	}
}

// TestLoad_InvalidValues проверяет отклонение некорректных значений.
func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"некорректный уровень логирования", "DV_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "DV_LOG_FORMAT", "xml"},
		{"некорректный ssl mode", "DV_DB_SSL_MODE", "maybe"},
		{"нечисловой порт", "DV_PORT", "abc"},
		{"retries вне диапазона", "DV_STORE_PUT_RETRIES", "0"},
		{"concurrency вне диапазона", "DV_RECOVERY_CONCURRENCY", "100"},
		{"некорректная длительность", "DV_SCAN_INTERVAL", "пять минут"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s должно отклоняться", tc.key, tc.value)
			}
		})
	}
}

// TestDatabaseDSN проверяет формирование строки подключения.
func TestDatabaseDSN(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("ошибка загрузки конфигурации: %v", err)
	}

	dsn := cfg.DatabaseDSN()
	for _, part := range []string{"host=localhost", "dbname=docvault", "user=docvault", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN не содержит %q: %s", part, dsn)
		}
	}

	url := cfg.DatabaseURL()
	if !strings.HasPrefix(url, "postgres://docvault@localhost:5432/docvault") {
		t.Errorf("неожиданный URL: %s", url)
	}
}
