package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения.
// DATABASE_URL и REDIS_ADDR необязательны: без них ядро работает
// на внутрипроцессных хранилищах (демо-режим, один процесс).
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Postgres (опционально) - общее хранилище для инцидентов,
	// событий, оповещений и аудита при горизонтальном масштабировании
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis (опционально) - бэкенд реестра согласий и очередь доставки
	RedisAddr string `env:"REDIS_ADDR"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Consent Config
	ConsentSecret   string        `env:"CONSENT_SECRET"`
	ConsentTokenTTL time.Duration `env:"CONSENT_TOKEN_TTL" envDefault:"24h"`

	// Webhook Config
	WebhookURL            string        `env:"WEBHOOK_URL"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries     int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay      time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`
	WebhookMaxConcurrency int64         `env:"WEBHOOK_MAX_CONCURRENCY" envDefault:"4"`

	// Sync Config
	BootstrapEventLimit int `env:"BOOTSTRAP_EVENT_LIMIT" envDefault:"100"`

	// Расписание фонового сброса просроченных оповещений.
	// Пустое значение - сброс только ленивый, при чтении.
	ExpirySweepCron string `env:"EXPIRY_SWEEP_CRON"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		ConsentSecret:         getEnv("CONSENT_SECRET", "dev-consent-secret"),
		ConsentTokenTTL:       getEnvAsDuration("CONSENT_TOKEN_TTL", 24*time.Hour),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		WebhookMaxConcurrency: int64(getEnvAsInt("WEBHOOK_MAX_CONCURRENCY", 4)),
		BootstrapEventLimit:   getEnvAsInt("BOOTSTRAP_EVENT_LIMIT", 100),
		ExpirySweepCron:       os.Getenv("EXPIRY_SWEEP_CRON"),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if cfg.BootstrapEventLimit < 1 {
		cfg.BootstrapEventLimit = 100
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
