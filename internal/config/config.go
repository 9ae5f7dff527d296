package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the ledger service.
type Config struct {
	HTTPAddress      string
	DatabaseURL      string
	LocalBinaryStore bool

	FirestoreProject     string
	FirestoreCredentials string
	StorageBucket        string

	TelegramToken  string
	TelegramChatID int64

	AutosaveInterval time.Duration
	SummaryTime      string
	LogFile          string
}

// CloudEnabled reports whether a Firestore project was configured.
func (c Config) CloudEnabled() bool { return c.FirestoreProject != "" }

// BotEnabled reports whether the Telegram intake should run.
func (c Config) BotEnabled() bool { return c.TelegramToken != "" }

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddress:          env("HTTP_ADDRESS"),
		DatabaseURL:          env("DATABASE_URL"),
		LocalBinaryStore:     true,
		FirestoreProject:     env("FIRESTORE_PROJECT"),
		FirestoreCredentials: env("FIRESTORE_CREDENTIALS"),
		StorageBucket:        env("STORAGE_BUCKET"),
		TelegramToken:        env("TELEGRAM_TOKEN"),
		AutosaveInterval:     parseInterval(env("AUTOSAVE_INTERVAL")),
		SummaryTime:          env("SUMMARY_TIME"),
		LogFile:              env("LOG_FILE"),
	}

	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = ":8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "data/ledger.db"
	}
	if cfg.AutosaveInterval == 0 {
		cfg.AutosaveInterval = 5 * time.Second
	}
	if cfg.SummaryTime == "" {
		cfg.SummaryTime = "20:00"
	}

	if raw := env("LOCAL_BINARY_STORE"); raw != "" {
		binary, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("LOCAL_BINARY_STORE: %w", err)
		}
		cfg.LocalBinaryStore = binary
	}

	if raw := env("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.StorageBucket != "" && cfg.FirestoreProject == "" {
		return cfg, fmt.Errorf("STORAGE_BUCKET requires FIRESTORE_PROJECT")
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// parseInterval accepts a Go duration ("5s", "1m") or a bare number of
// seconds.
func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
