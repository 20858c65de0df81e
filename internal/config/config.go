/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"stars-imagegen-bot/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	generationTimeout, err := getEnvDuration("GENERATION_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("REPLICATE_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	dedupWindow, err := getEnvDuration("UPDATE_DEDUP_WINDOW", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("UPDATE_CLEANUP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	adminId, err := getEnvInt64("ADMIN_ID", 0)
	if err != nil {
		return nil, err
	}

	notifyRate, err := getEnvFloat("NOTIFY_RATE", 1)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "bot.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 8),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 4),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Ledger: models.LedgerConfig{
			StartingBalance: int64(getEnvInt("STARTING_BALANCE", 3)),
			CostPerImage:    int64(getEnvInt("COST_PER_IMAGE", 1)),
			PackagesFile:    getEnvString("PACKAGES_FILE", "packages.yaml"),
		},
		Bot: models.BotConfig{
			Token:           os.Getenv("TELEGRAM_BOT_TOKEN"),
			Mode:            getEnvString("BOT_MODE", "polling"),
			WebhookURL:      os.Getenv("WEBHOOK_URL"),
			WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
			HTTPAddr:        getEnvString("HTTP_ADDR", ":8080"),
			AdminId:         adminId,
			MaxReferences:   getEnvInt("MAX_REFERENCE_IMAGES", 4),
			DedupWindow:     dedupWindow,
			CleanupInterval: cleanupInterval,
		},
		Gateway: models.GatewayConfig{
			ReplicateAPIKey: os.Getenv("REPLICATE_API_KEY"),
			ReplicateModel:  getEnvString("REPLICATE_MODEL", "black-forest-labs/flux-schnell"),
			ReplicateURL:    getEnvString("REPLICATE_URL", "https://api.replicate.com"),
			RenderURL:       os.Getenv("RENDER_URL"),
			Timeout:         generationTimeout,
			PollInterval:    pollInterval,
		},
		Report: models.ReportConfig{
			Enabled:      getEnvBool("REPORT_ENABLED", true),
			UTCOffsetMin: getEnvInt("REPORT_UTC_OFFSET", 180),
			Hour:         getEnvInt("REPORT_HOUR", 12),
			Minute:       getEnvInt("REPORT_MINUTE", 0),
			TopN:         getEnvInt("REPORT_TOP_N", 5),
		},
		Notify: models.NotifyConfig{
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 64),
			Workers:   getEnvInt("NOTIFY_WORKERS", 1),
			Rate:      notifyRate,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	if cfg.Ledger.StartingBalance < 0 {
		return fmt.Errorf("STARTING_BALANCE cannot be negative, got %d", cfg.Ledger.StartingBalance)
	}
	if cfg.Ledger.CostPerImage <= 0 {
		return fmt.Errorf("COST_PER_IMAGE must be positive, got %d", cfg.Ledger.CostPerImage)
	}
	if cfg.Bot.Mode != "polling" && cfg.Bot.Mode != "webhook" {
		return fmt.Errorf("BOT_MODE must be polling or webhook, got %q", cfg.Bot.Mode)
	}
	if cfg.Bot.MaxReferences < 0 {
		return fmt.Errorf("MAX_REFERENCE_IMAGES cannot be negative, got %d", cfg.Bot.MaxReferences)
	}
	if cfg.Gateway.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %v", cfg.Gateway.Timeout)
	}
	if cfg.Report.Hour < 0 || cfg.Report.Hour > 23 {
		return fmt.Errorf("REPORT_HOUR must be within 0..23, got %d", cfg.Report.Hour)
	}
	if cfg.Report.Minute < 0 || cfg.Report.Minute > 59 {
		return fmt.Errorf("REPORT_MINUTE must be within 0..59, got %d", cfg.Report.Minute)
	}
	if cfg.Report.UTCOffsetMin < -14*60 || cfg.Report.UTCOffsetMin > 14*60 {
		return fmt.Errorf("REPORT_UTC_OFFSET out of range, got %d minutes", cfg.Report.UTCOffsetMin)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return intValue, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return floatValue, nil
	}
	return defaultValue, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
