package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Ledger   LedgerConfig
	Bot      BotConfig
	Gateway  GatewayConfig
	Report   ReportConfig
	Notify   NotifyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// LedgerConfig holds credit pricing rules
type LedgerConfig struct {
	StartingBalance int64
	CostPerImage    int64
	PackagesFile    string
}

// BotConfig holds Telegram transport settings
type BotConfig struct {
	Token           string
	Mode            string // "polling" or "webhook"
	WebhookURL      string
	WebhookSecret   string
	HTTPAddr        string
	AdminId         int64
	MaxReferences   int
	DedupWindow     time.Duration
	CleanupInterval time.Duration
}

// GatewayConfig holds image generation provider settings
type GatewayConfig struct {
	ReplicateAPIKey string
	ReplicateModel  string
	ReplicateURL    string
	RenderURL       string
	Timeout         time.Duration
	PollInterval    time.Duration
}

// ReportConfig holds daily report settings
type ReportConfig struct {
	Enabled      bool
	UTCOffsetMin int
	Hour         int
	Minute       int
	TopN         int
}

// NotifyConfig holds operator notification settings
type NotifyConfig struct {
	QueueSize int
	Workers   int
	Rate      float64
}
