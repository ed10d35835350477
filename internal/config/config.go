package config

import "time"

// Config is the root configuration for an ingestor instance.
type Config struct {
	Instance   InstanceConfig      `yaml:"instance"`
	Database   DBConfig            `yaml:"database"`
	Symbols    []string            `yaml:"symbols"`
	Poller     PollerConfig        `yaml:"poller"`
	Retry      RetryConfig         `yaml:"retry"`
	Reconcile  ReconcileConfig     `yaml:"reconcile"`
	Session    SessionConfig       `yaml:"session"`
	Watermarks []WatermarkOverride `yaml:"watermarks"`
	Sources    []SourceConfig      `yaml:"sources"`
	Logging    LoggingConfig       `yaml:"logging"`
	Server     ServerConfig        `yaml:"server"`
	Batch      BatchConfig         `yaml:"batch"`
}

// InstanceConfig identifies this ingestor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	URL      string `yaml:"url"` // full connection string, overrides the fields below
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds poll orchestrator settings.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// IncludeHoldings adds symbols from the holdings table to the configured list.
	IncludeHoldings bool `yaml:"include_holdings"`
}

// RetryConfig holds the backoff policy shared by source HTTP clients.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      time.Duration `yaml:"jitter"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ReconcileConfig holds cross-source price reconciliation settings.
type ReconcileConfig struct {
	Threshold      string            `yaml:"threshold"`       // absolute decimal, e.g. "0.01"
	DefaultPrimary string            `yaml:"default_primary"` // price source name
	Primary        map[string]string `yaml:"primary"`         // symbol -> price source name
}

// SessionConfig holds market session classification settings.
type SessionConfig struct {
	Timezone     string        `yaml:"timezone"`
	DefaultClose time.Duration `yaml:"default_close"` // used when the calendar lookup fails
}

// WatermarkOverride adjusts the cursor windows of one provider stream.
type WatermarkOverride struct {
	Provider string         `yaml:"provider"`
	Stream   string         `yaml:"stream"`
	Overlap  *time.Duration `yaml:"overlap"`
	FirstRun *time.Duration `yaml:"first_run"`
}

// SourceConfig describes one external data source.
type SourceConfig struct {
	Name       string        `yaml:"name"`
	Provider   string        `yaml:"provider"`
	Stream     string        `yaml:"stream"`
	Disabled   bool          `yaml:"disabled"`
	BaseURL    string        `yaml:"base_url"`
	Path       string        `yaml:"path"`
	HealthPath string        `yaml:"health_path"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
	Auth       AuthConfig    `yaml:"auth"`
}

// AuthConfig holds source credentials.
type AuthConfig struct {
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // read when api_key is empty
	Header     string `yaml:"header"`       // e.g. X-API-Key
	QueryParam string `yaml:"query_param"`  // e.g. token, used when header is empty
}

// LoggingConfig holds process logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text, json
	File       string `yaml:"file"`   // empty = stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig holds the health and inspection HTTP server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Mode    string `yaml:"mode"` // gin mode: release, debug, test
}

// BatchConfig holds downstream batch pruning settings.
type BatchConfig struct {
	// Lag is how far behind now the prune cutoff is placed.
	Lag time.Duration `yaml:"lag"`
}
