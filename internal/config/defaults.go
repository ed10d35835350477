package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultPollInterval       = 5 * time.Minute
	DefaultPollConcurrency    = 8
	DefaultFetchTimeout       = 60 * time.Second
	DefaultRetryMaxAttempts   = 3
	DefaultRetryBaseDelay     = 1 * time.Second
	DefaultRetryMultiplier    = 2.0
	DefaultRetryJitter        = 500 * time.Millisecond
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultReconcileThreshold = "0.01"
	DefaultSessionTimezone    = "America/New_York"
	DefaultSessionClose       = 16 * time.Hour
	DefaultSourceTimeout      = 30 * time.Second
	DefaultSourceHealthPath   = "/"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultLogMaxSizeMB       = 100
	DefaultLogMaxBackups      = 5
	DefaultLogMaxAgeDays      = 28
	DefaultServerPort         = 9090
	DefaultServerMode         = "release"
	DefaultBatchLag           = 1 * time.Hour
)

// MinBatchLag is the smallest accepted batch.lag. It mirrors the cutoff lag
// the store enforces when committing a batch.
const MinBatchLag = time.Minute

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	// Database defaults
	applyDBDefaults(&c.Database)

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.FetchTimeout == 0 {
		c.Poller.FetchTimeout = DefaultFetchTimeout
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultRetryMultiplier
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = DefaultRetryJitter
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultRetryMaxDelay
	}

	if c.Reconcile.Threshold == "" {
		c.Reconcile.Threshold = DefaultReconcileThreshold
	}

	if c.Session.Timezone == "" {
		c.Session.Timezone = DefaultSessionTimezone
	}
	if c.Session.DefaultClose == 0 {
		c.Session.DefaultClose = DefaultSessionClose
	}

	// Source defaults
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Timeout == 0 {
			s.Timeout = DefaultSourceTimeout
		}
		if s.HealthPath == "" {
			s.HealthPath = DefaultSourceHealthPath
		}
		if s.Burst == 0 && s.RateLimit > 0 {
			s.Burst = 1
		}
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultServerMode
	}

	if c.Batch.Lag == 0 {
		c.Batch.Lag = DefaultBatchLag
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
