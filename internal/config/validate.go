package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // session.timezone must resolve without system zoneinfo

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/watermark"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	if c.Poller.FetchTimeout <= 0 {
		return errors.New("poller.fetch_timeout must be > 0")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %g", c.Retry.Multiplier)
	}

	if _, err := c.Threshold(); err != nil {
		return err
	}

	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone %q: %w", c.Session.Timezone, err)
	}

	if _, err := c.RuleOverrides(); err != nil {
		return err
	}

	if err := c.validateSources(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Batch.Lag < MinBatchLag {
		return fmt.Errorf("batch.lag must be >= %s, got %s", MinBatchLag, c.Batch.Lag)
	}

	return nil
}

func (c *Config) validateSources() error {
	names := make(map[string]model.Stream, len(c.Sources))
	for i, s := range c.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("%s.name %q is duplicated", prefix, s.Name)
		}
		p := model.Provider(s.Provider)
		if !p.Valid() || p == model.ProviderBatch {
			return fmt.Errorf("%s.provider %q is not a source provider", prefix, s.Provider)
		}
		st := model.Stream(s.Stream)
		if !st.Valid() || st == model.StreamProcessed {
			return fmt.Errorf("%s.stream %q is not a source stream", prefix, s.Stream)
		}
		if s.BaseURL == "" {
			return fmt.Errorf("%s.base_url is required", prefix)
		}
		if s.RateLimit < 0 {
			return fmt.Errorf("%s.rate_limit must be >= 0", prefix)
		}
		names[s.Name] = st
	}

	if p := c.Reconcile.DefaultPrimary; p != "" && names[p] != model.StreamPrice {
		return fmt.Errorf("reconcile.default_primary %q is not a configured price source", p)
	}
	for sym, p := range c.Reconcile.Primary {
		if names[p] != model.StreamPrice {
			return fmt.Errorf("reconcile.primary[%s] %q is not a configured price source", sym, p)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.URL == "" {
		if db.Host == "" {
			return fmt.Errorf("%s.host is required", prefix)
		}
		if db.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if db.User == "" {
			return fmt.Errorf("%s.user is required", prefix)
		}
		if db.Password == "" {
			return fmt.Errorf("%s.password is required", prefix)
		}
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// Threshold parses reconcile.threshold.
func (c *Config) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Reconcile.Threshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reconcile.threshold %q: %w", c.Reconcile.Threshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("reconcile.threshold must be >= 0, got %s", d)
	}
	return d, nil
}

// RuleOverrides converts the watermarks section into rule overrides.
func (c *Config) RuleOverrides() ([]watermark.Override, error) {
	out := make([]watermark.Override, 0, len(c.Watermarks))
	for i, w := range c.Watermarks {
		p, s := model.Provider(w.Provider), model.Stream(w.Stream)
		if !p.Valid() || !s.Valid() {
			return nil, fmt.Errorf("watermarks[%d]: unknown provider stream %s/%s", i, w.Provider, w.Stream)
		}
		out = append(out, watermark.Override{
			Provider: p,
			Stream:   s,
			Overlap:  w.Overlap,
			FirstRun: w.FirstRun,
		})
	}
	return out, nil
}

// EnabledSources returns the sources not marked disabled.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
