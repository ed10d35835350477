package feed

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/marketfeed/internal/api"
	"github.com/rickgao/marketfeed/internal/auth"
	"github.com/rickgao/marketfeed/internal/config"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/retry"
	"github.com/rickgao/marketfeed/internal/source"
	"github.com/rickgao/marketfeed/internal/version"
)

// Build creates the source set for every enabled source in cfg.
func Build(cfg *config.Config, universe Universe, logger *slog.Logger) (source.Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		Jitter:      cfg.Retry.Jitter,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	var set source.Set
	for _, sc := range cfg.EnabledSources() {
		creds, err := auth.LoadCredentials(sc.Auth.APIKey, sc.Auth.APIKeyFile, sc.Auth.Header, sc.Auth.QueryParam)
		if err != nil {
			return source.Set{}, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		client := api.NewClient(sc.Name, sc.BaseURL,
			api.WithTimeout(sc.Timeout),
			api.WithRetryPolicy(policy),
			api.WithRateLimit(sc.RateLimit, sc.Burst),
			api.WithCredentials(creds),
			api.WithUserAgent(version.UserAgent()),
			api.WithLogger(logger),
		)
		fc := Config{
			Name:       sc.Name,
			Provider:   model.Provider(sc.Provider),
			Stream:     model.Stream(sc.Stream),
			Path:       sc.Path,
			HealthPath: sc.HealthPath,
		}

		switch fc.Stream {
		case model.StreamMacroNews, model.StreamCompanyNews:
			set.News = append(set.News, NewNewsFeed(fc, client, logger))
		case model.StreamPrice:
			set.Prices = append(set.Prices, NewPriceFeed(fc, client, universe, logger))
		case model.StreamSocial:
			set.Social = append(set.Social, NewSocialFeed(fc, client, logger))
		default:
			return source.Set{}, fmt.Errorf("source %s: unsupported stream %q", sc.Name, sc.Stream)
		}
		logger.Debug("source configured", "source", sc.Name, "provider", sc.Provider, "stream", sc.Stream, "auth", creds.Redacted())
	}
	return set, nil
}
