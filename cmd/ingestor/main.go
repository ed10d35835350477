package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketfeed/internal/config"
	"github.com/rickgao/marketfeed/internal/database"
	"github.com/rickgao/marketfeed/internal/feed"
	"github.com/rickgao/marketfeed/internal/logging"
	"github.com/rickgao/marketfeed/internal/market"
	"github.com/rickgao/marketfeed/internal/metrics"
	"github.com/rickgao/marketfeed/internal/poller"
	"github.com/rickgao/marketfeed/internal/router"
	"github.com/rickgao/marketfeed/internal/server"
	"github.com/rickgao/marketfeed/internal/session"
	"github.com/rickgao/marketfeed/internal/source"
	"github.com/rickgao/marketfeed/internal/store"
	"github.com/rickgao/marketfeed/internal/version"
	"github.com/rickgao/marketfeed/internal/watermark"
)

func main() {
	configPath := flag.String("config", "configs/ingestor.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	if err := run(*configPath, *envFile, *once); err != nil {
		slog.Error("ingestor failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, once bool) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting ingestor", append(version.Fields(),
		"instance_id", cfg.Instance.ID,
		"config", configPath,
	)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready", "max_conns", cfg.Database.MaxConns)

	st := store.New(pool, logger)
	marks := store.NewWatermarkStore(pool, logger)

	// Cursor rules
	overrides, err := cfg.RuleOverrides()
	if err != nil {
		return err
	}
	rules, err := watermark.DefaultRules().WithOverrides(overrides)
	if err != nil {
		return fmt.Errorf("watermark overrides: %w", err)
	}

	// Sources
	registry := market.NewRegistry(market.Config{
		Symbols:         cfg.Symbols,
		IncludeHoldings: cfg.Poller.IncludeHoldings,
	}, st, logger)
	sources, err := feed.Build(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	validateSources(ctx, sources.All(), logger)

	// Session classifier
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return fmt.Errorf("session timezone: %w", err)
	}
	classifier := session.NewClassifier(nil, logger,
		session.WithLocation(loc),
		session.WithDefaultClose(cfg.Session.DefaultClose),
	)

	threshold, err := cfg.Threshold()
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	p, err := poller.New(poller.Config{
		Interval:       cfg.Poller.Interval,
		Concurrency:    cfg.Poller.Concurrency,
		FetchTimeout:   cfg.Poller.FetchTimeout,
		Threshold:      threshold,
		DefaultPrimary: cfg.Reconcile.DefaultPrimary,
		Primary:        cfg.Reconcile.Primary,
	}, poller.Deps{
		Sources:    sources,
		Rules:      rules,
		Engine:     watermark.NewEngine(marks, logger),
		Storage:    st,
		Universe:   registry,
		Classifier: classifier,
		Router:     router.New(logger),
		Metrics:    m,
	}, logger)
	if err != nil {
		return err
	}

	if once {
		res := p.RunCycle(ctx)
		if len(res.Errors) > 0 {
			return fmt.Errorf("cycle %s finished with %d source errors", res.ID, len(res.Errors))
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Port:       cfg.Server.Port,
			Mode:       cfg.Server.Mode,
			StaleAfter: 3 * cfg.Poller.Interval,
		}, server.Deps{
			DB:         st,
			Watermarks: marks,
			Cycles:     p,
			Metrics:    m,
		}, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	// Start poller
	if err := p.Start(gctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	logger.Info("ingestor running",
		"sources", sources.Len(),
		"interval", cfg.Poller.Interval,
		"server", cfg.Server.Enabled,
	)

	// Wait for shutdown, or for the server to fail
	<-gctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller did not stop in time", "error", err)
	}

	err = g.Wait()
	logger.Info("ingestor stopped")
	return err
}

// validateSources checks every source once at startup. A failing check is
// only a warning: the poller records the source's errors each cycle.
func validateSources(ctx context.Context, sources []source.Source, logger *slog.Logger) {
	for _, s := range sources {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ok := s.ValidateConnection(checkCtx)
		cancel()
		if !ok {
			logger.Warn("source connection check failed", "source", s.Describe().Name)
		}
	}
}
