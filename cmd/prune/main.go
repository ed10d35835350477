package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/rickgao/marketfeed/internal/config"
	"github.com/rickgao/marketfeed/internal/database"
	"github.com/rickgao/marketfeed/internal/logging"
	"github.com/rickgao/marketfeed/internal/metrics"
	"github.com/rickgao/marketfeed/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/ingestor.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	dryRun := flag.Bool("dry-run", false, "report the batch without deleting it")
	cutoffFlag := flag.String("cutoff", "", "RFC3339 cutoff (default: now minus batch.lag)")
	outPath := flag.String("out", "", "write the batch as JSON before pruning")
	pushURL := flag.String("pushgateway", "", "Prometheus Pushgateway URL for prune metrics")
	flag.Parse()

	if err := run(*configPath, *envFile, *cutoffFlag, *outPath, *pushURL, *dryRun); err != nil {
		slog.Error("prune failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, cutoffFlag, outPath, pushURL string, dryRun bool) error {
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

	cutoff := time.Now().UTC().Add(-cfg.Batch.Lag)
	if cutoffFlag != "" {
		if cutoff, err = time.Parse(time.RFC3339, cutoffFlag); err != nil {
			return fmt.Errorf("parse cutoff: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool, logger)

	last, err := st.LastProcessed(ctx)
	if err != nil {
		return err
	}
	if !last.IsZero() && !cutoff.After(last) {
		logger.Info("nothing to prune", "cutoff", store.FormatTime(cutoff), "last_processed", store.FormatTime(last))
		return nil
	}

	batch, err := st.GetBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Batch at %s\n", store.FormatTime(batch.Cutoff))
	fmt.Printf("  news:   %d\n", len(batch.News))
	fmt.Printf("  prices: %d\n", len(batch.Prices))
	fmt.Printf("  social: %d\n", len(batch.Social))

	if outPath != "" {
		if err := writeBatch(outPath, batch); err != nil {
			return err
		}
		logger.Info("batch written", "path", outPath, "entities", batch.Len())
	}

	if dryRun {
		fmt.Println("Dry run, nothing deleted")
		return nil
	}

	res, err := st.CommitBatch(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d rows\n", res.Total())

	if pushURL != "" {
		if err := pushMetrics(pushURL, cfg.Instance.ID, res); err != nil {
			logger.Warn("metrics push failed", "url", pushURL, "error", err)
		}
	}
	return nil
}

func pushMetrics(url, instance string, res store.PruneResult) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.AddPruned("news_items", res.News)
	m.AddPruned("price_data", res.Prices)
	m.AddPruned("social_discussions", res.Social)

	return push.New(url, "marketfeed_prune").
		Grouping("instance", instance).
		Gatherer(reg).
		Push()
}

func writeBatch(path string, b store.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		f.Close()
		return fmt.Errorf("encode batch: %w", err)
	}
	return f.Close()
}
