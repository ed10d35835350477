package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/marketfeed/internal/config"
	"github.com/rickgao/marketfeed/internal/feed"
	"github.com/rickgao/marketfeed/internal/logging"
	"github.com/rickgao/marketfeed/internal/market"
	"github.com/rickgao/marketfeed/internal/source"
	"github.com/rickgao/marketfeed/internal/watermark"
)

// sourcecheck runs one first-run fetch against every configured source
// without touching the database.
func main() {
	configPath := flag.String("config", "configs/ingestor.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	only := flag.String("source", "", "check only the named source")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("set up logging: %v", err)
	}
	defer closer.Close()

	registry := market.NewRegistry(market.Config{Symbols: cfg.Symbols}, nil, logger)
	sources, err := feed.Build(cfg, registry, logger)
	if err != nil {
		log.Fatalf("build sources: %v", err)
	}
	overrides, err := cfg.RuleOverrides()
	if err != nil {
		log.Fatal(err)
	}
	rules, err := watermark.DefaultRules().WithOverrides(overrides)
	if err != nil {
		log.Fatal(err)
	}
	// An empty cursor store yields first-run plans.
	engine := watermark.NewEngine(watermark.NewMemoryStore(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	symbols, _ := registry.ActiveSymbols(ctx)
	c := checker{rules: rules, engine: engine, symbols: symbols, logger: logger}

	failed := 0
	for _, s := range sources.All() {
		d := s.Describe()
		if *only != "" && d.Name != *only {
			continue
		}
		fmt.Printf("=== %s (%s/%s) ===\n", d.Name, d.Provider, d.Stream)
		if !s.ValidateConnection(ctx) {
			fmt.Println("  connection: FAILED")
			failed++
			continue
		}
		fmt.Println("  connection: ok")

		if err := c.fetch(ctx, s); err != nil {
			fmt.Printf("  fetch: FAILED: %v\n", err)
			failed++
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d source(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nAll sources ok")
}

type checker struct {
	rules   watermark.RuleTable
	engine  *watermark.Engine
	symbols []string
	logger  *slog.Logger
}

func (c checker) fetch(ctx context.Context, s source.Source) error {
	d := s.Describe()
	desc, err := c.rules.Describe(d.Name, d.Provider, d.Stream)
	if err != nil {
		return err
	}
	plan, err := c.engine.BuildPlan(ctx, desc, c.symbols, time.Now())
	if err != nil {
		return err
	}

	start := time.Now()
	switch src := s.(type) {
	case source.NewsSource:
		batch, err := src.FetchIncremental(ctx, plan)
		if err != nil {
			return err
		}
		fmt.Printf("  fetched %d articles in %s\n", len(batch.Articles), time.Since(start).Round(time.Millisecond))
		if batch.MaxID != nil {
			fmt.Printf("  max id: %d\n", *batch.MaxID)
		}
		for i, a := range batch.Articles {
			if i == 3 {
				break
			}
			fmt.Printf("  %d. %s (%s)\n", i+1, a.Headline, a.PublishedAt.Format(time.RFC3339))
		}
	case source.PriceSource:
		prices, err := src.FetchIncremental(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("  fetched %d prices in %s\n", len(prices), time.Since(start).Round(time.Millisecond))
		for _, p := range prices {
			fmt.Printf("  %s %s\n", p.Symbol, p.Price.String())
		}
	case source.SocialSource:
		posts, err := src.FetchIncremental(ctx, plan)
		if err != nil {
			return err
		}
		fmt.Printf("  fetched %d posts in %s\n", len(posts), time.Since(start).Round(time.Millisecond))
	default:
		c.logger.Warn("unknown source type", "source", d.Name)
	}
	return nil
}
