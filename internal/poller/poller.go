package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/metrics"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/router"
	"github.com/rickgao/marketfeed/internal/source"
	"github.com/rickgao/marketfeed/internal/store"
	"github.com/rickgao/marketfeed/internal/watermark"
)

// Storage persists routed results. Each call is one transaction.
type Storage interface {
	StoreNews(ctx context.Context, provider model.Provider, articles []model.NewsArticle) (store.WriteResult, error)
	StorePrices(ctx context.Context, prices []model.PriceObservation) (store.WriteResult, error)
	StoreSocial(ctx context.Context, items []model.SocialDiscussion) (store.WriteResult, error)
}

// Universe supplies the symbols polled each cycle.
type Universe interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
}

// Classifier labels unlabelled price observations with a market session.
type Classifier interface {
	Classify(ts time.Time) model.Session
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Time between cycle starts (default: 5m)
	Concurrency  int           // Max concurrent source fetches (default: 8)
	FetchTimeout time.Duration // Per-source fetch timeout (default: 60s)

	// Threshold is the absolute price difference reported as a mismatch (default: 0.01).
	Threshold decimal.Decimal
	// DefaultPrimary is the primary price source for symbols without an
	// entry in Primary. Empty means the first configured price source.
	DefaultPrimary string
	Primary        map[string]string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		Concurrency:  8,
		FetchTimeout: 60 * time.Second,
		Threshold:    decimal.New(1, -2),
	}
}

// Deps are the collaborators the poller drives.
type Deps struct {
	Sources    source.Set
	Rules      watermark.RuleTable
	Engine     *watermark.Engine
	Storage    Storage
	Universe   Universe
	Classifier Classifier
	Router     *router.Router   // optional
	Metrics    *metrics.Metrics // optional
}

// Poller runs poll cycles over a fixed set of sources.
type Poller struct {
	cfg      Config
	deps     Deps
	descs    map[string]watermark.Descriptor
	resolver primaryResolver
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last *CycleResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller. Every source must have a cursor rule and a unique
// name, and configured primaries must be price sources.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Engine == nil || deps.Storage == nil || deps.Universe == nil || deps.Classifier == nil {
		return nil, errors.New("poller: engine, storage, universe and classifier are required")
	}
	if deps.Rules == nil {
		deps.Rules = watermark.DefaultRules()
	}
	if deps.Router == nil {
		deps.Router = router.New(logger)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Threshold.IsNegative() {
		return nil, fmt.Errorf("poller: negative price threshold %s", cfg.Threshold)
	}

	descs := make(map[string]watermark.Descriptor, deps.Sources.Len())
	for _, src := range deps.Sources.All() {
		d := src.Describe()
		if _, dup := descs[d.Name]; dup {
			return nil, fmt.Errorf("poller: duplicate source name %q", d.Name)
		}
		wd, err := deps.Rules.Describe(d.Name, d.Provider, d.Stream)
		if err != nil {
			return nil, fmt.Errorf("poller: %w", err)
		}
		descs[d.Name] = wd
	}

	prices := make(map[string]bool, len(deps.Sources.Prices))
	for _, ps := range deps.Sources.Prices {
		prices[ps.Describe().Name] = true
	}
	resolver := primaryResolver{perSymbol: make(map[string]string, len(cfg.Primary)), fallback: cfg.DefaultPrimary}
	if resolver.fallback == "" && len(deps.Sources.Prices) > 0 {
		resolver.fallback = deps.Sources.Prices[0].Describe().Name
	}
	if resolver.fallback != "" && !prices[resolver.fallback] {
		return nil, fmt.Errorf("poller: default primary %q is not a price source", resolver.fallback)
	}
	for sym, name := range cfg.Primary {
		if !prices[name] {
			return nil, fmt.Errorf("poller: primary %q for %s is not a price source", name, sym)
		}
		resolver.perSymbol[model.NormalizeSymbol(sym)] = name
	}

	return &Poller{
		cfg:      cfg,
		deps:     deps,
		descs:    descs,
		resolver: resolver,
		logger:   logger.With("component", "poller"),
		now:      time.Now,
	}, nil
}

// Descriptors returns the resolved descriptor of every source, keyed by name.
func (p *Poller) Descriptors() map[string]watermark.Descriptor {
	out := make(map[string]watermark.Descriptor, len(p.descs))
	for k, v := range p.descs {
		out[k] = v
	}
	return out
}

// LastCycle returns the result of the most recent cycle.
func (p *Poller) LastCycle() (CycleResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return CycleResult{}, false
	}
	return *p.last, true
}

// Run polls until ctx is cancelled. Each cycle starts Interval after the
// previous one started, or immediately when the previous cycle overran.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"sources", len(p.descs),
	)

	for {
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return
		}

		start := time.Now()
		p.RunCycle(ctx)

		wait := p.cfg.Interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(p.ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for the running cycle to finish.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
