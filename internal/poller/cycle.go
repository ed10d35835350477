package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
	"github.com/rickgao/marketfeed/internal/watermark"
)

// job is one source's slot in a cycle. Each fetch goroutine writes only its own job.
type job struct {
	desc watermark.Descriptor
	plan model.CursorPlan

	newsSrc   source.NewsSource
	priceSrc  source.PriceSource
	socialSrc source.SocialSource

	news   source.NewsBatch
	prices []model.PriceObservation
	social []model.SocialDiscussion
	err    error
}

func (j *job) name() string { return j.desc.Source }

func (j *job) descriptor() source.Descriptor {
	return source.Descriptor{Name: j.desc.Source, Provider: j.desc.Provider, Stream: j.desc.Stream}
}

// RunCycle runs one full poll cycle. Source failures are collected in the
// result; they never abort the cycle.
func (p *Poller) RunCycle(ctx context.Context) CycleResult {
	started := p.now().UTC()
	res := newCycleResult(uuid.NewString(), started)
	log := p.logger.With("cycle", res.ID)
	t0 := time.Now()

	symbols, err := p.deps.Universe.ActiveSymbols(ctx)
	if err != nil {
		log.Warn("symbol universe unavailable", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("symbol universe unavailable: %v", err))
	}

	// PLAN
	var jobs []*job
	add := func(src source.Source, j *job) {
		j.desc = p.descs[src.Describe().Name]
		plan, err := p.deps.Engine.BuildPlan(ctx, j.desc, symbols, started)
		if err != nil {
			p.fail(log, &res, j.name(), StagePlan, err)
			return
		}
		j.plan = plan
		jobs = append(jobs, j)
	}
	for _, s := range p.deps.Sources.News {
		add(s, &job{newsSrc: s})
	}
	for _, s := range p.deps.Sources.Prices {
		add(s, &job{priceSrc: s})
	}
	for _, s := range p.deps.Sources.Social {
		add(s, &job{socialSrc: s})
	}

	// FETCH
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			p.fetch(ctx, log, j)
			return nil
		})
	}
	g.Wait()

	// ROUTE/RECONCILE, STORE, COMMIT
	var prices []priceFetch
	for _, j := range jobs {
		if j.err != nil {
			p.fail(log, &res, j.name(), StageFetch, j.err)
			continue
		}
		switch {
		case j.newsSrc != nil:
			p.storeNews(ctx, log, &res, j)
		case j.socialSrc != nil:
			p.storeSocial(ctx, log, &res, j)
		case j.priceSrc != nil:
			prices = append(prices, priceFetch{source: j.name(), obs: j.prices})
		}
	}
	if len(prices) > 0 {
		p.storePrices(ctx, log, &res, prices)
	}

	res.Duration = time.Since(t0)
	p.deps.Metrics.ObserveCycle(res.Duration)

	log.Info("poll cycle complete",
		"sources", len(p.descs),
		"macro_news", res.Counts[model.KindMacroNews],
		"company_news", res.Counts[model.KindCompanyNews],
		"price", res.Counts[model.KindPrice],
		"social", res.Counts[model.KindSocial],
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"mismatches", len(res.Mismatches),
		"watermarks", res.Committed,
		"duration", res.Duration,
	)

	p.mu.Lock()
	last := res
	p.last = &last
	p.mu.Unlock()

	return res
}

// fetch runs one source under its own timeout, recovering panics into j.err.
func (p *Poller) fetch(ctx context.Context, log *slog.Logger, j *job) {
	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("panic: %v", r)
			log.Error("source panicked", "source", j.name(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	switch {
	case j.newsSrc != nil:
		j.news, j.err = j.newsSrc.FetchIncremental(ctx, j.plan)
	case j.priceSrc != nil:
		j.prices, j.err = j.priceSrc.FetchIncremental(ctx)
	case j.socialSrc != nil:
		j.social, j.err = j.socialSrc.FetchIncremental(ctx, j.plan)
	}
}

// storeNews stores a source's routed articles and commits its cursors. The id
// cursor follows the source-reported max id, so a page whose items were all
// dropped by routing still advances.
func (p *Poller) storeNews(ctx context.Context, log *slog.Logger, res *CycleResult, j *job) {
	route := p.deps.Router.News(j.descriptor(), j.news.Articles)
	p.deps.Metrics.AddSkipped(j.name(), len(route.Skipped))

	articles := route.Articles()
	if len(articles) > 0 {
		wr, err := p.deps.Storage.StoreNews(ctx, j.desc.Provider, articles)
		if err != nil {
			p.fail(log, res, j.name(), StageStore, err)
			return
		}
		res.Counts[model.KindMacroNews] += len(route.Macro)
		res.Counts[model.KindCompanyNews] += len(route.Company)
		p.deps.Metrics.AddIngested(string(model.KindMacroNews), len(route.Macro))
		p.deps.Metrics.AddIngested(string(model.KindCompanyNews), len(route.Company))
		log.Debug("stored news", "source", j.name(), "inserts", wr.Inserts, "conflicts", wr.Conflicts)
	}

	marks := make([]watermark.Mark, 0, len(articles))
	for _, a := range articles {
		marks = append(marks, p.marksFor(j, a.PublishedAt, linkSymbols(a.Symbols)...)...)
	}
	p.commit(ctx, log, res, j, marks, j.news.MaxID)
}

func (p *Poller) storeSocial(ctx context.Context, log *slog.Logger, res *CycleResult, j *job) {
	route := p.deps.Router.Social(j.descriptor(), j.social)
	p.deps.Metrics.AddSkipped(j.name(), len(route.Skipped))
	if len(route.Posts) == 0 {
		return
	}
	wr, err := p.deps.Storage.StoreSocial(ctx, route.Posts)
	if err != nil {
		p.fail(log, res, j.name(), StageStore, err)
		return
	}
	res.Counts[model.KindSocial] += len(route.Posts)
	p.deps.Metrics.AddIngested(string(model.KindSocial), len(route.Posts))
	log.Debug("stored social", "source", j.name(), "inserts", wr.Inserts, "updates", wr.Updates)

	marks := make([]watermark.Mark, 0, len(route.Posts))
	for _, d := range route.Posts {
		marks = append(marks, p.marksFor(j, d.PublishedAt, d.Symbol)...)
	}
	p.commit(ctx, log, res, j, marks, nil)
}

func (p *Poller) storePrices(ctx context.Context, log *slog.Logger, res *CycleResult, fetches []priceFetch) {
	rec := reconcilePrices(fetches, p.resolver, p.cfg.Threshold)

	for _, m := range rec.mismatches {
		log.Error("price mismatch",
			"symbol", m.Symbol,
			"primary", m.Primary,
			"primary_price", m.PrimaryPrice.String(),
			"secondary", m.Secondary,
			"secondary_price", m.SecondaryPrice.String(),
			"diff", m.Diff.String(),
			"threshold", p.cfg.Threshold.String(),
		)
		p.deps.Metrics.IncMismatch(m.Symbol)
	}
	res.Mismatches = append(res.Mismatches, rec.mismatches...)
	for _, w := range rec.warnings {
		log.Warn(w)
	}
	res.Warnings = append(res.Warnings, rec.warnings...)

	for _, name := range sortedKeys(rec.stored) {
		obs := rec.stored[name]
		for i := range obs {
			if obs[i].Session == "" {
				obs[i].Session = p.deps.Classifier.Classify(obs[i].Timestamp)
			}
		}
		wr, err := p.deps.Storage.StorePrices(ctx, obs)
		if err != nil {
			p.fail(log, res, name, StageStore, err)
			continue
		}
		res.Counts[model.KindPrice] += len(obs)
		p.deps.Metrics.AddIngested(string(model.KindPrice), len(obs))
		log.Debug("stored prices", "source", name, "inserts", wr.Inserts, "conflicts", wr.Conflicts)
	}
}

// marksFor returns the watermark marks one stored item contributes. Per-symbol
// sources only mark symbols that were part of this cycle's plan.
func (p *Poller) marksFor(j *job, at time.Time, symbols ...string) []watermark.Mark {
	if j.desc.Rule.Scope != model.ScopeSymbol {
		return []watermark.Mark{{At: at}}
	}
	var out []watermark.Mark
	for _, s := range symbols {
		if _, ok := j.plan.SymbolSince[s]; ok {
			out = append(out, watermark.Mark{Symbol: s, At: at})
		}
	}
	return out
}

func (p *Poller) commit(ctx context.Context, log *slog.Logger, res *CycleResult, j *job, marks []watermark.Mark, maxID *int64) {
	written, err := p.deps.Engine.Commit(ctx, j.desc, marks, maxID, p.now())
	res.Committed += len(written)
	p.deps.Metrics.AddWatermarkCommits(j.name(), len(written))
	if err != nil {
		p.fail(log, res, j.name(), StageCommit, err)
		return
	}
	if len(written) > 0 {
		log.Debug("watermarks committed", "source", j.name(), "count", len(written))
	}
}

func (p *Poller) fail(log *slog.Logger, res *CycleResult, name string, stage Stage, err error) {
	res.Errors = append(res.Errors, SourceError{Source: name, Stage: stage, Err: err})
	p.deps.Metrics.IncSourceError(name)
	log.Warn("source failed", "source", name, "stage", stage, "error", err)
}

func linkSymbols(links []model.SymbolLink) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.Symbol)
	}
	return out
}
