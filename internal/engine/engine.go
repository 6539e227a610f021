// Package engine orchestrates the decision pipeline: it pulls indicator data,
// recomputes trends, signals and opportunities synchronously, and owns the
// per-opportunity decision state (validation, overrides, sizing, lifecycle).
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/config"
	"tradedesk/internal/analysis"
	"tradedesk/internal/cache"
	"tradedesk/internal/events"
	"tradedesk/internal/journal"
	"tradedesk/internal/lifecycle"
	"tradedesk/internal/logging"
	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
	"tradedesk/internal/override"
	"tradedesk/internal/signal"
	"tradedesk/internal/sizing"
	"tradedesk/internal/validation"
)

// IndicatorSource fetches per-timeframe indicator bundles
type IndicatorSource interface {
	GetIndicators(ctx context.Context, symbol, timeframe string, limit int) (*market.IndicatorBundle, error)
}

// RemoteValidator runs the check battery on a remote backend
type RemoteValidator interface {
	Enabled() bool
	Validate(ctx context.Context, opp *opportunity.TradeOpportunity, levels []market.FibLevel, pivots []float64) validation.Result
}

// Journal persists executed trades
type Journal interface {
	Create(ctx context.Context, entry journal.Entry) error
	RecordClose(ctx context.Context, id string, exitPrice, pnl float64, exitTime time.Time) error
	AppendNotes(ctx context.Context, id, text string) error
}

// Engine is the decision engine for one symbol. All derived state is
// recomputed pull-based from the latest inputs; refreshes are
// last-request-wins via a generation counter.
type Engine struct {
	cfg     config.EngineConfig
	log     zerolog.Logger
	source  IndicatorSource
	remote  RemoteValidator
	cache   *cache.CacheService
	journal Journal
	bus     *events.EventBus

	analyzer   *analysis.TrendAnalyzer
	generator  *signal.Generator
	aggregator *opportunity.Aggregator
	validator  *validation.Engine
	overrides  *override.Manager
	sizing     *sizing.Manager

	retryConfig journal.RetryConfig

	generation uint64

	mu            sync.RWMutex
	cancelRefresh context.CancelFunc
	bundles       map[string]*market.IndicatorBundle
	trends        []analysis.TimeframeTrend
	alignment     analysis.OverallAlignment
	suggestions   []signal.Suggestion
	opportunities opportunity.Result
	activeID      string
	activeOpp     *opportunity.TradeOpportunity
	activeResult  *validation.Result
	trade         *lifecycle.Trade
	journalID     string
	lastPrice     float64
	updatedAt     time.Time
}

// Options carries the engine's optional dependencies. Cache and Journal may
// be nil; Remote may be nil for local-only validation.
type Options struct {
	Source  IndicatorSource
	Remote  RemoteValidator
	Cache   *cache.CacheService
	Journal Journal
	Bus     *events.EventBus
}

// New creates a decision engine.
func New(cfg config.EngineConfig, account config.AccountConfig, opts Options) *Engine {
	bus := opts.Bus
	if bus == nil {
		bus = events.NewEventBus()
	}
	return &Engine{
		cfg:         cfg,
		log:         logging.New("engine"),
		source:      opts.Source,
		remote:      opts.Remote,
		cache:       opts.Cache,
		journal:     opts.Journal,
		bus:         bus,
		analyzer:    analysis.NewTrendAnalyzer(),
		generator:   signal.NewGenerator(),
		aggregator:  opportunity.NewAggregator(),
		validator:   validation.NewEngine(),
		overrides:   override.NewManager(),
		sizing:      sizing.NewManager(account.Balance, account.RiskPercentage),
		retryConfig: journal.DefaultRetryConfig(),
		bundles:     make(map[string]*market.IndicatorBundle),
	}
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *events.EventBus {
	return e.bus
}

// Run refreshes immediately and then on the configured interval until the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.RefreshSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	e.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Refresh(ctx)
		}
	}
}

// Refresh runs one full pipeline pass. A newer refresh supersedes this one:
// its context is cancelled and its results are discarded instead of installed.
func (e *Engine) Refresh(ctx context.Context) {
	gen := atomic.AddUint64(&e.generation, 1)

	refreshCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.cancelRefresh != nil {
		e.cancelRefresh()
	}
	e.cancelRefresh = cancel
	e.mu.Unlock()

	timeframes := e.cfg.Timeframes
	bundles := make(map[string]*market.IndicatorBundle, len(timeframes))
	trends := make([]analysis.TimeframeTrend, 0, len(timeframes))

	// Per-timeframe isolation: one failed fetch degrades that timeframe only
	for _, timeframe := range timeframes {
		bundle, err := e.fetchBundle(refreshCtx, timeframe)
		if err != nil {
			if refreshCtx.Err() != nil {
				return
			}
			e.log.Warn().Err(err).Str("timeframe", timeframe).Msg("Indicator fetch failed")
			trends = append(trends, degradedTrend(timeframe, err))
			continue
		}
		bundles[timeframe] = bundle
		trends = append(trends, e.analyzer.Analyze(bundle))
	}

	if e.stale(gen, refreshCtx) {
		return
	}

	alignment := analysis.ComputeAlignment(trends)
	suggestions := e.generator.Generate(trends)
	opportunities := e.aggregator.Aggregate(e.cfg.Symbol, suggestions, trends)

	// Revalidate the selected opportunity against the fresh data
	e.mu.RLock()
	activeID := e.activeID
	e.mu.RUnlock()

	var activeOpp *opportunity.TradeOpportunity
	var activeResult *validation.Result
	if activeID != "" {
		for i := range opportunities.Opportunities {
			if opportunities.Opportunities[i].ID == activeID {
				opp := opportunities.Opportunities[i]
				activeOpp = &opp
				break
			}
		}
		if activeOpp != nil {
			result := e.validate(refreshCtx, activeOpp, bundles)
			activeResult = &result
		}
	}

	if e.stale(gen, refreshCtx) {
		return
	}

	e.mu.Lock()
	// Re-check under the write lock: a newer refresh or a selection made
	// while this pass was in flight wins over it.
	if atomic.LoadUint64(&e.generation) != gen {
		e.mu.Unlock()
		return
	}
	e.bundles = bundles
	e.trends = trends
	e.alignment = alignment
	e.suggestions = suggestions
	e.opportunities = opportunities
	e.updatedAt = time.Now()
	if activeOpp != nil && e.activeID == activeID {
		e.activeOpp = activeOpp
		e.activeResult = activeResult
		e.sizing.SetLive(activeResult.SuggestedEntry, activeResult.SuggestedStop, activeResult.SuggestedTargets)
	}
	e.mu.Unlock()

	e.bus.Publish(events.Event{
		Type: events.EventTrendUpdate,
		Data: map[string]interface{}{
			"symbol":    e.cfg.Symbol,
			"trends":    trends,
			"alignment": alignment,
		},
	})
	e.bus.Publish(events.Event{
		Type: events.EventSignalUpdate,
		Data: map[string]interface{}{
			"symbol":      e.cfg.Symbol,
			"suggestions": suggestions,
		},
	})
	e.bus.PublishRefreshComplete(e.cfg.Symbol, gen, len(opportunities.Opportunities))
}

// stale reports whether this refresh has been superseded by a newer one.
func (e *Engine) stale(gen uint64, ctx context.Context) bool {
	return atomic.LoadUint64(&e.generation) != gen || ctx.Err() != nil
}

// fetchBundle reads one timeframe's bundle through the snapshot cache when
// available, falling back to the provider. Indicator reads are not retried.
func (e *Engine) fetchBundle(ctx context.Context, timeframe string) (*market.IndicatorBundle, error) {
	if e.cache != nil && e.cache.IsHealthy() {
		var cached market.IndicatorBundle
		if err := e.cache.GetJSON(ctx, cache.IndicatorsKey(e.cfg.Symbol, timeframe), &cached); err == nil {
			return &cached, nil
		}
	}

	bundle, err := e.source.GetIndicators(ctx, e.cfg.Symbol, timeframe, e.cfg.BarLimit)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, cache.IndicatorsKey(e.cfg.Symbol, timeframe), bundle, cache.DefaultIndicatorTTL); err != nil && !cache.IsMiss(err) {
			e.log.Debug().Err(err).Str("timeframe", timeframe).Msg("Bundle cache write skipped")
		}
	}
	return bundle, nil
}

// validate runs the check battery for one opportunity: remotely when a remote
// validator is configured, locally otherwise.
func (e *Engine) validate(ctx context.Context, opp *opportunity.TradeOpportunity, bundles map[string]*market.IndicatorBundle) validation.Result {
	var levels []market.FibLevel
	var pivots []float64
	for _, bundle := range bundles {
		levels = append(levels, bundle.Levels...)
		pivots = append(pivots, bundle.Pivots...)
	}

	if e.remote != nil && e.remote.Enabled() {
		return e.remote.Validate(ctx, opp, levels, pivots)
	}
	return e.validator.Validate(opp, levels, pivots)
}

func degradedTrend(timeframe string, err error) analysis.TimeframeTrend {
	neutral := market.IndicatorSignal{Signal: market.BiasNeutral}
	return analysis.TimeframeTrend{
		Timeframe: timeframe,
		Trend:     analysis.TrendRanging,
		Swing:     neutral,
		RSI:       neutral,
		MACD:      neutral,
		Error:     err.Error(),
	}
}

// Snapshot is a read-only view of the engine's full decision state
type Snapshot struct {
	Symbol        string                        `json:"symbol"`
	UpdatedAt     time.Time                     `json:"updated_at"`
	Trends        []analysis.TimeframeTrend     `json:"trends"`
	Alignment     analysis.OverallAlignment     `json:"alignment"`
	Suggestions   []signal.Suggestion           `json:"suggestions"`
	Opportunities opportunity.Result            `json:"opportunities"`
	ActiveID      string                        `json:"active_id,omitempty"`
	Active        *opportunity.TradeOpportunity `json:"active,omitempty"`
	Validation    *validation.Result            `json:"validation,omitempty"`
	Overrides     *override.Summary             `json:"overrides,omitempty"`
	Sizing        *sizing.Data                  `json:"sizing,omitempty"`
	Trade         *lifecycle.Snapshot           `json:"trade,omitempty"`
	LastPrice     float64                       `json:"last_price,omitempty"`
}

// Snapshot returns the current decision state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Symbol:        e.cfg.Symbol,
		UpdatedAt:     e.updatedAt,
		Trends:        append([]analysis.TimeframeTrend(nil), e.trends...),
		Alignment:     e.alignment,
		Suggestions:   append([]signal.Suggestion(nil), e.suggestions...),
		Opportunities: e.opportunities,
		ActiveID:      e.activeID,
		LastPrice:     e.lastPrice,
	}

	if e.activeOpp != nil {
		opp := *e.activeOpp
		snap.Active = &opp
	}
	if e.activeResult != nil {
		result := *e.activeResult
		snap.Validation = &result

		summary := e.overrides.Apply(result)
		snap.Overrides = &summary

		data := e.sizing.Data()
		snap.Sizing = &data
	}
	if e.trade != nil {
		tradeSnap := e.trade.Snapshot()
		snap.Trade = &tradeSnap
	}

	return snap
}
