package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradedesk/config"
	"tradedesk/internal/events"
	"tradedesk/internal/journal"
	"tradedesk/internal/lifecycle"
	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
	"tradedesk/internal/signal"
	"tradedesk/internal/validation"
)

type fakeSource struct {
	bundles map[string]*market.IndicatorBundle
	errs    map[string]error
	calls   int
}

func (f *fakeSource) GetIndicators(_ context.Context, _, timeframe string, _ int) (*market.IndicatorBundle, error) {
	f.calls++
	if err, ok := f.errs[timeframe]; ok {
		return nil, err
	}
	return f.bundles[timeframe], nil
}

type fakeJournal struct {
	created []journal.Entry
	closed  []string
	failAll bool
}

func (f *fakeJournal) Create(_ context.Context, entry journal.Entry) error {
	if f.failAll {
		return errors.New("duplicate key value")
	}
	f.created = append(f.created, entry)
	return nil
}

func (f *fakeJournal) RecordClose(_ context.Context, id string, _, _ float64, _ time.Time) error {
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeJournal) AppendNotes(context.Context, string, string) error { return nil }

func fptr(v float64) *float64 { return &v }

// makeBundle builds a bundle whose indicators all agree on the given bias
func makeBundle(tf string, bias market.SignalBias, levels []market.FibLevel) *market.IndicatorBundle {
	bars := make([]market.Kline, 30)
	for i := range bars {
		bars[i] = market.Kline{Close: 100}
	}

	var swings []market.SwingMark
	var rsi, macd float64
	if bias == market.BiasBullish {
		swings = []market.SwingMark{
			{Label: market.SwingHigherHigh}, {Label: market.SwingHigherLow}, {Label: market.SwingHigherHigh},
		}
		rsi, macd = 62, 1.5
	} else {
		swings = []market.SwingMark{
			{Label: market.SwingLowerHigh}, {Label: market.SwingLowerLow}, {Label: market.SwingLowerLow},
		}
		rsi, macd = 38, -1.5
	}

	return &market.IndicatorBundle{
		Symbol:    "BTCUSDT",
		Timeframe: tf,
		Bars:      bars,
		Swings:    swings,
		RSI:       market.FloatSeries{fptr(rsi)},
		MACDHist:  market.FloatSeries{fptr(macd)},
		Levels:    levels,
	}
}

// pullbackSource builds a bullish 4h over a bearish 1h with executable levels
func pullbackSource() *fakeSource {
	return &fakeSource{
		bundles: map[string]*market.IndicatorBundle{
			"4h": makeBundle("4h", market.BiasBullish, []market.FibLevel{
				{Price: 110, Timeframe: "4h", Type: market.LevelExtension, Direction: market.Long, Strategy: "fib"},
			}),
			"1h": makeBundle("1h", market.BiasBearish, []market.FibLevel{
				{Price: 100, Timeframe: "1h", Type: market.LevelRetracement, Direction: market.Long, Strategy: "fib"},
				{Price: 95, Timeframe: "1h", Type: market.LevelRetracement, Direction: market.Long, Strategy: "fib"},
			}),
		},
	}
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Symbol:     "BTCUSDT",
		Timeframes: []string{"4h", "1h"},
		BarLimit:   200,
	}
}

func newTestEngine(source IndicatorSource, jrnl Journal) *Engine {
	return New(testConfig(), config.AccountConfig{Balance: 10000, RiskPercentage: 2}, Options{
		Source:  source,
		Journal: jrnl,
	})
}

// TestRefreshPipeline verifies one pass produces trends, signals and a ranked
// opportunity.
func TestRefreshPipeline(t *testing.T) {
	e := newTestEngine(pullbackSource(), nil)

	e.Refresh(context.Background())
	snap := e.Snapshot()

	if len(snap.Trends) != 2 {
		t.Fatalf("Expected 2 trends, got %d", len(snap.Trends))
	}
	if len(snap.Suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(snap.Suggestions))
	}
	if snap.Suggestions[0].Type != signal.SignalLong || !snap.Suggestions[0].IsActive {
		t.Errorf("Bullish 4h over bearish 1h should be an active LONG, got %+v", snap.Suggestions[0])
	}
	if len(snap.Opportunities.Opportunities) != 1 {
		t.Fatalf("Expected 1 opportunity, got %d", len(snap.Opportunities.Opportunities))
	}
	if snap.Opportunities.Opportunities[0].ID != "4h-1h" {
		t.Errorf("Unexpected opportunity id %s", snap.Opportunities.Opportunities[0].ID)
	}
}

// TestPerTimeframeIsolation verifies one failed fetch degrades only its own
// timeframe.
func TestPerTimeframeIsolation(t *testing.T) {
	source := pullbackSource()
	source.errs = map[string]error{"1h": errors.New("provider down")}

	e := newTestEngine(source, nil)
	e.Refresh(context.Background())
	snap := e.Snapshot()

	if len(snap.Trends) != 2 {
		t.Fatalf("Expected both timeframes present, got %d", len(snap.Trends))
	}
	var degraded, healthy int
	for _, trend := range snap.Trends {
		if trend.Error != "" {
			degraded++
		} else {
			healthy++
		}
	}
	if degraded != 1 || healthy != 1 {
		t.Errorf("Expected 1 degraded and 1 healthy trend, got %d/%d", degraded, healthy)
	}
	if !snap.Opportunities.HasError {
		t.Error("Aggregation should surface the timeframe error")
	}
}

// TestSelectCapturesAndResets verifies selection freezes suggestions and a
// reselect clears decision state.
func TestSelectCapturesAndResets(t *testing.T) {
	e := newTestEngine(pullbackSource(), nil)
	e.Refresh(context.Background())

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}

	data := e.SizingData()
	if data.Inputs.Entry != 100 || data.Inputs.Stop != 95 {
		t.Fatalf("Expected captured entry 100 / stop 95, got %f / %f", data.Inputs.Entry, data.Inputs.Stop)
	}
	if data.PositionSize != 40 {
		t.Errorf("2%% of 10000 over a 5-point stop should size 40, got %f", data.PositionSize)
	}

	// User override, then reselect: override must not carry over
	if err := e.SetTradeOverrides(fptr(101), nil, nil); err != nil {
		t.Fatalf("SetTradeOverrides failed: %v", err)
	}
	if e.SizingData().Inputs.Entry != 101 {
		t.Fatal("Override should take effect")
	}

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("Reselect failed: %v", err)
	}
	if e.SizingData().Inputs.Entry != 100 {
		t.Error("Reselect must drop the previous override")
	}
}

// TestSelectUnknownID verifies unknown ids are rejected
func TestSelectUnknownID(t *testing.T) {
	e := newTestEngine(pullbackSource(), nil)
	e.Refresh(context.Background())

	if err := e.SelectOpportunity(context.Background(), "1d-4h"); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Expected ErrUnknownID, got %v", err)
	}
}

// TestExecuteAndTick verifies the execute path and stop-driven auto close
func TestExecuteAndTick(t *testing.T) {
	jrnl := &fakeJournal{}
	e := newTestEngine(pullbackSource(), jrnl)
	e.Refresh(context.Background())

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}

	snap, err := e.ExecuteTrade(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}
	if snap.Status != lifecycle.StatusActive {
		t.Fatalf("Expected active trade, got %s", snap.Status)
	}
	if len(jrnl.created) != 1 || jrnl.created[0].EntryPrice != 100 {
		t.Fatalf("Expected one journal entry at 100, got %+v", jrnl.created)
	}

	e.OnPriceTick(105)
	trade := e.TradeSnapshot()
	if trade == nil || trade.CurrentPnL != 200 {
		t.Fatalf("Expected PnL 200 at 105 with size 40, got %+v", trade)
	}

	// A second execution while the trade is open is rejected
	if _, err := e.ExecuteTrade(context.Background()); !errors.Is(err, ErrTradeInProgress) {
		t.Errorf("Expected ErrTradeInProgress, got %v", err)
	}

	e.OnPriceTick(95)
	trade = e.TradeSnapshot()
	if trade.Status != lifecycle.StatusClosed {
		t.Errorf("Stop price should close the trade, got %s", trade.Status)
	}
}

// TestExecuteRequiresSelection verifies execution without a decision fails
func TestExecuteRequiresSelection(t *testing.T) {
	e := newTestEngine(pullbackSource(), nil)
	e.Refresh(context.Background())

	if _, err := e.ExecuteTrade(context.Background()); !errors.Is(err, ErrNoOpportunity) {
		t.Errorf("Expected ErrNoOpportunity, got %v", err)
	}
}

// TestJournalFailureAborts verifies a failed journal write leaves no trade
func TestJournalFailureAborts(t *testing.T) {
	jrnl := &fakeJournal{failAll: true}
	e := newTestEngine(pullbackSource(), jrnl)
	e.Refresh(context.Background())

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}

	if _, err := e.ExecuteTrade(context.Background()); err == nil {
		t.Fatal("Expected execution to fail on journal error")
	}
	if e.TradeSnapshot() != nil {
		t.Error("Failed execution must not leave a lifecycle record")
	}
}

// gatedValidator blocks validation of one opportunity id until released, so a
// test can hold a refresh open mid-pass.
type gatedValidator struct {
	gateID  string
	entered chan struct{}
	release chan struct{}
}

func (v *gatedValidator) Enabled() bool { return true }

func (v *gatedValidator) Validate(_ context.Context, opp *opportunity.TradeOpportunity, _ []market.FibLevel, _ []float64) validation.Result {
	if v.gateID != "" && opp.ID == v.gateID {
		v.entered <- struct{}{}
		<-v.release
	}
	return validation.Unavailable()
}

// TestRefreshDoesNotOverwriteNewerSelection verifies a refresh that was
// revalidating the previous selection while the operator switched
// opportunities does not reinstall the superseded one.
func TestRefreshDoesNotOverwriteNewerSelection(t *testing.T) {
	source := &fakeSource{
		bundles: map[string]*market.IndicatorBundle{
			"1d": makeBundle("1d", market.BiasBullish, nil),
			"4h": makeBundle("4h", market.BiasBearish, nil),
			"1h": makeBundle("1h", market.BiasBullish, nil),
		},
	}
	remote := &gatedValidator{entered: make(chan struct{}), release: make(chan struct{})}
	e := New(
		config.EngineConfig{Symbol: "BTCUSDT", Timeframes: []string{"1d", "4h", "1h"}, BarLimit: 200},
		config.AccountConfig{Balance: 10000, RiskPercentage: 2},
		Options{Source: source, Remote: remote},
	)

	e.Refresh(context.Background())
	if err := e.SelectOpportunity(context.Background(), "1d-4h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}

	// The next refresh blocks while revalidating the current selection
	remote.gateID = "1d-4h"
	done := make(chan struct{})
	go func() {
		e.Refresh(context.Background())
		close(done)
	}()
	<-remote.entered

	// The operator switches opportunities while that refresh is in flight
	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("Mid-flight SelectOpportunity failed: %v", err)
	}

	close(remote.release)
	<-done

	snap := e.Snapshot()
	if snap.ActiveID != "4h-1h" {
		t.Fatalf("Expected active id 4h-1h, got %s", snap.ActiveID)
	}
	if snap.Active == nil || snap.Active.ID != "4h-1h" {
		t.Errorf("In-flight refresh must not reinstall the superseded selection, got %+v", snap.Active)
	}
}

func waitEvent(t *testing.T, ch <-chan events.Event, want events.EventType) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", want)
	}
}

// TestEnginePublishesPipelineEvents verifies the refresh, selection and
// sizing paths each announce themselves on the bus.
func TestEnginePublishesPipelineEvents(t *testing.T) {
	bus := events.NewEventBus()
	e := New(testConfig(), config.AccountConfig{Balance: 10000, RiskPercentage: 2}, Options{
		Source: pullbackSource(),
		Bus:    bus,
	})

	trendCh := make(chan events.Event, 4)
	signalCh := make(chan events.Event, 4)
	validationCh := make(chan events.Event, 4)
	sizingCh := make(chan events.Event, 4)
	bus.Subscribe(events.EventTrendUpdate, func(ev events.Event) { trendCh <- ev })
	bus.Subscribe(events.EventSignalUpdate, func(ev events.Event) { signalCh <- ev })
	bus.Subscribe(events.EventValidationUpdate, func(ev events.Event) { validationCh <- ev })
	bus.Subscribe(events.EventSizingUpdate, func(ev events.Event) { sizingCh <- ev })

	e.Refresh(context.Background())
	waitEvent(t, trendCh, events.EventTrendUpdate)
	waitEvent(t, signalCh, events.EventSignalUpdate)

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}
	waitEvent(t, validationCh, events.EventValidationUpdate)

	e.SetAccountSettings(20000, 1)
	waitEvent(t, sizingCh, events.EventSizingUpdate)
}

// TestRefreshKeepsActiveValidationCurrent verifies live sizing follows fresh
// validation while captured values hold.
func TestRefreshKeepsActiveValidationCurrent(t *testing.T) {
	source := pullbackSource()
	e := newTestEngine(source, nil)
	e.Refresh(context.Background())

	if err := e.SelectOpportunity(context.Background(), "4h-1h"); err != nil {
		t.Fatalf("SelectOpportunity failed: %v", err)
	}

	// Levels shift on the next refresh; the captured decision numbers hold
	source.bundles["1h"] = makeBundle("1h", market.BiasBearish, []market.FibLevel{
		{Price: 102, Timeframe: "1h", Type: market.LevelRetracement, Direction: market.Long, Strategy: "fib"},
		{Price: 97, Timeframe: "1h", Type: market.LevelRetracement, Direction: market.Long, Strategy: "fib"},
	})
	e.Refresh(context.Background())

	snap := e.Snapshot()
	if snap.Validation == nil || snap.Validation.SuggestedEntry != 102 {
		t.Errorf("Validation should track fresh levels, got %+v", snap.Validation)
	}
	if e.SizingData().Inputs.Entry != 100 {
		t.Errorf("Captured entry should hold at 100, got %f", e.SizingData().Inputs.Entry)
	}
}
