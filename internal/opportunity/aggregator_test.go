package opportunity

import (
	"testing"

	"tradedesk/internal/analysis"
	"tradedesk/internal/market"
	"tradedesk/internal/signal"
)

func suggestion(id string, sigType signal.SignalType, confidence int, active bool) signal.Suggestion {
	return signal.Suggestion{
		ID:         id,
		Type:       sigType,
		HigherTF:   "4h",
		LowerTF:    "1h",
		Confidence: confidence,
		IsActive:   active,
	}
}

// TestWaitFiltered verifies WAIT signals never appear in opportunities
func TestWaitFiltered(t *testing.T) {
	a := NewAggregator()

	result := a.Aggregate("BTCUSDT", []signal.Suggestion{
		suggestion("a", signal.SignalLong, 70, true),
		suggestion("b", signal.SignalWait, 50, false),
		suggestion("c", signal.SignalShort, 65, true),
	}, nil)

	if len(result.Opportunities) != 2 {
		t.Fatalf("Expected 2 opportunities, got %d", len(result.Opportunities))
	}
	for _, opp := range result.Opportunities {
		if opp.Type == signal.SignalWait {
			t.Errorf("WAIT signal leaked into opportunities: %s", opp.ID)
		}
	}
}

// TestSortStableActiveFirst verifies active-before-inactive, confidence-desc,
// and input-order preservation for ties.
func TestSortStableActiveFirst(t *testing.T) {
	a := NewAggregator()

	result := a.Aggregate("BTCUSDT", []signal.Suggestion{
		suggestion("inactive-high", signal.SignalLong, 90, false),
		suggestion("active-low", signal.SignalLong, 60, true),
		suggestion("active-tie-1", signal.SignalShort, 75, true),
		suggestion("active-tie-2", signal.SignalLong, 75, true),
	}, nil)

	order := make([]string, len(result.Opportunities))
	for i, opp := range result.Opportunities {
		order[i] = opp.ID
	}

	expected := []string{"active-tie-1", "active-tie-2", "active-low", "inactive-high"}
	for i, want := range expected {
		if order[i] != want {
			t.Fatalf("Expected order %v, got %v", expected, order)
		}
	}
}

// TestTrendAttachment verifies trend lookup by timeframe, with absent trends
// allowed.
func TestTrendAttachment(t *testing.T) {
	a := NewAggregator()

	trends := []analysis.TimeframeTrend{
		{Timeframe: "4h", Trend: analysis.TrendBullish, Confidence: 80},
	}

	result := a.Aggregate("BTCUSDT", []signal.Suggestion{
		suggestion("a", signal.SignalLong, 70, true),
	}, trends)

	opp := result.Opportunities[0]
	if opp.HigherTrend == nil || opp.HigherTrend.Trend != analysis.TrendBullish {
		t.Error("Higher trend not attached")
	}
	if opp.LowerTrend != nil {
		t.Error("Missing lower trend should stay nil, not error")
	}
	if opp.Symbol != "BTCUSDT" {
		t.Errorf("Expected symbol attached, got %s", opp.Symbol)
	}
}

// TestErrorCollection verifies per-timeframe errors are surfaced without
// blocking opportunities.
func TestErrorCollection(t *testing.T) {
	a := NewAggregator()

	trends := []analysis.TimeframeTrend{
		{Timeframe: "4h", Trend: analysis.TrendBullish, Confidence: 80},
		{Timeframe: "15m", Trend: analysis.TrendRanging, Error: "Insufficient data"},
	}

	result := a.Aggregate("BTCUSDT", []signal.Suggestion{
		suggestion("a", signal.SignalLong, 70, true),
	}, trends)

	if !result.HasError {
		t.Error("Expected HasError with an errored timeframe")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "15m: Insufficient data" {
		t.Errorf("Unexpected errors: %v", result.Errors)
	}
	if len(result.Opportunities) != 1 {
		t.Error("Errored timeframe must not block other opportunities")
	}
}

// TestCategorizeTrade pins the direction-vs-trend category matrix
func TestCategorizeTrade(t *testing.T) {
	bullish := &analysis.TimeframeTrend{Trend: analysis.TrendBullish}
	bearish := &analysis.TimeframeTrend{Trend: analysis.TrendBearish}
	ranging := &analysis.TimeframeTrend{Trend: analysis.TrendRanging}

	cases := []struct {
		name       string
		higher     *analysis.TimeframeTrend
		direction  market.Direction
		confidence int
		want       TradeCategory
	}{
		{"aligned long", bullish, market.Long, 50, CategoryWithTrend},
		{"aligned long high conf", bullish, market.Long, 95, CategoryWithTrend},
		{"ranging higher", ranging, market.Long, 50, CategoryWithTrend},
		{"missing higher", nil, market.Short, 50, CategoryWithTrend},
		{"counter long confident", bearish, market.Long, 80, CategoryCounterTrend},
		{"counter long threshold", bearish, market.Long, 70, CategoryCounterTrend},
		{"reversal attempt", bearish, market.Long, 50, CategoryReversalAttempt},
		{"counter short", bullish, market.Short, 75, CategoryCounterTrend},
	}

	for _, tc := range cases {
		got := CategorizeTrade(tc.higher, tc.direction, tc.confidence)
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

// TestDetectPhase pins the phase classification rules on the entry timeframe
func TestDetectPhase(t *testing.T) {
	sig := func(b market.SignalBias) market.IndicatorSignal {
		return market.IndicatorSignal{Signal: b}
	}

	impulse := &analysis.TimeframeTrend{
		Trend:      analysis.TrendBullish,
		Confidence: 80,
		Swing:      sig(market.BiasBullish),
		RSI:        sig(market.BiasBullish),
		MACD:       sig(market.BiasBullish),
	}
	if got := DetectPhase(impulse); got != PhaseImpulse {
		t.Errorf("Expected impulse, got %s", got)
	}

	correction := &analysis.TimeframeTrend{
		Trend:      analysis.TrendBullish,
		Confidence: 65,
		Swing:      sig(market.BiasBullish),
		RSI:        sig(market.BiasBearish),
		MACD:       sig(market.BiasBullish),
	}
	if got := DetectPhase(correction); got != PhaseCorrection {
		t.Errorf("Expected correction, got %s", got)
	}

	exhaustion := &analysis.TimeframeTrend{
		Trend:      analysis.TrendBearish,
		Confidence: 30,
		Swing:      sig(market.BiasNeutral),
		RSI:        sig(market.BiasBullish),
		MACD:       sig(market.BiasBearish),
	}
	if got := DetectPhase(exhaustion); got != PhaseExhaustion {
		t.Errorf("Expected exhaustion, got %s", got)
	}

	continuation := &analysis.TimeframeTrend{
		Trend:      analysis.TrendBullish,
		Confidence: 60,
		Swing:      sig(market.BiasBullish),
		RSI:        sig(market.BiasBullish),
		MACD:       sig(market.BiasNeutral),
	}
	if got := DetectPhase(continuation); got != PhaseContinuation {
		t.Errorf("Expected continuation, got %s", got)
	}

	if got := DetectPhase(nil); got != PhaseContinuation {
		t.Errorf("Expected continuation for missing trend, got %s", got)
	}
}
