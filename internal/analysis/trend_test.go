package analysis

import (
	"testing"

	"tradedesk/internal/market"
)

func fptr(v float64) *float64 { return &v }

func makeBundle(bars int, labels []market.SwingLabel, rsi, macd *float64) *market.IndicatorBundle {
	bundle := &market.IndicatorBundle{
		Symbol:    "BTCUSDT",
		Timeframe: "4h",
	}
	for i := 0; i < bars; i++ {
		bundle.Bars = append(bundle.Bars, market.Kline{Close: 100 + float64(i)})
	}
	for i, label := range labels {
		bundle.Swings = append(bundle.Swings, market.SwingMark{Price: 100, BarIndex: i, Label: label})
	}
	if rsi != nil {
		bundle.RSI = market.FloatSeries{rsi}
	}
	if macd != nil {
		bundle.MACDHist = market.FloatSeries{macd}
	}
	return bundle
}

// TestInsufficientData verifies that fewer than 26 bars degrades to a marked
// ranging result instead of an error.
func TestInsufficientData(t *testing.T) {
	ta := NewTrendAnalyzer()

	trend := ta.Analyze(makeBundle(25, []market.SwingLabel{market.SwingHigherHigh}, fptr(70), fptr(1)))

	if trend.Trend != TrendRanging {
		t.Errorf("Expected ranging, got %s", trend.Trend)
	}
	if trend.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %d", trend.Confidence)
	}
	if trend.Error != "Insufficient data" {
		t.Errorf("Expected insufficient data marker, got %q", trend.Error)
	}
}

// TestAllIndicatorsBullish verifies full agreement yields bullish with max confidence
func TestAllIndicatorsBullish(t *testing.T) {
	ta := NewTrendAnalyzer()

	labels := []market.SwingLabel{
		market.SwingHigherHigh, market.SwingHigherLow, market.SwingHigherHigh,
	}
	trend := ta.Analyze(makeBundle(50, labels, fptr(65), fptr(2.5)))

	if trend.Trend != TrendBullish {
		t.Fatalf("Expected bullish, got %s", trend.Trend)
	}
	if trend.Confidence != 100 {
		t.Errorf("Expected confidence 100, got %d", trend.Confidence)
	}
	if trend.Swing.Signal != market.BiasBullish {
		t.Errorf("Expected bullish swing signal, got %s", trend.Swing.Signal)
	}
}

// TestNeutralIndicatorsAbstain verifies neutral indicators contribute no weight.
// Swing neutral (50/50 markers), RSI exactly 50, MACD positive: only MACD votes,
// so the normalized bullish score is 1.0.
func TestNeutralIndicatorsAbstain(t *testing.T) {
	ta := NewTrendAnalyzer()

	labels := []market.SwingLabel{market.SwingHigherHigh, market.SwingLowerLow}
	trend := ta.Analyze(makeBundle(50, labels, fptr(50), fptr(0.8)))

	if trend.Trend != TrendBullish {
		t.Fatalf("Expected bullish, got %s", trend.Trend)
	}
	if trend.Confidence != 100 {
		t.Errorf("Expected confidence 100 from the sole voting indicator, got %d", trend.Confidence)
	}
}

// TestZeroContributingWeight verifies all-neutral indicators produce ranging/0
func TestZeroContributingWeight(t *testing.T) {
	ta := NewTrendAnalyzer()

	labels := []market.SwingLabel{market.SwingHigherHigh, market.SwingLowerLow}
	trend := ta.Analyze(makeBundle(50, labels, fptr(50), fptr(0)))

	if trend.Trend != TrendRanging {
		t.Errorf("Expected ranging, got %s", trend.Trend)
	}
	if trend.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %d", trend.Confidence)
	}
}

// TestMixedSignalsRanging verifies a near-even split classifies as ranging at 50
func TestMixedSignalsRanging(t *testing.T) {
	ta := NewTrendAnalyzer()

	// Swing bullish (0.40), RSI bearish (0.30), MACD bearish (0.30):
	// normalized 0.40 vs 0.60 - bearish wins the tiebreak at >=0.5
	labels := []market.SwingLabel{
		market.SwingHigherHigh, market.SwingHigherHigh, market.SwingHigherLow,
	}
	trend := ta.Analyze(makeBundle(50, labels, fptr(35), fptr(-1.2)))

	if trend.Trend != TrendBearish {
		t.Fatalf("Expected bearish, got %s", trend.Trend)
	}
	if trend.Confidence != 60 {
		t.Errorf("Expected confidence 60, got %d", trend.Confidence)
	}
}

// TestConfidenceBounds verifies confidence stays in [0,100] and the trend is a
// valid classification across a sweep of inputs.
func TestConfidenceBounds(t *testing.T) {
	ta := NewTrendAnalyzer()

	rsiValues := []float64{0, 25, 40, 50, 60, 75, 100}
	macdValues := []float64{-5, -0.1, 0, 0.1, 5}
	labelSets := [][]market.SwingLabel{
		nil,
		{market.SwingHigherHigh},
		{market.SwingLowerLow, market.SwingLowerHigh},
		{market.SwingHigherHigh, market.SwingLowerLow},
	}

	for _, rsi := range rsiValues {
		for _, macd := range macdValues {
			for _, labels := range labelSets {
				trend := ta.Analyze(makeBundle(50, labels, fptr(rsi), fptr(macd)))

				if trend.Confidence < 0 || trend.Confidence > 100 {
					t.Errorf("Confidence out of range: %d (rsi=%f macd=%f)", trend.Confidence, rsi, macd)
				}
				if trend.Trend != TrendBullish && trend.Trend != TrendBearish && trend.Trend != TrendRanging {
					t.Errorf("Invalid trend classification: %s", trend.Trend)
				}
			}
		}
	}
}

// TestSwingClassificationThresholds verifies the 0.6/0.4 swing ratio thresholds
func TestSwingClassificationThresholds(t *testing.T) {
	ta := NewTrendAnalyzer()

	// 3 of 5 bullish = 0.6: bullish
	labels := []market.SwingLabel{
		market.SwingHigherHigh, market.SwingHigherLow, market.SwingHigherHigh,
		market.SwingLowerLow, market.SwingLowerHigh,
	}
	signal := ta.classifySwing(toMarks(labels))
	if signal.Signal != market.BiasBullish {
		t.Errorf("Expected bullish at ratio 0.6, got %s", signal.Signal)
	}
	if signal.Value == nil || *signal.Value != 60 {
		t.Errorf("Expected value 60, got %v", signal.Value)
	}

	// 2 of 5 bullish = 0.4: bearish, value is the bearish share
	labels = []market.SwingLabel{
		market.SwingHigherHigh, market.SwingHigherLow,
		market.SwingLowerLow, market.SwingLowerHigh, market.SwingLowerLow,
	}
	signal = ta.classifySwing(toMarks(labels))
	if signal.Signal != market.BiasBearish {
		t.Errorf("Expected bearish at ratio 0.4, got %s", signal.Signal)
	}
	if signal.Value == nil || *signal.Value != 60 {
		t.Errorf("Expected value 60, got %v", signal.Value)
	}

	// 1 of 2 bullish = 0.5: neutral
	labels = []market.SwingLabel{market.SwingHigherHigh, market.SwingLowerLow}
	signal = ta.classifySwing(toMarks(labels))
	if signal.Signal != market.BiasNeutral {
		t.Errorf("Expected neutral at ratio 0.5, got %s", signal.Signal)
	}
}

func toMarks(labels []market.SwingLabel) []market.SwingMark {
	marks := make([]market.SwingMark, len(labels))
	for i, label := range labels {
		marks[i] = market.SwingMark{Label: label}
	}
	return marks
}

// TestRSISeriesSkipsNulls verifies the latest non-null value is used
func TestRSISeriesSkipsNulls(t *testing.T) {
	ta := NewTrendAnalyzer()

	series := market.FloatSeries{fptr(30), fptr(65), nil, nil}
	signal := ta.classifyRSI(series)

	if signal.Signal != market.BiasBullish {
		t.Errorf("Expected bullish from latest non-null 65, got %s", signal.Signal)
	}
}

// TestComputeAlignment verifies the 0.7/0.5 alignment thresholds and the
// exclusion of loading/errored timeframes.
func TestComputeAlignment(t *testing.T) {
	trends := []TimeframeTrend{
		{Timeframe: "1d", Trend: TrendBullish},
		{Timeframe: "4h", Trend: TrendBullish},
		{Timeframe: "1h", Trend: TrendBullish},
		{Timeframe: "15m", Trend: TrendRanging},
	}

	alignment := ComputeAlignment(trends)
	if alignment.Direction != TrendBullish {
		t.Errorf("Expected bullish alignment, got %s", alignment.Direction)
	}
	if alignment.Strength != "strong" {
		t.Errorf("Expected strong at 3/4, got %s", alignment.Strength)
	}

	// Errored timeframe excluded: 2 of 3 valid bullish is still moderate
	trends[2].Error = "Insufficient data"
	alignment = ComputeAlignment(trends)
	if alignment.Strength != "moderate" {
		t.Errorf("Expected moderate at 2/3, got %s", alignment.Strength)
	}
	if alignment.BullishCount != 2 {
		t.Errorf("Expected 2 bullish counted, got %d", alignment.BullishCount)
	}

	// No valid timeframes at all
	alignment = ComputeAlignment(nil)
	if alignment.Strength != "none" {
		t.Errorf("Expected none for empty input, got %s", alignment.Strength)
	}
}
