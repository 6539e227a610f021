// Package analysis turns raw per-timeframe indicator data into directional
// trend classifications with confidence.
package analysis

import (
	"math"

	"tradedesk/internal/market"
)

// TrendDirection represents a timeframe's trend classification
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendRanging TrendDirection = "ranging"
)

// TimeframeTrend is the full trend classification for one timeframe.
// It is recomputed wholesale on every refresh, never partially mutated.
type TimeframeTrend struct {
	Timeframe  string                 `json:"timeframe"`
	Trend      TrendDirection         `json:"trend"`
	Confidence int                    `json:"confidence"` // 0-100
	Swing      market.IndicatorSignal `json:"swing"`
	RSI        market.IndicatorSignal `json:"rsi"`
	MACD       market.IndicatorSignal `json:"macd"`
	IsLoading  bool                   `json:"is_loading"`
	Error      string                 `json:"error,omitempty"`
}

// Indicator weights for the combined classification. Neutral indicators
// abstain: they contribute neither score nor weight.
const (
	swingWeight = 0.40
	rsiWeight   = 0.30
	macdWeight  = 0.30
)

// minBars is the minimum history needed for a meaningful classification
const minBars = 26

// TrendAnalyzer classifies per-timeframe indicator data
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// Analyze classifies one timeframe's indicator bundle into a TimeframeTrend.
// Insufficient data degrades to a ranging/zero-confidence result with an
// explicit error marker rather than failing.
func (ta *TrendAnalyzer) Analyze(bundle *market.IndicatorBundle) TimeframeTrend {
	if bundle == nil {
		return TimeframeTrend{
			Trend:     TrendRanging,
			Swing:     neutralSignal(),
			RSI:       neutralSignal(),
			MACD:      neutralSignal(),
			IsLoading: true,
		}
	}

	result := TimeframeTrend{
		Timeframe: bundle.Timeframe,
		Trend:     TrendRanging,
	}

	if len(bundle.Bars) < minBars {
		result.Swing = neutralSignal()
		result.RSI = neutralSignal()
		result.MACD = neutralSignal()
		result.Error = "Insufficient data"
		return result
	}

	// 1. Classify each indicator independently
	result.Swing = ta.classifySwing(bundle.Swings)
	result.RSI = ta.classifyRSI(bundle.RSI)
	result.MACD = ta.classifyMACD(bundle.MACDHist)

	// 2. Combine with fixed weights; neutral indicators abstain
	bullScore := 0.0
	bearScore := 0.0
	totalWeight := 0.0

	for _, entry := range []struct {
		signal market.IndicatorSignal
		weight float64
	}{
		{result.Swing, swingWeight},
		{result.RSI, rsiWeight},
		{result.MACD, macdWeight},
	} {
		switch entry.signal.Signal {
		case market.BiasBullish:
			bullScore += entry.weight
			totalWeight += entry.weight
		case market.BiasBearish:
			bearScore += entry.weight
			totalWeight += entry.weight
		}
	}

	// All indicators neutral: no evidence either way
	if totalWeight == 0 {
		result.Trend = TrendRanging
		result.Confidence = 0
		return result
	}

	normBull := bullScore / totalWeight
	normBear := bearScore / totalWeight

	switch {
	case normBull >= 0.65 || (normBull > normBear && normBull >= 0.5):
		result.Trend = TrendBullish
		result.Confidence = int(math.Round(normBull * 100))
	case normBear >= 0.65 || (normBear > normBull && normBear >= 0.5):
		result.Trend = TrendBearish
		result.Confidence = int(math.Round(normBear * 100))
	default:
		result.Trend = TrendRanging
		result.Confidence = 50
	}

	return result
}

// classifySwing classifies market structure by the ratio of bullish markers
// (HH/HL) to all classified markers.
func (ta *TrendAnalyzer) classifySwing(swings []market.SwingMark) market.IndicatorSignal {
	bullish := 0
	total := 0
	for _, swing := range swings {
		if swing.Label.Bullish() {
			bullish++
			total++
		} else if swing.Label.Bearish() {
			total++
		}
	}

	if total == 0 {
		return neutralSignal()
	}

	ratio := float64(bullish) / float64(total)
	switch {
	case ratio >= 0.6:
		return signalWithValue(market.BiasBullish, math.Round(ratio*100))
	case ratio <= 0.4:
		return signalWithValue(market.BiasBearish, math.Round((1-ratio)*100))
	default:
		return neutralSignal()
	}
}

// classifyRSI classifies the latest non-null RSI reading. 50 is the midline;
// exactly 50 is neutral.
func (ta *TrendAnalyzer) classifyRSI(series market.FloatSeries) market.IndicatorSignal {
	rsi, ok := series.Latest()
	if !ok {
		return neutralSignal()
	}

	switch {
	case rsi > 50:
		return signalWithValue(market.BiasBullish, rsi)
	case rsi < 50:
		return signalWithValue(market.BiasBearish, rsi)
	default:
		return signalWithValue(market.BiasNeutral, rsi)
	}
}

// classifyMACD classifies the latest non-null MACD histogram value by sign.
func (ta *TrendAnalyzer) classifyMACD(series market.FloatSeries) market.IndicatorSignal {
	hist, ok := series.Latest()
	if !ok {
		return neutralSignal()
	}

	switch {
	case hist > 0:
		return signalWithValue(market.BiasBullish, hist)
	case hist < 0:
		return signalWithValue(market.BiasBearish, hist)
	default:
		return signalWithValue(market.BiasNeutral, hist)
	}
}

func neutralSignal() market.IndicatorSignal {
	return market.IndicatorSignal{Signal: market.BiasNeutral}
}

func signalWithValue(bias market.SignalBias, value float64) market.IndicatorSignal {
	v := value
	return market.IndicatorSignal{Signal: bias, Value: &v}
}
