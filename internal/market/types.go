// Package market defines the typed data exchanged with the market/indicator
// provider. The engine treats indicator math as a black box: everything here is
// provider output, immutable per refresh.
package market

import "time"

// SignalBias represents one indicator's directional reading
type SignalBias string

const (
	BiasBullish SignalBias = "bullish"
	BiasBearish SignalBias = "bearish"
	BiasNeutral SignalBias = "neutral"
)

// Direction represents a trade direction
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the opposing trade direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Bias returns the trend bias a trade in this direction rides.
func (d Direction) Bias() SignalBias {
	if d == Long {
		return BiasBullish
	}
	return BiasBearish
}

// IndicatorSignal is one indicator's reading for one timeframe.
type IndicatorSignal struct {
	Signal SignalBias `json:"signal"`
	Value  *float64   `json:"value,omitempty"`
}

// Kline represents one OHLC bar
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// SwingLabel classifies a swing-pivot marker by market structure
type SwingLabel string

const (
	SwingHigherHigh SwingLabel = "HH"
	SwingHigherLow  SwingLabel = "HL"
	SwingLowerHigh  SwingLabel = "LH"
	SwingLowerLow   SwingLabel = "LL"
)

// Bullish reports whether the marker is bullish structure (HH or HL).
func (l SwingLabel) Bullish() bool {
	return l == SwingHigherHigh || l == SwingHigherLow
}

// Bearish reports whether the marker is bearish structure (LH or LL).
func (l SwingLabel) Bearish() bool {
	return l == SwingLowerHigh || l == SwingLowerLow
}

// SwingMark is one swing-pivot marker from the provider
type SwingMark struct {
	Price     float64    `json:"price"`
	BarIndex  int        `json:"bar_index"`
	Label     SwingLabel `json:"label"`
	Confirmed bool       `json:"confirmed"`
}

// FloatSeries is an indicator series where individual points may be missing
// (warm-up period, provider gaps).
type FloatSeries []*float64

// Latest returns the most recent non-null value in the series.
func (s FloatSeries) Latest() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			return *s[i], true
		}
	}
	return 0, false
}

// ATRSummary is the provider's volatility snapshot for one timeframe
type ATRSummary struct {
	Value          float64 `json:"value"`
	Percent        float64 `json:"percent"`
	Tier           string  `json:"tier"` // low, normal, high, extreme
	StopDistance1x float64 `json:"stop_distance_1x"`
	StopDistance15 float64 `json:"stop_distance_1_5x"`
	StopDistance2x float64 `json:"stop_distance_2x"`
}

// LevelType distinguishes pullback levels inside a swing from target levels
// beyond it.
type LevelType string

const (
	LevelRetracement LevelType = "retracement"
	LevelExtension   LevelType = "extension"
)

// FibLevel is one Fibonacci-derived price level from the provider
type FibLevel struct {
	Price     float64   `json:"price"`
	Timeframe string    `json:"timeframe"`
	Strategy  string    `json:"strategy"` // Tool family that produced the level
	Type      LevelType `json:"type"`
	Direction Direction `json:"direction"`
	Ratio     float64   `json:"ratio"`
	Heat      int       `json:"heat,omitempty"` // Provider confluence hint
}

// IndicatorBundle is everything the provider returns for one symbol+timeframe
type IndicatorBundle struct {
	Symbol    string      `json:"symbol"`
	Timeframe string      `json:"timeframe"`
	Bars      []Kline     `json:"bars"`
	Swings    []SwingMark `json:"swings"`
	RSI       FloatSeries `json:"rsi"`
	MACDHist  FloatSeries `json:"macd_hist"`
	ATR       *ATRSummary `json:"atr,omitempty"`
	Levels    []FibLevel  `json:"levels"`
	Pivots    []float64   `json:"pivots,omitempty"` // Prior pivot prices, may be absent
	FetchedAt time.Time   `json:"fetched_at"`
}
