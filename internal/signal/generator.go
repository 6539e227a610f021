// Package signal produces higher/lower timeframe pair signals from trend
// classifications.
package signal

import (
	"fmt"
	"math"

	"tradedesk/internal/analysis"
	"tradedesk/internal/market"
)

// SignalType represents the directional call of a suggestion
type SignalType string

const (
	SignalLong  SignalType = "LONG"
	SignalShort SignalType = "SHORT"
	SignalWait  SignalType = "WAIT"
)

// Suggestion is a candidate trade idea tying a higher timeframe (trend
// context) to a lower timeframe (entry context).
type Suggestion struct {
	ID           string     `json:"id"`
	Type         SignalType `json:"type"`
	HigherTF     string     `json:"higher_tf"`
	LowerTF      string     `json:"lower_tf"`
	Confidence   int        `json:"confidence"`
	TradingStyle string     `json:"trading_style"`
	Description  string     `json:"description"`
	Reasoning    string     `json:"reasoning"`
	EntryZone    string     `json:"entry_zone"`
	IsActive     bool       `json:"is_active"`
}

// Direction maps the signal type to a trade direction. Only valid for
// non-WAIT signals.
func (s Suggestion) Direction() market.Direction {
	if s.Type == SignalShort {
		return market.Short
	}
	return market.Long
}

// Trading styles for consecutive higher-to-lower timeframe pairs
var pairStyles = []string{"position", "swing", "intraday"}

// Generator derives pair signals from an ordered list of timeframe trends
type Generator struct{}

// NewGenerator creates a new signal generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate produces one suggestion per adjacent higher/lower timeframe pair.
// The trends slice must be ordered highest timeframe first. A pair signals
// LONG when the higher timeframe is bullish and the lower is pulling back
// (bearish), SHORT for the mirror case, and WAIT otherwise.
func (g *Generator) Generate(trends []analysis.TimeframeTrend) []Suggestion {
	var suggestions []Suggestion

	for i := 0; i+1 < len(trends); i++ {
		higher := trends[i]
		lower := trends[i+1]
		suggestions = append(suggestions, g.pairSignal(higher, lower, pairStyle(i)))
	}

	return suggestions
}

func (g *Generator) pairSignal(higher, lower analysis.TimeframeTrend, style string) Suggestion {
	suggestion := Suggestion{
		ID:           fmt.Sprintf("%s-%s", higher.Timeframe, lower.Timeframe),
		HigherTF:     higher.Timeframe,
		LowerTF:      lower.Timeframe,
		TradingStyle: style,
		Confidence:   combineConfidence(higher.Confidence, lower.Confidence),
	}

	switch {
	case higher.Trend == analysis.TrendBullish && lower.Trend == analysis.TrendBearish:
		suggestion.Type = SignalLong
		suggestion.IsActive = true
		suggestion.EntryZone = fmt.Sprintf("Support zone on %s", lower.Timeframe)
		suggestion.Description = fmt.Sprintf("Buy the pullback: %s uptrend, %s retracing", higher.Timeframe, lower.Timeframe)
		suggestion.Reasoning = fmt.Sprintf(
			"%s trend is bullish (%d%%) while %s is pulling back (%d%%). Counter-trend weakness on the entry timeframe is the pullback entry condition.",
			higher.Timeframe, higher.Confidence, lower.Timeframe, lower.Confidence)

	case higher.Trend == analysis.TrendBearish && lower.Trend == analysis.TrendBullish:
		suggestion.Type = SignalShort
		suggestion.IsActive = true
		suggestion.EntryZone = fmt.Sprintf("Resistance zone on %s", lower.Timeframe)
		suggestion.Description = fmt.Sprintf("Sell the rally: %s downtrend, %s bouncing", higher.Timeframe, lower.Timeframe)
		suggestion.Reasoning = fmt.Sprintf(
			"%s trend is bearish (%d%%) while %s is rallying (%d%%). Counter-trend strength on the entry timeframe is the rally-sell condition.",
			higher.Timeframe, higher.Confidence, lower.Timeframe, lower.Confidence)

	default:
		suggestion.Type = SignalWait
		suggestion.IsActive = false
		suggestion.EntryZone = "Range - wait for clarity"
		suggestion.Description = fmt.Sprintf("No setup on %s/%s pair", higher.Timeframe, lower.Timeframe)
		suggestion.Reasoning = fmt.Sprintf(
			"%s is %s and %s is %s: no counter-trend entry relationship is present.",
			higher.Timeframe, higher.Trend, lower.Timeframe, lower.Trend)
	}

	return suggestion
}

// combineConfidence blends the pair's trend confidences into one signal
// confidence. The arithmetic mean is used: deterministic and monotonically
// increasing in both inputs.
func combineConfidence(higher, lower int) int {
	return int(math.Round(float64(higher+lower) / 2))
}

func pairStyle(pairIndex int) string {
	if pairIndex < len(pairStyles) {
		return pairStyles[pairIndex]
	}
	return pairStyles[len(pairStyles)-1]
}
