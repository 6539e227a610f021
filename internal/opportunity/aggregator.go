// Package opportunity materializes rankable trade candidates from signals and
// trend context.
package opportunity

import (
	"fmt"
	"sort"

	"tradedesk/internal/analysis"
	"tradedesk/internal/market"
	"tradedesk/internal/signal"
)

// TradeCategory classifies a candidate's relationship to the higher-timeframe
// trend
type TradeCategory string

const (
	CategoryWithTrend       TradeCategory = "with_trend"
	CategoryCounterTrend    TradeCategory = "counter_trend"
	CategoryReversalAttempt TradeCategory = "reversal_attempt"
)

// TrendPhase classifies where the entry timeframe sits within its trend
type TrendPhase string

const (
	PhaseImpulse      TrendPhase = "impulse"
	PhaseCorrection   TrendPhase = "correction"
	PhaseExhaustion   TrendPhase = "exhaustion"
	PhaseContinuation TrendPhase = "continuation"
)

// TradeOpportunity is a materialized decision candidate: a signal plus its
// attached trend context and derived classification. Identity is the signal id.
type TradeOpportunity struct {
	signal.Suggestion
	Symbol      string                   `json:"symbol"`
	HigherTrend *analysis.TimeframeTrend `json:"higher_trend,omitempty"`
	LowerTrend  *analysis.TimeframeTrend `json:"lower_trend,omitempty"`
	Category    TradeCategory            `json:"category"`
	Phase       TrendPhase               `json:"phase"`
}

// Result is one aggregation pass over the latest signals and trends
type Result struct {
	Opportunities []TradeOpportunity `json:"opportunities"`
	Errors        []string           `json:"errors,omitempty"`
	HasError      bool               `json:"has_error"`
}

// Aggregator builds ranked opportunities from signals and trends
type Aggregator struct{}

// NewAggregator creates a new opportunity aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate filters WAIT signals out, attaches trend context, classifies and
// ranks the remainder. Per-timeframe errors are collected but never block
// opportunities built from timeframes that succeeded.
func (a *Aggregator) Aggregate(symbol string, suggestions []signal.Suggestion, trends []analysis.TimeframeTrend) Result {
	result := Result{}

	byTimeframe := make(map[string]*analysis.TimeframeTrend, len(trends))
	for i := range trends {
		byTimeframe[trends[i].Timeframe] = &trends[i]
		if trends[i].Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", trends[i].Timeframe, trends[i].Error))
		}
	}
	result.HasError = len(result.Errors) > 0

	for _, s := range suggestions {
		if s.Type == signal.SignalWait {
			continue
		}

		opp := TradeOpportunity{
			Suggestion:  s,
			Symbol:      symbol,
			HigherTrend: byTimeframe[s.HigherTF],
			LowerTrend:  byTimeframe[s.LowerTF],
		}
		opp.Category = CategorizeTrade(opp.HigherTrend, s.Direction(), s.Confidence)
		opp.Phase = DetectPhase(opp.LowerTrend)

		result.Opportunities = append(result.Opportunities, opp)
	}

	// Active setups first, then by confidence; stable so equal candidates
	// keep input order.
	sort.SliceStable(result.Opportunities, func(i, j int) bool {
		a, b := result.Opportunities[i], result.Opportunities[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		return a.Confidence > b.Confidence
	})

	return result
}

// CategorizeTrade classifies a candidate by whether it trades with or against
// the higher-timeframe trend. A missing or ranging higher trend offers no
// opposing evidence, so the trade counts as with_trend.
func CategorizeTrade(higher *analysis.TimeframeTrend, direction market.Direction, confidence int) TradeCategory {
	if higher == nil || higher.Trend == analysis.TrendRanging {
		return CategoryWithTrend
	}

	if trendBias(higher.Trend) == direction.Bias() {
		return CategoryWithTrend
	}

	if confidence >= 70 {
		return CategoryCounterTrend
	}
	return CategoryReversalAttempt
}

// DetectPhase classifies the entry timeframe's position within its trend:
// impulse (all indicators agree, high confidence), correction (structure holds
// but momentum diverges), exhaustion (low confidence with momentum divergence),
// or continuation by default.
func DetectPhase(trend *analysis.TimeframeTrend) TrendPhase {
	if trend == nil || trend.Trend == analysis.TrendRanging {
		return PhaseContinuation
	}

	bias := trendBias(trend.Trend)
	swingAgrees := trend.Swing.Signal == bias
	rsiDiverges := diverges(trend.RSI.Signal, bias)
	macdDiverges := diverges(trend.MACD.Signal, bias)

	switch {
	case trend.Confidence >= 70 && swingAgrees && trend.RSI.Signal == bias && trend.MACD.Signal == bias:
		return PhaseImpulse
	case swingAgrees && (rsiDiverges || macdDiverges):
		return PhaseCorrection
	case trend.Confidence < 40 && (rsiDiverges || macdDiverges):
		return PhaseExhaustion
	default:
		return PhaseContinuation
	}
}

func trendBias(direction analysis.TrendDirection) market.SignalBias {
	switch direction {
	case analysis.TrendBullish:
		return market.BiasBullish
	case analysis.TrendBearish:
		return market.BiasBearish
	default:
		return market.BiasNeutral
	}
}

func diverges(sig market.SignalBias, bias market.SignalBias) bool {
	if bias == market.BiasBullish {
		return sig == market.BiasBearish
	}
	if bias == market.BiasBearish {
		return sig == market.BiasBullish
	}
	return false
}
