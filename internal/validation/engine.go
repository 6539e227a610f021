// Package validation runs the fixed check battery over one selected trade
// opportunity and Fibonacci level data.
package validation

import (
	"fmt"
	"math"
	"sort"

	"tradedesk/internal/analysis"
	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
)

// CheckName identifies one validation check. The set is closed and ordered so
// check identity is stable across recomputation.
type CheckName string

const (
	CheckTrendAlignment   CheckName = "Trend Alignment"
	CheckEntryZone        CheckName = "Entry Zone"
	CheckTargetZones      CheckName = "Target Zones"
	CheckRSIConfirmation  CheckName = "RSI Confirmation"
	CheckMACDConfirmation CheckName = "MACD Confirmation"

	// CheckBackend is the synthetic check emitted when a remote validator is
	// configured but unreachable.
	CheckBackend CheckName = "Backend Validation"
)

// CheckOrder is the fixed order checks are produced in
var CheckOrder = []CheckName{
	CheckTrendAlignment,
	CheckEntryZone,
	CheckTargetZones,
	CheckRSIConfirmation,
	CheckMACDConfirmation,
}

// Check is one named validation check result
type Check struct {
	Name        CheckName `json:"name"`
	Passed      bool      `json:"passed"`
	Explanation string    `json:"explanation"`
	Details     string    `json:"details,omitempty"`
}

// Result is one full validation pass over an opportunity
type Result struct {
	Checks           []Check          `json:"checks"`
	Confluence       *ConfluenceScore `json:"confluence,omitempty"`
	SuggestedEntry   float64          `json:"suggested_entry"`
	SuggestedStop    float64          `json:"suggested_stop"`
	SuggestedTargets []float64        `json:"suggested_targets"`
	IsPullback       bool             `json:"is_pullback"`
	PassedCount      int              `json:"passed_count"`
	TotalCount       int              `json:"total_count"`
	PassPercentage   int              `json:"pass_percentage"`
	IsValid          bool             `json:"is_valid"`
	Warning          string           `json:"warning,omitempty"`
}

// Validity requires at least this pass percentage (3 of 5 checks)
const validPassPercentage = 60

// Engine validates opportunities against level data
type Engine struct{}

// NewEngine creates a new validation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Validate runs the full check battery. It always produces exactly the five
// named checks in fixed order, plus a confluence score when an entry level
// exists.
func (e *Engine) Validate(opp *opportunity.TradeOpportunity, levels []market.FibLevel, pivots []float64) Result {
	direction := opp.Direction()
	entryLevels := matchLevels(levels, market.LevelRetracement, opp.LowerTF, direction)
	targetLevels := matchLevels(levels, market.LevelExtension, opp.HigherTF, direction)

	sortEntryLevels(entryLevels, direction)
	sortTargetLevels(targetLevels, direction)

	result := Result{
		IsPullback: isPullback(opp),
	}

	// Suggested entry = best level, stop = worst; targets = nearest three.
	if len(entryLevels) > 0 {
		result.SuggestedEntry = entryLevels[0].Price
		result.SuggestedStop = entryLevels[len(entryLevels)-1].Price
	}
	for i, level := range targetLevels {
		if i == 3 {
			break
		}
		result.SuggestedTargets = append(result.SuggestedTargets, level.Price)
	}

	result.Checks = []Check{
		e.checkTrendAlignment(opp),
		e.checkEntryZone(opp, entryLevels),
		e.checkTargetZones(opp, targetLevels),
		e.checkRSI(opp, result.IsPullback),
		e.checkMACD(opp, result.IsPullback),
	}

	if len(entryLevels) > 0 {
		score := scoreConfluence(entryLevels[0], levels, pivots, opp.HigherTF)
		result.Confluence = &score
	}

	for _, check := range result.Checks {
		if check.Passed {
			result.PassedCount++
		}
	}
	result.TotalCount = len(result.Checks)
	result.PassPercentage = int(math.Round(float64(result.PassedCount) / float64(result.TotalCount) * 100))
	result.IsValid = result.PassPercentage >= validPassPercentage

	if opp.HigherTrend != nil && opp.HigherTrend.Trend == analysis.TrendRanging {
		result.Warning = "Higher timeframe is ranging, level reliability is reduced"
	}

	return result
}

// Unavailable is the degraded result used when a configured remote validator
// cannot be reached: a single synthetic failed check that always fails
// validity.
func Unavailable() Result {
	return Result{
		Checks: []Check{{
			Name:        CheckBackend,
			Passed:      false,
			Explanation: "Backend Validation unavailable",
		}},
		PassedCount:    0,
		TotalCount:     1,
		PassPercentage: 0,
		IsValid:        false,
	}
}

// isPullback reports whether the setup is a pullback entry: the entry
// timeframe moves counter to the higher timeframe's trend.
func isPullback(opp *opportunity.TradeOpportunity) bool {
	if opp.HigherTrend == nil || opp.LowerTrend == nil {
		return false
	}
	if opp.Direction() == market.Long {
		return opp.HigherTrend.Trend == analysis.TrendBullish && opp.LowerTrend.Trend == analysis.TrendBearish
	}
	return opp.HigherTrend.Trend == analysis.TrendBearish && opp.LowerTrend.Trend == analysis.TrendBullish
}

func (e *Engine) checkTrendAlignment(opp *opportunity.TradeOpportunity) Check {
	passed := opp.IsActive && opp.Confidence >= 60

	check := Check{Name: CheckTrendAlignment, Passed: passed}
	if passed {
		check.Explanation = fmt.Sprintf("Setup is live with %d%% confidence", opp.Confidence)
	} else if !opp.IsActive {
		check.Explanation = "Setup is not currently active"
	} else {
		check.Explanation = fmt.Sprintf("Confidence %d%% is below the 60%% minimum", opp.Confidence)
	}
	return check
}

func (e *Engine) checkEntryZone(opp *opportunity.TradeOpportunity, entryLevels []market.FibLevel) Check {
	check := Check{Name: CheckEntryZone, Passed: len(entryLevels) > 0}
	if check.Passed {
		check.Explanation = fmt.Sprintf("%d retracement level(s) on %s match the trade direction", len(entryLevels), opp.LowerTF)
		check.Details = fmt.Sprintf("Best entry %.4f", entryLevels[0].Price)
	} else {
		check.Explanation = fmt.Sprintf("No retracement levels on %s for this direction", opp.LowerTF)
	}
	return check
}

func (e *Engine) checkTargetZones(opp *opportunity.TradeOpportunity, targetLevels []market.FibLevel) Check {
	check := Check{Name: CheckTargetZones, Passed: len(targetLevels) > 0}
	if check.Passed {
		check.Explanation = fmt.Sprintf("%d extension level(s) on %s match the trade direction", len(targetLevels), opp.HigherTF)
	} else {
		check.Explanation = fmt.Sprintf("No extension levels on %s for this direction", opp.HigherTF)
	}
	return check
}

// checkRSI judges the entry-timeframe RSI. For a pullback entry, counter-trend
// RSI is expected and desired; otherwise RSI must agree with the direction or
// stay neutral.
func (e *Engine) checkRSI(opp *opportunity.TradeOpportunity, pullback bool) Check {
	check := Check{Name: CheckRSIConfirmation}

	rsi := market.IndicatorSignal{Signal: market.BiasNeutral}
	if opp.LowerTrend != nil {
		rsi = opp.LowerTrend.RSI
	}
	direction := opp.Direction()

	if pullback {
		counterBias := direction.Opposite().Bias()
		beyondThreshold := false
		if rsi.Value != nil {
			if direction == market.Long {
				beyondThreshold = *rsi.Value <= 40
			} else {
				beyondThreshold = *rsi.Value >= 60
			}
		}
		check.Passed = rsi.Signal == counterBias || beyondThreshold
		if check.Passed {
			check.Explanation = fmt.Sprintf("Counter-trend RSI on %s confirms the pullback", opp.LowerTF)
		} else {
			check.Explanation = fmt.Sprintf("RSI on %s does not show pullback conditions", opp.LowerTF)
		}
		return check
	}

	check.Passed = rsi.Signal == direction.Bias() || rsi.Signal == market.BiasNeutral
	if check.Passed {
		check.Explanation = fmt.Sprintf("RSI on %s supports the trade direction", opp.LowerTF)
	} else {
		check.Explanation = fmt.Sprintf("RSI on %s opposes the trade direction", opp.LowerTF)
	}
	return check
}

// checkMACD judges momentum. For a pullback, the higher timeframe's MACD must
// still agree with the trade direction (trend momentum intact) regardless of
// the entry timeframe; otherwise the entry timeframe's MACD must agree.
func (e *Engine) checkMACD(opp *opportunity.TradeOpportunity, pullback bool) Check {
	check := Check{Name: CheckMACDConfirmation}
	direction := opp.Direction()

	if pullback {
		higherMACD := market.IndicatorSignal{Signal: market.BiasNeutral}
		if opp.HigherTrend != nil {
			higherMACD = opp.HigherTrend.MACD
		}
		check.Passed = higherMACD.Signal == direction.Bias()
		if check.Passed {
			check.Explanation = fmt.Sprintf("%s MACD momentum intact for the pullback", opp.HigherTF)
		} else {
			check.Explanation = fmt.Sprintf("%s MACD momentum does not support the pullback", opp.HigherTF)
		}
		return check
	}

	lowerMACD := market.IndicatorSignal{Signal: market.BiasNeutral}
	if opp.LowerTrend != nil {
		lowerMACD = opp.LowerTrend.MACD
	}
	check.Passed = lowerMACD.Signal == direction.Bias()
	if check.Passed {
		check.Explanation = fmt.Sprintf("MACD on %s agrees with the trade direction", opp.LowerTF)
	} else {
		check.Explanation = fmt.Sprintf("MACD on %s does not agree with the trade direction", opp.LowerTF)
	}
	return check
}

func matchLevels(levels []market.FibLevel, levelType market.LevelType, timeframe string, direction market.Direction) []market.FibLevel {
	var matched []market.FibLevel
	for _, level := range levels {
		if level.Type == levelType && level.Timeframe == timeframe && level.Direction == direction {
			matched = append(matched, level)
		}
	}
	return matched
}

// sortEntryLevels orders entry candidates best-first: highest price for longs
// (closest retracement above the stop cluster), lowest for shorts. The last
// element is the worst level and becomes the suggested stop.
func sortEntryLevels(levels []market.FibLevel, direction market.Direction) {
	sort.SliceStable(levels, func(i, j int) bool {
		if direction == market.Long {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
}

// sortTargetLevels orders targets nearest-first: ascending for longs,
// descending for shorts.
func sortTargetLevels(levels []market.FibLevel, direction market.Direction) {
	sort.SliceStable(levels, func(i, j int) bool {
		if direction == market.Long {
			return levels[i].Price < levels[j].Price
		}
		return levels[i].Price > levels[j].Price
	})
}
