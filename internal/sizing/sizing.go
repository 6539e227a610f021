// Package sizing computes risk-bounded position sizes for the active
// opportunity. Sizing never blocks a trade; guardrails clamp inputs and cap
// exposure, and every derived figure is recomputed from scratch on any change.
package sizing

import (
	"fmt"
	"math"
	"sync"

	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
)

const (
	minRiskPercentage = 0.1
	maxRiskPercentage = 5.0

	// A single position never ties up more than half the account
	maxPositionValueRatio = 0.5
)

// Recommendation grades the trade's risk/reward profile
type Recommendation string

const (
	RecommendationExcellent Recommendation = "excellent"
	RecommendationGood      Recommendation = "good"
	RecommendationMarginal  Recommendation = "marginal"
	RecommendationPoor      Recommendation = "poor"
)

// categoryMultipliers scale risk down for trades fighting the higher trend
var categoryMultipliers = map[opportunity.TradeCategory]float64{
	opportunity.CategoryWithTrend:       1.0,
	opportunity.CategoryCounterTrend:    0.5,
	opportunity.CategoryReversalAttempt: 0.25,
}

// Inputs are the fully-resolved values a size computation runs on
type Inputs struct {
	AccountBalance float64                   `json:"account_balance"`
	RiskPercentage float64                   `json:"risk_percentage"`
	Entry          float64                   `json:"entry"`
	Stop           float64                   `json:"stop"`
	Targets        []float64                 `json:"targets"`
	Direction      market.Direction          `json:"direction"`
	Category       opportunity.TradeCategory `json:"category"`
}

// Data is the derived sizing output. It is a pure function of Inputs.
type Data struct {
	Inputs                 Inputs         `json:"inputs"`
	AdjustedRiskPercentage float64        `json:"adjusted_risk_percentage"`
	RiskAmount             float64        `json:"risk_amount"`
	StopDistance           float64        `json:"stop_distance"`
	PositionSize           float64        `json:"position_size"`
	PositionValue          float64        `json:"position_value"`
	RiskRewardRatio        float64        `json:"risk_reward_ratio"`
	Recommendation         Recommendation `json:"recommendation"`
	IsValid                bool           `json:"is_valid"`
	Warnings               []string       `json:"warnings"`
}

// Compute derives all sizing figures from the inputs. Guardrails adjust
// rather than reject: out-of-range risk is clamped, oversized positions are
// capped, and each adjustment leaves a warning.
func Compute(in Inputs) Data {
	data := Data{Inputs: in}

	risk := in.RiskPercentage
	if risk < minRiskPercentage {
		risk = minRiskPercentage
		data.Warnings = append(data.Warnings, fmt.Sprintf("Risk percentage raised to the %.1f%% minimum", minRiskPercentage))
	} else if risk > maxRiskPercentage {
		risk = maxRiskPercentage
		data.Warnings = append(data.Warnings, fmt.Sprintf("Risk percentage capped at the %.1f%% maximum", maxRiskPercentage))
	}

	multiplier, ok := categoryMultipliers[in.Category]
	if !ok {
		multiplier = 1.0
	}
	data.AdjustedRiskPercentage = risk * multiplier
	if multiplier < 1.0 {
		data.Warnings = append(data.Warnings, fmt.Sprintf("Risk reduced to %.2f%% for a %s trade", data.AdjustedRiskPercentage, in.Category))
	}

	data.StopDistance = math.Abs(in.Entry - in.Stop)

	// Zero stop distance means risk per unit is undefined; size stays 0
	if in.AccountBalance > 0 && in.Entry > 0 && data.StopDistance > 0 {
		riskCapital := in.AccountBalance * data.AdjustedRiskPercentage / 100
		data.PositionSize = riskCapital / data.StopDistance

		maxSize := in.AccountBalance * maxPositionValueRatio / in.Entry
		if data.PositionSize > maxSize {
			data.PositionSize = maxSize
			data.Warnings = append(data.Warnings, fmt.Sprintf("Position capped at %.0f%% of account value", maxPositionValueRatio*100))
		}
	}

	// Risk amount reflects the actual size, so capping shrinks it too
	data.RiskAmount = data.PositionSize * data.StopDistance
	data.PositionValue = data.PositionSize * in.Entry

	data.RiskRewardRatio = riskReward(in.Entry, in.Stop, in.Targets, in.Direction)
	data.Recommendation = recommend(data.RiskRewardRatio)

	data.IsValid = in.Entry > 0 && in.Stop > 0 &&
		data.PositionSize > 0 &&
		stopOnCorrectSide(in.Entry, in.Stop, in.Direction) &&
		len(in.Targets) > 0 &&
		data.RiskRewardRatio >= 1.5

	return data
}

// riskReward measures reward to the first target against risk to the stop.
func riskReward(entry, stop float64, targets []float64, direction market.Direction) float64 {
	distance := math.Abs(entry - stop)
	if distance == 0 || len(targets) == 0 {
		return 0
	}

	var reward float64
	if direction == market.Short {
		reward = entry - targets[0]
	} else {
		reward = targets[0] - entry
	}
	if reward <= 0 {
		return 0
	}
	return reward / distance
}

func stopOnCorrectSide(entry, stop float64, direction market.Direction) bool {
	if direction == market.Short {
		return stop > entry
	}
	return stop < entry
}

func recommend(rr float64) Recommendation {
	switch {
	case rr >= 3:
		return RecommendationExcellent
	case rr >= 2:
		return RecommendationGood
	case rr >= 1.5:
		return RecommendationMarginal
	default:
		return RecommendationPoor
	}
}

// Manager holds the mutable sizing state for the active opportunity: account
// settings plus the three-slot cascade for entry, stop and targets. Every
// accessor recomputes derived figures from the current state.
type Manager struct {
	mu             sync.RWMutex
	accountBalance float64
	riskPercentage float64
	direction      market.Direction
	category       opportunity.TradeCategory
	entry          ValueSource
	stop           ValueSource
	targets        TargetSource
}

// NewManager creates a sizing manager with the given account settings.
func NewManager(accountBalance, riskPercentage float64) *Manager {
	return &Manager{
		accountBalance: accountBalance,
		riskPercentage: riskPercentage,
		direction:      market.Long,
		category:       opportunity.CategoryWithTrend,
	}
}

// SetAccountBalance updates the balance, leaving all other state untouched.
func (m *Manager) SetAccountBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountBalance = balance
}

// SetRiskPercentage updates the per-trade risk setting.
func (m *Manager) SetRiskPercentage(risk float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskPercentage = risk
}

// SetTradeContext records the active opportunity's direction and category.
func (m *Manager) SetTradeContext(direction market.Direction, category opportunity.TradeCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = direction
	m.category = category
}

// SetOverrides installs user-entered values. Nil pointers and an empty target
// list leave the corresponding cascade slot unset.
func (m *Manager) SetOverrides(entry, stop *float64, targets []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry.Override = entry
	m.stop.Override = stop
	m.targets.Override = targets
}

// Capture freezes the current validation suggestions so later live refreshes
// do not shift the numbers under an in-progress decision. Zero values are
// treated as absent.
func (m *Manager) Capture(entry, stop float64, targets []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry.Captured = positive(entry)
	m.stop.Captured = positive(stop)
	m.targets.Captured = targets
}

// SetLive records the most recent validation suggestions.
func (m *Manager) SetLive(entry, stop float64, targets []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry.Live = positive(entry)
	m.stop.Live = positive(stop)
	m.targets.Live = targets
}

// Reset clears all trade-specific state. Account settings survive; they are
// not scoped to one opportunity.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = market.Long
	m.category = opportunity.CategoryWithTrend
	m.entry = ValueSource{}
	m.stop = ValueSource{}
	m.targets = TargetSource{}
}

// Data resolves the cascade and computes the current sizing figures.
func (m *Manager) Data() Data {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Compute(Inputs{
		AccountBalance: m.accountBalance,
		RiskPercentage: m.riskPercentage,
		Entry:          m.entry.Resolve(),
		Stop:           m.stop.Resolve(),
		Targets:        m.targets.Resolve(),
		Direction:      m.direction,
		Category:       m.category,
	})
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
