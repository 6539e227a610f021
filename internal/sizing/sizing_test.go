package sizing

import (
	"math"
	"testing"

	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
)

func fptr(v float64) *float64 { return &v }

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestBaseSizeArithmetic pins the canonical example: 2% of a 10,000 account
// risked over a 5-point stop distance.
func TestBaseSizeArithmetic(t *testing.T) {
	data := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           95,
		Targets:        []float64{115},
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	})

	if !approx(data.RiskAmount, 200) {
		t.Errorf("Expected risk amount 200, got %f", data.RiskAmount)
	}
	if !approx(data.StopDistance, 5) {
		t.Errorf("Expected stop distance 5, got %f", data.StopDistance)
	}
	if !approx(data.PositionSize, 40) {
		t.Errorf("Expected position size 40, got %f", data.PositionSize)
	}
	if !approx(data.RiskRewardRatio, 3) {
		t.Errorf("Expected R:R 3, got %f", data.RiskRewardRatio)
	}
	if data.Recommendation != RecommendationExcellent {
		t.Errorf("R:R 3 should be excellent, got %s", data.Recommendation)
	}
	if !data.IsValid {
		t.Error("A fully specified trade with R:R 3 should be valid")
	}
}

// TestRiskClamping verifies the 0.1% to 5% bounds with warnings
func TestRiskClamping(t *testing.T) {
	base := Inputs{
		AccountBalance: 10000,
		Entry:          100,
		Stop:           95,
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	}

	base.RiskPercentage = 12
	data := Compute(base)
	if !approx(data.AdjustedRiskPercentage, 5) {
		t.Errorf("Expected clamp to 5%%, got %f", data.AdjustedRiskPercentage)
	}
	if len(data.Warnings) == 0 {
		t.Error("Clamping should leave a warning")
	}

	base.RiskPercentage = 0.01
	data = Compute(base)
	if !approx(data.AdjustedRiskPercentage, 0.1) {
		t.Errorf("Expected clamp to 0.1%%, got %f", data.AdjustedRiskPercentage)
	}
}

// TestCategoryMultipliers verifies counter-trend and reversal risk reduction
func TestCategoryMultipliers(t *testing.T) {
	base := Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           95,
		Direction:      market.Long,
	}

	base.Category = opportunity.CategoryCounterTrend
	data := Compute(base)
	if !approx(data.AdjustedRiskPercentage, 1) {
		t.Errorf("Counter-trend should halve risk, got %f", data.AdjustedRiskPercentage)
	}
	if !approx(data.PositionSize, 20) {
		t.Errorf("Expected position size 20, got %f", data.PositionSize)
	}

	base.Category = opportunity.CategoryReversalAttempt
	data = Compute(base)
	if !approx(data.AdjustedRiskPercentage, 0.5) {
		t.Errorf("Reversal should quarter risk, got %f", data.AdjustedRiskPercentage)
	}
}

// TestZeroStopDistance verifies stop at entry yields size 0, never a division
func TestZeroStopDistance(t *testing.T) {
	data := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           100,
		Targets:        []float64{115},
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	})

	if data.PositionSize != 0 {
		t.Errorf("Expected size 0 with zero stop distance, got %f", data.PositionSize)
	}
	if data.RiskAmount != 0 {
		t.Errorf("Expected risk amount 0, got %f", data.RiskAmount)
	}
	if data.IsValid {
		t.Error("Zero stop distance must be invalid")
	}
}

// TestPositionValueCap verifies the 50%-of-account cap and the re-derived
// risk amount after capping.
func TestPositionValueCap(t *testing.T) {
	// 5% of 10,000 = 500 over a 0.5 stop distance wants 1000 units at price
	// 100, which is 100,000 of exposure. The cap holds it to 50 units.
	data := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 5,
		Entry:          100,
		Stop:           99.5,
		Targets:        []float64{102},
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	})

	if !approx(data.PositionSize, 50) {
		t.Errorf("Expected capped size 50, got %f", data.PositionSize)
	}
	if !approx(data.PositionValue, 5000) {
		t.Errorf("Expected position value 5000, got %f", data.PositionValue)
	}
	if !approx(data.RiskAmount, 25) {
		t.Errorf("Capped risk amount should be 50*0.5=25, got %f", data.RiskAmount)
	}

	found := false
	for _, w := range data.Warnings {
		if w == "Position capped at 50% of account value" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a cap warning, got %v", data.Warnings)
	}
}

// TestRiskRewardDirectionality verifies R:R measures toward the first target
// on the profitable side for each direction.
func TestRiskRewardDirectionality(t *testing.T) {
	short := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           105,
		Targets:        []float64{90, 80},
		Direction:      market.Short,
		Category:       opportunity.CategoryWithTrend,
	})
	if !approx(short.RiskRewardRatio, 2) {
		t.Errorf("Short R:R should be (100-90)/5=2, got %f", short.RiskRewardRatio)
	}
	if short.Recommendation != RecommendationGood {
		t.Errorf("R:R 2 should be good, got %s", short.Recommendation)
	}

	// Target on the wrong side of entry is no reward
	wrongSide := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           95,
		Targets:        []float64{90},
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	})
	if wrongSide.RiskRewardRatio != 0 {
		t.Errorf("Expected R:R 0 for a target below a long entry, got %f", wrongSide.RiskRewardRatio)
	}
	if wrongSide.Recommendation != RecommendationPoor {
		t.Errorf("Expected poor, got %s", wrongSide.Recommendation)
	}
}

// TestStopSideValidity verifies the stop must protect the position
func TestStopSideValidity(t *testing.T) {
	data := Compute(Inputs{
		AccountBalance: 10000,
		RiskPercentage: 2,
		Entry:          100,
		Stop:           110,
		Targets:        []float64{130},
		Direction:      market.Long,
		Category:       opportunity.CategoryWithTrend,
	})
	if data.IsValid {
		t.Error("A long with the stop above entry must be invalid")
	}
}

// TestCascadePrecedence verifies override > captured > live > 0 per field
func TestCascadePrecedence(t *testing.T) {
	m := NewManager(10000, 2)
	m.SetTradeContext(market.Long, opportunity.CategoryWithTrend)

	if data := m.Data(); data.Inputs.Entry != 0 {
		t.Errorf("Empty cascade should resolve to 0, got %f", data.Inputs.Entry)
	}

	m.SetLive(100, 95, []float64{115})
	if data := m.Data(); data.Inputs.Entry != 100 {
		t.Errorf("Live entry should resolve, got %f", data.Inputs.Entry)
	}

	m.Capture(102, 96, []float64{118})
	if data := m.Data(); data.Inputs.Entry != 102 || data.Inputs.Stop != 96 {
		t.Error("Captured values should shadow live values")
	}

	// A later live refresh must not shift a captured decision
	m.SetLive(110, 104, []float64{125})
	if data := m.Data(); data.Inputs.Entry != 102 {
		t.Errorf("Captured entry should survive a live refresh, got %f", data.Inputs.Entry)
	}

	m.SetOverrides(fptr(101), nil, nil)
	data := m.Data()
	if data.Inputs.Entry != 101 {
		t.Errorf("Override should win, got %f", data.Inputs.Entry)
	}
	if data.Inputs.Stop != 96 {
		t.Errorf("Unset override slot should fall through to captured, got %f", data.Inputs.Stop)
	}
}

// TestResetKeepsAccountSettings verifies reset scope
func TestResetKeepsAccountSettings(t *testing.T) {
	m := NewManager(10000, 2)
	m.SetTradeContext(market.Short, opportunity.CategoryCounterTrend)
	m.SetOverrides(fptr(100), fptr(105), []float64{90})

	m.Reset()

	data := m.Data()
	if data.Inputs.Entry != 0 || len(data.Inputs.Targets) != 0 {
		t.Error("Reset should clear trade-specific values")
	}
	if data.Inputs.AccountBalance != 10000 || data.Inputs.RiskPercentage != 2 {
		t.Error("Reset must not touch account settings")
	}
	if data.Inputs.Category != opportunity.CategoryWithTrend {
		t.Errorf("Reset should restore the default category, got %s", data.Inputs.Category)
	}
}
