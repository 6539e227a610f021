package validation

import (
	"math"

	"tradedesk/internal/market"
)

// ConfluenceBreakdown itemizes each independent contribution to the score.
// Each field is separately auditable; Total is always their sum.
type ConfluenceBreakdown struct {
	BaseFibLevel        int `json:"base_fib_level"`
	SameTFConfluence    int `json:"same_tf_confluence"`
	HigherTFConfluence  int `json:"higher_tf_confluence"`
	CrossToolConfluence int `json:"cross_tool_confluence"`
	PreviousPivot       int `json:"previous_pivot"`
	PsychologicalLevel  int `json:"psychological_level"`
}

// ConfluenceScore measures how strongly independent levels cluster around the
// primary entry level
type ConfluenceScore struct {
	Total          int                 `json:"total"`
	Breakdown      ConfluenceBreakdown `json:"breakdown"`
	Interpretation string              `json:"interpretation"`
}

// Price tolerance for level clustering, as a fraction of the primary level
const confluenceTolerance = 0.005

// scoreConfluence scores the primary entry level against every other level,
// prior pivots, and round-number psychology. Contributions are independent and
// non-negative; the total is only ever their sum.
func scoreConfluence(primary market.FibLevel, levels []market.FibLevel, pivots []float64, higherTF string) ConfluenceScore {
	tolerance := primary.Price * confluenceTolerance

	breakdown := ConfluenceBreakdown{BaseFibLevel: 1}
	strategies := map[string]bool{primary.Strategy: true}

	for _, level := range levels {
		if level == primary {
			continue
		}
		if math.Abs(level.Price-primary.Price) > tolerance {
			continue
		}

		strategies[level.Strategy] = true
		if level.Timeframe == primary.Timeframe {
			breakdown.SameTFConfluence++
		} else if level.Timeframe == higherTF && level.Direction == primary.Direction {
			breakdown.HigherTFConfluence += 2
		}
	}

	// Converging levels from more than one tool family
	if len(strategies) > 1 {
		breakdown.CrossToolConfluence = 2
	}

	for _, pivot := range pivots {
		if math.Abs(pivot-primary.Price) <= tolerance {
			breakdown.PreviousPivot = 1
			break
		}
	}

	if isRoundNumber(primary.Price) {
		breakdown.PsychologicalLevel = 1
	}

	total := breakdown.BaseFibLevel + breakdown.SameTFConfluence + breakdown.HigherTFConfluence +
		breakdown.CrossToolConfluence + breakdown.PreviousPivot + breakdown.PsychologicalLevel

	return ConfluenceScore{
		Total:          total,
		Breakdown:      breakdown,
		Interpretation: interpretConfluence(total),
	}
}

// isRoundNumber checks magnitude-relative psychological levels: multiples of
// 1000 above 10,000, of 100 above 1,000, and so on down the scale.
func isRoundNumber(price float64) bool {
	if price <= 0 {
		return false
	}

	var step float64
	switch {
	case price >= 10000:
		step = 1000
	case price >= 1000:
		step = 100
	case price >= 100:
		step = 10
	case price >= 10:
		step = 1
	case price >= 1:
		step = 0.1
	default:
		step = 0.01
	}

	remainder := math.Mod(price, step)
	epsilon := step * 1e-6
	return remainder < epsilon || step-remainder < epsilon
}

func interpretConfluence(total int) string {
	switch {
	case total >= 7:
		return "Very strong confluence zone"
	case total >= 5:
		return "Strong confluence zone"
	case total >= 3:
		return "Moderate confluence"
	default:
		return "Weak confluence, single-level zone"
	}
}
