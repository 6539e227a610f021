package analysis

import "fmt"

// OverallAlignment summarizes trend agreement across all analyzed timeframes
type OverallAlignment struct {
	Direction    TrendDirection `json:"direction"` // bullish, bearish, or ranging (mixed)
	Strength     string         `json:"strength"`  // strong, moderate, weak, none
	Description  string         `json:"description"`
	BullishCount int            `json:"bullish_count"`
	BearishCount int            `json:"bearish_count"`
	RangingCount int            `json:"ranging_count"`
}

// Alignment thresholds: share of timeframes agreeing in one direction
const (
	strongAlignmentRatio   = 0.7
	moderateAlignmentRatio = 0.5
)

// ComputeAlignment aggregates trends across timeframes. Timeframes still
// loading or in error are excluded rather than counted against alignment.
func ComputeAlignment(trends []TimeframeTrend) OverallAlignment {
	alignment := OverallAlignment{
		Direction: TrendRanging,
		Strength:  "none",
	}

	total := 0
	for _, trend := range trends {
		if trend.IsLoading || trend.Error != "" {
			continue
		}
		total++
		switch trend.Trend {
		case TrendBullish:
			alignment.BullishCount++
		case TrendBearish:
			alignment.BearishCount++
		default:
			alignment.RangingCount++
		}
	}

	if total == 0 {
		alignment.Description = "No timeframe data available"
		return alignment
	}

	bullRatio := float64(alignment.BullishCount) / float64(total)
	bearRatio := float64(alignment.BearishCount) / float64(total)

	switch {
	case bullRatio >= strongAlignmentRatio:
		alignment.Direction = TrendBullish
		alignment.Strength = "strong"
		alignment.Description = fmt.Sprintf("Strong bullish alignment across %d of %d timeframes", alignment.BullishCount, total)
	case bearRatio >= strongAlignmentRatio:
		alignment.Direction = TrendBearish
		alignment.Strength = "strong"
		alignment.Description = fmt.Sprintf("Strong bearish alignment across %d of %d timeframes", alignment.BearishCount, total)
	case bullRatio >= moderateAlignmentRatio:
		alignment.Direction = TrendBullish
		alignment.Strength = "moderate"
		alignment.Description = fmt.Sprintf("Moderate bullish alignment, %d of %d timeframes", alignment.BullishCount, total)
	case bearRatio >= moderateAlignmentRatio:
		alignment.Direction = TrendBearish
		alignment.Strength = "moderate"
		alignment.Description = fmt.Sprintf("Moderate bearish alignment, %d of %d timeframes", alignment.BearishCount, total)
	default:
		alignment.Direction = TrendRanging
		alignment.Strength = "weak"
		alignment.Description = "Mixed trends across timeframes, no clear alignment"
	}

	return alignment
}
