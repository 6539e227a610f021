package signal

import (
	"testing"

	"tradedesk/internal/analysis"
)

func trend(tf string, direction analysis.TrendDirection, confidence int) analysis.TimeframeTrend {
	return analysis.TimeframeTrend{Timeframe: tf, Trend: direction, Confidence: confidence}
}

// TestLongOnPullback verifies higher-bullish/lower-bearish yields an active LONG
func TestLongOnPullback(t *testing.T) {
	g := NewGenerator()

	suggestions := g.Generate([]analysis.TimeframeTrend{
		trend("4h", analysis.TrendBullish, 80),
		trend("1h", analysis.TrendBearish, 60),
	})

	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}

	s := suggestions[0]
	if s.Type != SignalLong {
		t.Errorf("Expected LONG, got %s", s.Type)
	}
	if !s.IsActive {
		t.Error("Pullback signal should be active")
	}
	if s.Confidence != 70 {
		t.Errorf("Expected mean confidence 70, got %d", s.Confidence)
	}
	if s.EntryZone != "Support zone on 1h" {
		t.Errorf("Unexpected entry zone: %s", s.EntryZone)
	}
}

// TestShortOnRally verifies higher-bearish/lower-bullish yields an active SHORT
func TestShortOnRally(t *testing.T) {
	g := NewGenerator()

	suggestions := g.Generate([]analysis.TimeframeTrend{
		trend("1d", analysis.TrendBearish, 75),
		trend("4h", analysis.TrendBullish, 65),
	})

	s := suggestions[0]
	if s.Type != SignalShort {
		t.Errorf("Expected SHORT, got %s", s.Type)
	}
	if s.EntryZone != "Resistance zone on 4h" {
		t.Errorf("Unexpected entry zone: %s", s.EntryZone)
	}
}

// TestWaitOtherwise verifies aligned or ranging pairs yield inactive WAIT
func TestWaitOtherwise(t *testing.T) {
	g := NewGenerator()

	cases := [][2]analysis.TimeframeTrend{
		{trend("4h", analysis.TrendBullish, 80), trend("1h", analysis.TrendBullish, 70)},
		{trend("4h", analysis.TrendRanging, 50), trend("1h", analysis.TrendBearish, 70)},
		{trend("4h", analysis.TrendBullish, 80), trend("1h", analysis.TrendRanging, 50)},
		{trend("4h", analysis.TrendRanging, 0), trend("1h", analysis.TrendRanging, 0)},
	}

	for i, pair := range cases {
		suggestions := g.Generate(pair[:])
		if suggestions[0].Type != SignalWait {
			t.Errorf("Case %d: expected WAIT, got %s", i, suggestions[0].Type)
		}
		if suggestions[0].IsActive {
			t.Errorf("Case %d: WAIT must not be active", i)
		}
	}
}

// TestPairingAndStyles verifies consecutive pairing and style assignment
func TestPairingAndStyles(t *testing.T) {
	g := NewGenerator()

	suggestions := g.Generate([]analysis.TimeframeTrend{
		trend("1d", analysis.TrendBullish, 80),
		trend("4h", analysis.TrendBearish, 70),
		trend("1h", analysis.TrendBullish, 60),
		trend("15m", analysis.TrendBearish, 55),
	})

	if len(suggestions) != 3 {
		t.Fatalf("Expected 3 pairs from 4 timeframes, got %d", len(suggestions))
	}

	expected := []struct {
		id    string
		style string
	}{
		{"1d-4h", "position"},
		{"4h-1h", "swing"},
		{"1h-15m", "intraday"},
	}
	for i, want := range expected {
		if suggestions[i].ID != want.id {
			t.Errorf("Pair %d: expected id %s, got %s", i, want.id, suggestions[i].ID)
		}
		if suggestions[i].TradingStyle != want.style {
			t.Errorf("Pair %d: expected style %s, got %s", i, want.style, suggestions[i].TradingStyle)
		}
	}
}

// TestConfidenceMonotonic verifies the combinator is monotone in both inputs
func TestConfidenceMonotonic(t *testing.T) {
	if combineConfidence(80, 60) < combineConfidence(70, 60) {
		t.Error("Combinator not monotone in higher confidence")
	}
	if combineConfidence(80, 70) < combineConfidence(80, 60) {
		t.Error("Combinator not monotone in lower confidence")
	}
	if combineConfidence(80, 60) != combineConfidence(80, 60) {
		t.Error("Combinator not deterministic")
	}
}
