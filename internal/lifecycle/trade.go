// Package lifecycle tracks an executed trade through its state machine:
// pending, active, at_breakeven, trailing, closed. All mutation goes through
// the guarded operations; calls outside their valid source states are silent
// no-ops. Guards always observe the result of earlier mutations in the same
// update, never a stale view.
package lifecycle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradedesk/internal/market"
)

// Status is the trade's state-machine state
type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusAtBreakeven Status = "at_breakeven"
	StatusTrailing    Status = "trailing"
	StatusClosed      Status = "closed"
)

// LogType tags entries in the append-only trade log
type LogType string

const (
	LogEntryType LogType = "entry"
	LogExit      LogType = "exit"
	LogStopMoved LogType = "stop_moved"
	LogTargetHit LogType = "target_hit"
	LogNote      LogType = "note"
)

// LogEntry is one append-only record of a lifecycle event
type LogEntry struct {
	Type      LogType   `json:"type"`
	Price     float64   `json:"price"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade is the authoritative state record for one executed trade. Every
// operation mutates it in place under one mutex, so two operations issued in
// the same update each see the other's effects.
type Trade struct {
	mu sync.Mutex

	id        string
	symbol    string
	direction market.Direction
	entry     float64
	stop      float64
	targets   []float64
	size      float64

	// Risk per unit is fixed at creation from the original stop distance
	riskPerUnit float64

	status            Status
	currentPrice      float64
	freeTradeActive   bool
	trailingEnabled   bool
	trailingStopPrice float64
	targetHit         []bool
	log               []LogEntry

	now func() time.Time
}

// NewTrade creates a pending trade from committed sizing output.
func NewTrade(symbol string, direction market.Direction, entry, stop, size float64, targets []float64) *Trade {
	riskPerUnit := entry - stop
	if riskPerUnit < 0 {
		riskPerUnit = -riskPerUnit
	}
	return &Trade{
		id:          uuid.New().String(),
		symbol:      symbol,
		direction:   direction,
		entry:       entry,
		stop:        stop,
		targets:     append([]float64(nil), targets...),
		size:        size,
		riskPerUnit: riskPerUnit,
		status:      StatusPending,
		targetHit:   make([]bool, len(targets)),
		now:         time.Now,
	}
}

// Activate moves the trade from pending to active and logs the entry. Any
// other source state is a no-op, so a repeated call leaves exactly one entry
// log record.
func (t *Trade) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return
	}
	t.status = StatusActive
	t.currentPrice = t.entry
	t.append(LogEntryType, t.entry, fmt.Sprintf("Entered %s at %.2f", t.direction, t.entry))
}

// UpdatePrice processes one price tick: stop check first, then target hits,
// then the trailing ratchet. A stop hit closes the trade immediately and
// skips the rest of the tick.
func (t *Trade) UpdatePrice(price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending || t.status == StatusClosed {
		return
	}
	t.currentPrice = price

	// The stop check uses the trailing price as it stood before this tick's
	// ratchet; the ratchet only runs when the trade survives the tick.
	stop := t.effectiveStop()
	if t.stopHit(price, stop) {
		t.status = StatusClosed
		t.append(LogExit, price, fmt.Sprintf("Stop at %.2f hit", stop))
		return
	}

	for i, target := range t.targets {
		if t.targetHit[i] || !t.targetReached(price, target) {
			continue
		}
		t.targetHit[i] = true
		t.append(LogTargetHit, price, fmt.Sprintf("Target %d at %.2f hit", i+1, target))
		break
	}

	if t.trailingEnabled {
		t.ratchetTrailingStop(price)
	}
}

// MoveToBreakeven marks the position risk-free: the effective stop becomes
// the entry price. No-op while pending or closed.
func (t *Trade) MoveToBreakeven() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending || t.status == StatusClosed {
		return
	}
	t.freeTradeActive = true
	t.status = StatusAtBreakeven
	t.append(LogStopMoved, t.currentPrice, fmt.Sprintf("Stop moved to breakeven at %.2f", t.entry))
}

// EnableTrailingStop starts trailing half a risk unit behind the current
// price. No-op while pending or closed.
func (t *Trade) EnableTrailingStop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending || t.status == StatusClosed {
		return
	}
	half := t.riskPerUnit / 2
	if t.direction == market.Short {
		t.trailingStopPrice = t.currentPrice + half
	} else {
		t.trailingStopPrice = t.currentPrice - half
	}
	t.trailingEnabled = true
	t.status = StatusTrailing
	t.append(LogStopMoved, t.currentPrice, fmt.Sprintf("Trailing stop enabled at %.2f", t.trailingStopPrice))
}

// Close closes the trade at the last known price with the given reason.
// No-op while pending or already closed.
func (t *Trade) Close(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending || t.status == StatusClosed {
		return
	}
	t.status = StatusClosed
	t.append(LogExit, t.currentPrice, reason)
}

// AddNote appends a note at the current price. Empty or whitespace-only text
// is a no-op.
func (t *Trade) AddNote(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}
	t.append(LogNote, t.currentPrice, text)
}

func (t *Trade) append(logType LogType, price float64, message string) {
	t.log = append(t.log, LogEntry{
		Type:      logType,
		Price:     price,
		Message:   message,
		Timestamp: t.now(),
	})
}

// effectiveStop resolves the stop precedence: trailing, then breakeven, then
// the original stop. Callers hold the mutex.
func (t *Trade) effectiveStop() float64 {
	if t.trailingEnabled {
		return t.trailingStopPrice
	}
	if t.freeTradeActive {
		return t.entry
	}
	return t.stop
}

func (t *Trade) stopHit(price, stop float64) bool {
	if t.direction == market.Short {
		return price >= stop
	}
	return price <= stop
}

func (t *Trade) targetReached(price, target float64) bool {
	if t.direction == market.Short {
		return price <= target
	}
	return price >= target
}

// ratchetTrailingStop advances the trailing stop toward price by half a risk
// unit. The stop only tightens; an adverse move never loosens it.
func (t *Trade) ratchetTrailingStop(price float64) {
	half := t.riskPerUnit / 2
	if t.direction == market.Short {
		candidate := price + half
		if candidate < t.trailingStopPrice {
			t.trailingStopPrice = candidate
		}
		return
	}
	candidate := price - half
	if candidate > t.trailingStopPrice {
		t.trailingStopPrice = candidate
	}
}

// Snapshot is a read-only view of the trade with its derived figures
type Snapshot struct {
	ID                 string           `json:"id"`
	Symbol             string           `json:"symbol"`
	Direction          market.Direction `json:"direction"`
	Status             Status           `json:"status"`
	EntryPrice         float64          `json:"entry_price"`
	StopLoss           float64          `json:"stop_loss"`
	Targets            []float64        `json:"targets"`
	PositionSize       float64          `json:"position_size"`
	CurrentPrice       float64          `json:"current_price"`
	FreeTradeActive    bool             `json:"free_trade_active"`
	TrailingEnabled    bool             `json:"trailing_enabled"`
	TrailingStopPrice  float64          `json:"trailing_stop_price,omitempty"`
	EffectiveStopPrice float64          `json:"effective_stop_price"`
	CurrentPnL         float64          `json:"current_pnl"`
	PnLPercent         float64          `json:"pnl_percent"`
	RMultiple          float64          `json:"r_multiple"`
	Log                []LogEntry       `json:"log"`
}

// Snapshot returns the current state with all derived values recomputed.
func (t *Trade) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:                 t.id,
		Symbol:             t.symbol,
		Direction:          t.direction,
		Status:             t.status,
		EntryPrice:         t.entry,
		StopLoss:           t.stop,
		Targets:            append([]float64(nil), t.targets...),
		PositionSize:       t.size,
		CurrentPrice:       t.currentPrice,
		FreeTradeActive:    t.freeTradeActive,
		TrailingEnabled:    t.trailingEnabled,
		TrailingStopPrice:  t.trailingStopPrice,
		EffectiveStopPrice: t.effectiveStop(),
		Log:                append([]LogEntry(nil), t.log...),
	}

	if t.status != StatusPending {
		if t.direction == market.Short {
			snap.CurrentPnL = (t.entry - t.currentPrice) * t.size
		} else {
			snap.CurrentPnL = (t.currentPrice - t.entry) * t.size
		}
		if t.entry > 0 && t.size > 0 {
			snap.PnLPercent = snap.CurrentPnL / (t.entry * t.size) * 100
		}
		if t.riskPerUnit > 0 && t.size > 0 {
			snap.RMultiple = snap.CurrentPnL / (t.riskPerUnit * t.size)
		}
	}

	return snap
}

// Status returns the current state-machine state.
func (t *Trade) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
