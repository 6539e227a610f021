package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradedesk/internal/events"
	"tradedesk/internal/journal"
	"tradedesk/internal/lifecycle"
	"tradedesk/internal/opportunity"
	"tradedesk/internal/override"
	"tradedesk/internal/sizing"
	"tradedesk/internal/validation"
)

var (
	ErrNoOpportunity    = errors.New("no opportunity selected")
	ErrUnknownID        = errors.New("unknown opportunity id")
	ErrNotValid         = errors.New("validation does not permit execution")
	ErrSizingInvalid    = errors.New("sizing is not valid for execution")
	ErrTradeInProgress  = errors.New("a trade is already in progress")
	ErrSelectionChanged = errors.New("selection changed during execution")
)

// SelectOpportunity makes one aggregated opportunity the active decision.
// Overrides, sizing trade fields and any lifecycle record from the previous
// selection are reset: nothing carries over between opportunities.
func (e *Engine) SelectOpportunity(ctx context.Context, id string) error {
	e.mu.RLock()
	var found *opportunity.TradeOpportunity
	for i := range e.opportunities.Opportunities {
		if e.opportunities.Opportunities[i].ID == id {
			opp := e.opportunities.Opportunities[i]
			found = &opp
			break
		}
	}
	bundles := e.bundles
	e.mu.RUnlock()

	if found == nil {
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}

	result := e.validate(ctx, found, bundles)

	e.mu.Lock()
	e.activeID = id
	e.activeOpp = found
	e.activeResult = &result
	e.trade = nil
	e.journalID = ""
	e.overrides.Reset()
	e.sizing.Reset()
	e.sizing.SetTradeContext(found.Direction(), found.Category)
	e.sizing.SetLive(result.SuggestedEntry, result.SuggestedStop, result.SuggestedTargets)
	// Freeze the suggestions backing this decision; later refreshes update
	// the live slots without shifting the captured numbers.
	e.sizing.Capture(result.SuggestedEntry, result.SuggestedStop, result.SuggestedTargets)
	e.mu.Unlock()

	e.bus.Publish(events.Event{
		Type: events.EventOpportunityUpdate,
		Data: map[string]interface{}{"active_id": id},
	})
	e.bus.Publish(events.Event{
		Type: events.EventValidationUpdate,
		Data: map[string]interface{}{"active_id": id, "validation": result},
	})
	return nil
}

// SetAccountSettings updates the balance and risk percentage used for sizing.
func (e *Engine) SetAccountSettings(balance, riskPercentage float64) {
	e.sizing.SetAccountBalance(balance)
	e.sizing.SetRiskPercentage(riskPercentage)
	e.publishSizing()
}

// SetTradeOverrides installs user-entered entry, stop and targets for the
// active decision.
func (e *Engine) SetTradeOverrides(entry, stop *float64, targets []float64) error {
	e.mu.RLock()
	selected := e.activeOpp != nil
	e.mu.RUnlock()
	if !selected {
		return ErrNoOpportunity
	}
	e.sizing.SetOverrides(entry, stop, targets)
	e.publishSizing()
	return nil
}

// SizingData returns the current sizing computation.
func (e *Engine) SizingData() sizing.Data {
	return e.sizing.Data()
}

// SetCheckImportance reconfigures one check's importance.
func (e *Engine) SetCheckImportance(name validation.CheckName, importance override.Importance) {
	e.overrides.SetImportance(name, importance)
}

// OverrideCheck overrides one failed warning check with a justification.
func (e *Engine) OverrideCheck(name validation.CheckName, reason string) (bool, error) {
	e.mu.RLock()
	result := e.activeResult
	e.mu.RUnlock()
	if result == nil {
		return false, ErrNoOpportunity
	}
	return e.overrides.Override(*result, name, reason), nil
}

// OverrideSummary returns effective validity for the active decision.
func (e *Engine) OverrideSummary() (override.Summary, error) {
	e.mu.RLock()
	result := e.activeResult
	e.mu.RUnlock()
	if result == nil {
		return override.Summary{}, ErrNoOpportunity
	}
	return e.overrides.Apply(*result), nil
}

// ExecuteTrade commits the active decision: it journals the entry and starts
// the lifecycle record. A journal failure aborts execution without touching
// engine state.
func (e *Engine) ExecuteTrade(ctx context.Context) (*lifecycle.Snapshot, error) {
	e.mu.RLock()
	opp := e.activeOpp
	result := e.activeResult
	activeID := e.activeID
	inProgress := e.trade != nil && e.trade.Status() != lifecycle.StatusClosed
	e.mu.RUnlock()

	if opp == nil || result == nil {
		return nil, ErrNoOpportunity
	}
	if inProgress {
		return nil, ErrTradeInProgress
	}

	summary := e.overrides.Apply(*result)
	if !summary.EffectivelyValid {
		return nil, ErrNotValid
	}

	data := e.sizing.Data()
	if !data.IsValid {
		return nil, ErrSizingInvalid
	}

	trade := lifecycle.NewTrade(opp.Symbol, data.Inputs.Direction, data.Inputs.Entry, data.Inputs.Stop, data.PositionSize, data.Inputs.Targets)
	snap := trade.Snapshot()

	if e.journal != nil {
		entry := journal.Entry{
			ID:           snap.ID,
			Symbol:       opp.Symbol,
			Direction:    data.Inputs.Direction,
			EntryPrice:   data.Inputs.Entry,
			StopLoss:     data.Inputs.Stop,
			Targets:      data.Inputs.Targets,
			PositionSize: data.PositionSize,
			EntryTime:    time.Now(),
			Timeframe:    opp.LowerTF,
		}
		err := journal.WriteWithRetry(ctx, e.retryConfig, func(ctx context.Context) error {
			return e.journal.Create(ctx, entry)
		})
		if err != nil {
			return nil, fmt.Errorf("journal write failed: %w", err)
		}
	}

	trade.Activate()

	e.mu.Lock()
	if e.activeID != activeID {
		e.mu.Unlock()
		return nil, ErrSelectionChanged
	}
	e.trade = trade
	e.journalID = snap.ID
	e.mu.Unlock()

	e.bus.PublishTradeExecuted(opp.Symbol, string(data.Inputs.Direction), data.Inputs.Entry, data.PositionSize)

	activated := trade.Snapshot()
	return &activated, nil
}

// OnPriceTick feeds one live price into the engine: it drives the lifecycle
// record and publishes the resulting state.
func (e *Engine) OnPriceTick(price float64) {
	e.mu.Lock()
	e.lastPrice = price
	trade := e.trade
	journalID := e.journalID
	e.mu.Unlock()

	e.bus.PublishPriceUpdate(e.cfg.Symbol, price)

	if trade == nil {
		return
	}

	wasClosed := trade.Status() == lifecycle.StatusClosed
	trade.UpdatePrice(price)
	snap := trade.Snapshot()

	e.publishLifecycle(snap)

	if !wasClosed && snap.Status == lifecycle.StatusClosed {
		e.onTradeClosed(snap, journalID)
	}
}

// MoveToBreakeven moves the active trade's stop to its entry price.
func (e *Engine) MoveToBreakeven() error {
	trade, _ := e.currentTrade()
	if trade == nil {
		return ErrNoOpportunity
	}
	trade.MoveToBreakeven()
	e.publishLifecycle(trade.Snapshot())
	return nil
}

// EnableTrailingStop starts trailing the active trade's stop.
func (e *Engine) EnableTrailingStop() error {
	trade, _ := e.currentTrade()
	if trade == nil {
		return ErrNoOpportunity
	}
	trade.EnableTrailingStop()
	e.publishLifecycle(trade.Snapshot())
	return nil
}

// CloseTrade closes the active trade at the last known price.
func (e *Engine) CloseTrade(reason string) error {
	trade, journalID := e.currentTrade()
	if trade == nil {
		return ErrNoOpportunity
	}

	wasClosed := trade.Status() == lifecycle.StatusClosed
	trade.Close(reason)
	snap := trade.Snapshot()

	e.publishLifecycle(snap)
	if !wasClosed && snap.Status == lifecycle.StatusClosed {
		e.onTradeClosed(snap, journalID)
	}
	return nil
}

// AddTradeNote appends a note to the trade log and the journal entry.
func (e *Engine) AddTradeNote(text string) error {
	trade, journalID := e.currentTrade()
	if trade == nil {
		return ErrNoOpportunity
	}

	before := len(trade.Snapshot().Log)
	trade.AddNote(text)
	if len(trade.Snapshot().Log) == before {
		return nil // Whitespace no-op
	}

	if e.journal != nil && journalID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := journal.WriteWithRetry(ctx, e.retryConfig, func(ctx context.Context) error {
				return e.journal.AppendNotes(ctx, journalID, text)
			})
			if err != nil {
				e.log.Error().Err(err).Str("journal_id", journalID).Msg("Journal note write failed")
			}
		}()
	}
	return nil
}

// TradeSnapshot returns the active trade's state, or nil without one.
func (e *Engine) TradeSnapshot() *lifecycle.Snapshot {
	trade, _ := e.currentTrade()
	if trade == nil {
		return nil
	}
	snap := trade.Snapshot()
	return &snap
}

func (e *Engine) currentTrade() (*lifecycle.Trade, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trade, e.journalID
}

// onTradeClosed journals the close and announces it. The journal write is
// retried in the background; a failure is logged, never propagated back into
// lifecycle state.
func (e *Engine) onTradeClosed(snap lifecycle.Snapshot, journalID string) {
	e.bus.PublishTradeClosed(snap.Symbol, snap.EntryPrice, snap.CurrentPrice, snap.PositionSize, snap.CurrentPnL, snap.PnLPercent)

	if e.journal == nil || journalID == "" {
		return
	}
	exitPrice := snap.CurrentPrice
	pnl := snap.CurrentPnL
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := journal.WriteWithRetry(ctx, e.retryConfig, func(ctx context.Context) error {
			return e.journal.RecordClose(ctx, journalID, exitPrice, pnl, time.Now())
		})
		if err != nil {
			e.log.Error().Err(err).Str("journal_id", journalID).Msg("Journal close write failed")
		}
	}()
}

func (e *Engine) publishSizing() {
	e.bus.Publish(events.Event{
		Type: events.EventSizingUpdate,
		Data: map[string]interface{}{"sizing": e.sizing.Data()},
	})
}

func (e *Engine) publishLifecycle(snap lifecycle.Snapshot) {
	e.bus.Publish(events.Event{
		Type: events.EventLifecycleUpdate,
		Data: map[string]interface{}{"trade": snap},
	})
}
