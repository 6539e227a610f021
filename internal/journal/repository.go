package journal

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/market"
)

// Entry is one journal record for an executed trade
type Entry struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Direction    market.Direction `json:"direction"`
	EntryPrice   float64          `json:"entry_price"`
	ExitPrice    *float64         `json:"exit_price,omitempty"`
	StopLoss     float64          `json:"stop_loss"`
	Targets      []float64        `json:"targets"`
	PositionSize float64          `json:"position_size"`
	EntryTime    time.Time        `json:"entry_time"`
	ExitTime     *time.Time       `json:"exit_time,omitempty"`
	Timeframe    string           `json:"timeframe"`
	Notes        string           `json:"notes"`
	PnL          *float64         `json:"pnl,omitempty"`
}

// Repository persists journal entries. Writes go through the bounded retry in
// WriteWithRetry; a failed write never mutates engine state, it only surfaces
// an error to the caller.
type Repository struct {
	db *DB
}

// NewRepository creates a journal repository over an open database.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new journal entry.
func (r *Repository) Create(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO journal_entries
			(id, symbol, direction, entry_price, stop_loss, targets, position_size, entry_time, timeframe, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.Symbol, string(entry.Direction), entry.EntryPrice,
		entry.StopLoss, entry.Targets, entry.PositionSize, entry.EntryTime,
		entry.Timeframe, entry.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create journal entry: %w", err)
	}
	return nil
}

// RecordClose updates an entry with its exit price, exit time and PnL.
func (r *Repository) RecordClose(ctx context.Context, id string, exitPrice, pnl float64, exitTime time.Time) error {
	query := `
		UPDATE journal_entries
		SET exit_price = $2, exit_time = $3, pnl = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, exitPrice, exitTime, pnl)
	if err != nil {
		return fmt.Errorf("failed to record close: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("journal entry %s not found", id)
	}
	return nil
}

// AppendNotes appends text to an entry's notes.
func (r *Repository) AppendNotes(ctx context.Context, id, text string) error {
	query := `
		UPDATE journal_entries
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id, text)
	if err != nil {
		return fmt.Errorf("failed to append notes: %w", err)
	}
	return nil
}

// List returns the most recent entries for a symbol, newest first.
func (r *Repository) List(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	query := `
		SELECT id, symbol, direction, entry_price, exit_price, stop_loss, targets,
		       position_size, entry_time, exit_time, timeframe, notes, pnl
		FROM journal_entries
		WHERE symbol = $1
		ORDER BY entry_time DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var direction string
		if err := rows.Scan(&e.ID, &e.Symbol, &direction, &e.EntryPrice, &e.ExitPrice,
			&e.StopLoss, &e.Targets, &e.PositionSize, &e.EntryTime, &e.ExitTime,
			&e.Timeframe, &e.Notes, &e.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Direction = market.Direction(direction)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry by id.
func (r *Repository) Get(ctx context.Context, id string) (*Entry, error) {
	query := `
		SELECT id, symbol, direction, entry_price, exit_price, stop_loss, targets,
		       position_size, entry_time, exit_time, timeframe, notes, pnl
		FROM journal_entries
		WHERE id = $1`

	var e Entry
	var direction string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.Symbol, &direction,
		&e.EntryPrice, &e.ExitPrice, &e.StopLoss, &e.Targets, &e.PositionSize,
		&e.EntryTime, &e.ExitTime, &e.Timeframe, &e.Notes, &e.PnL)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	e.Direction = market.Direction(direction)
	return &e, nil
}
