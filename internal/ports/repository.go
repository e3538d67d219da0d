package ports

import (
	"context"
	"time"

	"copytrader/internal/domain"
)

// MessageRepository is the read/write contract against the signal archive.
type MessageRepository interface {
	// StoreMessage appends a raw message to the archive and returns its ID.
	StoreMessage(ctx context.Context, msg *domain.Message) (int64, error)
	// UnprocessedSince retrieves archived messages newer than the cutoff,
	// most recent first. Deduplication against processed markers happens
	// downstream; this is a plain time-window read.
	UnprocessedSince(ctx context.Context, cutoff time.Time) ([]*domain.Message, error)
}

// TradeRepository is the read/write contract against the position ledger.
type TradeRepository interface {
	// CreateTrade saves a new trade and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// UpdateTrade modifies an existing trade.
	UpdateTrade(ctx context.Context, trade *domain.Trade) error
	// FindTradeByID retrieves a trade by its unique ID. Returns nil, nil if not found.
	FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindOpenTrades retrieves all open trades, oldest entry first.
	FindOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	// FindOpenBySymbol retrieves all open trades for a symbol.
	FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error)
	// FindClosedTrades retrieves closed trades, most recent exit first, up to a limit.
	FindClosedTrades(ctx context.Context, limit int) ([]*domain.Trade, error)
	// CountOpenedSince counts trades on a symbol entered after the cutoff.
	// Used for the per-symbol entry cooldown.
	CountOpenedSince(ctx context.Context, symbol string, cutoff time.Time) (int, error)
	// CreatePartialExit saves a partial-exit audit record and returns its ID.
	CreatePartialExit(ctx context.Context, pe *domain.PartialExit) (int64, error)
	// FindPartialExits retrieves the partial-exit audit trail for a trade.
	FindPartialExits(ctx context.Context, tradeID int64) ([]*domain.PartialExit, error)
	// GetTotalProfit calculates the sum of realized P&L for all closed trades.
	GetTotalProfit(ctx context.Context) (float64, error)
}

// MarkerKind separates signal markers from update markers so re-processing
// checks stay independent per pipeline.
type MarkerKind string

const (
	MarkerSignal MarkerKind = "signal"
	MarkerUpdate MarkerKind = "update"
)

// MarkerRepository is the deduplication store. MarkProcessed must be atomic
// with respect to IsProcessed for the same fingerprint: concurrent pollers
// attempting to mark the same message must see exactly one success.
type MarkerRepository interface {
	// IsProcessed reports whether a fingerprint, or the redundant
	// (symbol, timestamp) pair, has already been recorded.
	IsProcessed(ctx context.Context, kind MarkerKind, fingerprint, symbol string, ts time.Time) (bool, error)
	// MarkProcessed records a fingerprint. Returns ErrDuplicateEntry if the
	// fingerprint was already recorded by a concurrent writer.
	MarkProcessed(ctx context.Context, kind MarkerKind, fingerprint, symbol, action string, ts time.Time) error
}
