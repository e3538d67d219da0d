package domain

import "time"

// Trade is the authoritative record of one open or closed exposure.
// It is created on successful signal execution, mutated by the lifecycle
// engine on partial exits, stop migrations and closure, and never deleted.
type Trade struct {
	ID               int64       // Unique identifier (from DB)
	Symbol           string      // Trading symbol (e.g., "BTC/USDT")
	Side             Side        // Direction of the exposure
	EntryPrice       float64     // Price at which the trade was entered
	EntryTime        time.Time   // Timestamp when the trade was entered
	OriginalQuantity float64     // Quantity at entry
	RemainingQty     float64     // Quantity still open; never grows, never negative
	StopLoss         float64     // Current stop-loss price
	TakeProfit1      float64     // First take-profit level
	TakeProfit2      float64     // Second take-profit level (0 if absent)
	Leverage         float64     // Leverage used
	PartialExitsDone int         // Count of partial exits applied; only increases
	PartialPNL       float64     // Cumulative realized P&L; includes the final slice once closed
	Status           TradeStatus // open or closed; transitions only open->closed
	ExitPrice        float64     // Price of the final close (0 if open)
	ExitTime         time.Time   // Timestamp of the final close (zero value if open)
	CloseReason      CloseReason // Why the trade was closed
	Notes            string      // Free-text audit notes, appended to over the lifetime
	Fingerprint      string      // Fingerprint of the signal that opened the trade
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// Stage derives the lifecycle stage from status and partial-exit count.
func (t *Trade) Stage() Stage {
	if t.Status == StatusClosed {
		return StageClosed
	}
	switch {
	case t.PartialExitsDone >= 2:
		return StageOpenPartial2
	case t.PartialExitsDone == 1:
		return StageOpenPartial1
	default:
		return StageOpenFull
	}
}

// IsRiskFree reports whether the stop-loss sits at or beyond breakeven, so
// the remaining quantity can no longer produce a net loss.
func (t *Trade) IsRiskFree() bool {
	if t.Side == Long {
		return t.StopLoss >= t.EntryPrice
	}
	return t.StopLoss <= t.EntryPrice
}

// UnrealizedPNL computes the P&L of the remaining quantity at the given price.
func (t *Trade) UnrealizedPNL(price float64) float64 {
	if t.Side == Long {
		return (price - t.EntryPrice) * t.RemainingQty
	}
	return (t.EntryPrice - price) * t.RemainingQty
}

// OpenRisk is the fiat amount still at risk if the stop is hit. Risk-free
// trades contribute zero.
func (t *Trade) OpenRisk() float64 {
	if !t.IsOpen() || t.IsRiskFree() {
		return 0
	}
	if t.Side == Long {
		return (t.EntryPrice - t.StopLoss) * t.RemainingQty
	}
	return (t.StopLoss - t.EntryPrice) * t.RemainingQty
}
