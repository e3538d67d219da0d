package domain

import "time"

// PartialExit is an immutable audit record of one partial-exit event.
type PartialExit struct {
	ID          int64     // Unique identifier (from DB)
	TradeID     int64     // Trade this exit belongs to
	ExitPrice   float64   // Price the slice was exited at
	Quantity    float64   // Quantity exited
	PNL         float64   // Realized P&L for this slice only
	TPLevel     int       // Take-profit tier that triggered it (0 for explicit instructions)
	NewStopLoss float64   // Stop-loss set alongside this exit (0 if unchanged)
	Notes       string    // Free-text notes, including exchange failure annotations
	CreatedAt   time.Time // When the exit was recorded
}
