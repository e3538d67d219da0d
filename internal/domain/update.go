package domain

import "time"

// UpdateType classifies a parsed directive against an already-open trade.
type UpdateType string

const (
	// UpdateBreakeven moves the stop-loss to breakeven without exiting.
	UpdateBreakeven UpdateType = "move_to_breakeven"
	// UpdatePartialExit books a percentage of the remaining quantity.
	UpdatePartialExit UpdateType = "partial_exit"
	// UpdateFullClose closes the whole remaining position.
	UpdateFullClose UpdateType = "full_close"
)

// UpdateInstruction is a parsed directive extracted from a later message that
// mutates one or more already-open trades. An empty Symbol means the
// instruction applies to every open trade.
type UpdateInstruction struct {
	Type         UpdateType
	Symbol       string    // Target symbol ("" = all open trades)
	Percent      float64   // Partial-exit percentage of remaining quantity (0-100)
	RValue       float64   // R-multiple mentioned in the message (0 if absent)
	MoveStopToBE bool      // Whether the stop should migrate to breakeven as part of this action
	MessageID    int64     // Archive identifier of the source message
	Timestamp    time.Time // Timestamp of the source message
	Fingerprint  string    // Stable hash of the raw message text
	RawText      string    // Original message text
}

// AppliesToAll reports whether the instruction targets every open trade.
func (u *UpdateInstruction) AppliesToAll() bool {
	return u.Symbol == ""
}
