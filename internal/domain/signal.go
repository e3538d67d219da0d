package domain

import "time"

// Signal is one parsed new-entry trading intent extracted from a raw message.
// It is immutable once created and consumed exactly once to open a Trade.
type Signal struct {
	Symbol      string    // Normalized symbol with quote asset (e.g., "BTC/USDT")
	Side        Side      // Direction; the source only issues buying setups (long)
	EntryType   EntryType // Market (enter immediately) or limit at EntryPrice
	EntryPrice  float64   // Limit entry price (0 when EntryType is market)
	EntryHint   string    // Qualitative hint attached to the entry (e.g., "A bit above")
	StopLoss    float64   // Mandatory stop-loss price
	TakeProfit1 float64   // First take-profit level (mandatory)
	TakeProfit2 float64   // Optional second take-profit level (0 if absent)
	RiskReward  float64   // Stated or derived risk/reward multiple (0 if absent)
	MessageID   int64     // Archive identifier of the source message
	Timestamp   time.Time // Timestamp of the source message
	Fingerprint string    // Stable hash of the raw message text
	RawText     string    // Original message text
}

// IsValid reports whether the signal carries the minimum viable information:
// a symbol, a stop-loss and at least one take-profit level. Entry is optional
// and defaults to market.
func (s *Signal) IsValid() bool {
	return s.Symbol != "" && s.StopLoss > 0 && s.TakeProfit1 > 0
}
