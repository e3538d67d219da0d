package domain

// Side represents the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntryOrder is the order side that opens a position in this direction.
func (s Side) EntryOrder() OrderSide {
	if s == Long {
		return Buy
	}
	return Sell
}

// ExitOrder is the order side that reduces a position in this direction.
func (s Side) ExitOrder() OrderSide {
	if s == Long {
		return Sell
	}
	return Buy
}

// EntryType describes how a signal wants to be entered.
type EntryType string

const (
	EntryMarket EntryType = "market"
	EntryLimit  EntryType = "limit"
)

// TradeStatus represents the status of a trade record.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// Stage is the lifecycle stage of a trade, derived from its status and the
// number of partial exits already taken.
type Stage string

const (
	StageOpenFull     Stage = "OPEN_FULL"
	StageOpenPartial1 Stage = "OPEN_PARTIAL_1"
	StageOpenPartial2 Stage = "OPEN_PARTIAL_2"
	StageClosed       Stage = "CLOSED"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonStopLoss      CloseReason = "stop loss"
	CloseReasonBreakevenStop CloseReason = "breakeven stop"
	CloseReasonTakeProfit    CloseReason = "take profit"
	CloseReasonInstruction   CloseReason = "instruction"
	CloseReasonPartialsDone  CloseReason = "closed via partial exits"
	CloseReasonUnknown       CloseReason = "unknown"
)
