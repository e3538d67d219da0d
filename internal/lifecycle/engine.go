package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
	"copytrader/internal/reconciler"
)

// Config carries the tunable lifecycle parameters.
type Config struct {
	// Tier1ExitPercent is the fraction of the original quantity exited when
	// the first take-profit is touched.
	Tier1ExitPercent float64
	// Tier2ExitPercent is the fraction of the original quantity exited when
	// the second take-profit is touched.
	Tier2ExitPercent float64
	// BreakevenFeePad pads instruction-driven breakeven stops past entry so
	// a stop fill still covers fees. Price-driven take-profit migration
	// places the stop at entry exactly.
	BreakevenFeePad float64
	// RemainderEpsilon is the quantity below which a position counts as
	// fully closed.
	RemainderEpsilon float64
}

// Engine drives trades through their lifecycle: entry, partial exits, stop
// migration and closure. Every mutation goes through a per-trade lock so a
// price tick and an operator instruction cannot interleave on one trade.
type Engine struct {
	trades ports.TradeRepository
	recon  *reconciler.Reconciler
	cfg    Config
	logger ports.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates the lifecycle engine.
func NewEngine(trades ports.TradeRepository, recon *reconciler.Reconciler, cfg Config, logger ports.Logger) (*Engine, error) {
	if trades == nil || recon == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if cfg.Tier1ExitPercent <= 0 || cfg.Tier1ExitPercent > 1 {
		return nil, fmt.Errorf("tier1 exit percent must be in (0, 1], got %f", cfg.Tier1ExitPercent)
	}
	if cfg.Tier2ExitPercent <= 0 || cfg.Tier2ExitPercent > 1 {
		return nil, fmt.Errorf("tier2 exit percent must be in (0, 1], got %f", cfg.Tier2ExitPercent)
	}
	if cfg.RemainderEpsilon <= 0 {
		cfg.RemainderEpsilon = 1e-4
	}
	return &Engine{
		trades: trades,
		recon:  recon,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[int64]*sync.Mutex),
	}, nil
}

func (e *Engine) lockFor(tradeID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[tradeID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[tradeID] = l
	}
	return l
}

// OpenFromSignal places the entry order and records the resulting trade.
// An exchange failure here aborts the open: with no exposure there is
// nothing for the ledger to track.
func (e *Engine) OpenFromSignal(ctx context.Context, sig *domain.Signal, quantity float64, leverage int, currentPrice float64) (*domain.Trade, error) {
	execPrice := currentPrice
	if sig.EntryType == domain.EntryLimit && sig.EntryPrice > 0 {
		execPrice = sig.EntryPrice
	}

	res, err := e.recon.ExecuteEntry(ctx, sig.Symbol, sig.Side, quantity, sig.EntryType, sig.EntryPrice, leverage)
	if err != nil {
		return nil, fmt.Errorf("entry execution failed: %w", err)
	}
	if res.AvgPrice > 0 {
		execPrice = res.AvgPrice
	}

	trade := &domain.Trade{
		Symbol:           sig.Symbol,
		Side:             sig.Side,
		EntryPrice:       execPrice,
		EntryTime:        time.Now(),
		OriginalQuantity: quantity,
		RemainingQty:     quantity,
		StopLoss:         sig.StopLoss,
		TakeProfit1:      sig.TakeProfit1,
		TakeProfit2:      sig.TakeProfit2,
		Leverage:         float64(leverage),
		Status:           domain.StatusOpen,
		Notes:            fmt.Sprintf("entry via %s order", res.Strategy),
		Fingerprint:      sig.Fingerprint,
	}
	id, err := e.trades.CreateTrade(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}
	trade.ID = id

	e.logger.Info(ctx, "Trade opened", map[string]interface{}{
		"tradeID": id, "symbol": sig.Symbol, "quantity": quantity,
		"entryPrice": execPrice, "stopLoss": sig.StopLoss,
		"tp1": sig.TakeProfit1, "tp2": sig.TakeProfit2,
	})
	return trade, nil
}

// ApplyUpdate mutates one open trade according to an operator instruction.
// currentPrice is the mark used to value any exited slice.
func (e *Engine) ApplyUpdate(ctx context.Context, trade *domain.Trade, instr *domain.UpdateInstruction, currentPrice float64) error {
	lock := e.lockFor(trade.ID)
	lock.Lock()
	defer lock.Unlock()

	if !trade.IsOpen() {
		return ports.ErrTradeClosed
	}

	switch instr.Type {
	case domain.UpdateBreakeven:
		return e.moveStopToBreakeven(ctx, trade, e.cfg.BreakevenFeePad)

	case domain.UpdatePartialExit:
		pct := instr.Percent
		if pct <= 0 {
			return fmt.Errorf("%w: partial exit with non-positive percent", ports.ErrInvalidRequest)
		}
		if pct >= 100 {
			return e.closeTrade(ctx, trade, currentPrice, domain.CloseReasonInstruction, instr.RawText)
		}
		// Explicit instructions size against what is still open, not the
		// original quantity.
		qty := trade.RemainingQty * pct / 100
		var newStop float64
		if instr.MoveStopToBE {
			newStop = e.breakevenTarget(trade, e.cfg.BreakevenFeePad)
		}
		return e.partialExit(ctx, trade, qty, currentPrice, 0, newStop, fmt.Sprintf("instruction: book %.0f%%", pct))

	case domain.UpdateFullClose:
		return e.closeTrade(ctx, trade, currentPrice, domain.CloseReasonInstruction, instr.RawText)

	default:
		return fmt.Errorf("%w: unknown update type %q", ports.ErrInvalidRequest, instr.Type)
	}
}

// CheckPrice evaluates one price tick against an open trade. Stop-loss is
// checked before take-profits: when a tick satisfies both, the protective
// exit wins.
func (e *Engine) CheckPrice(ctx context.Context, trade *domain.Trade, price float64) error {
	lock := e.lockFor(trade.ID)
	lock.Lock()
	defer lock.Unlock()

	if !trade.IsOpen() {
		return nil
	}

	if trade.StopLoss > 0 && e.stopHit(trade, price) {
		reason := domain.CloseReasonStopLoss
		if trade.IsRiskFree() {
			reason = domain.CloseReasonBreakevenStop
		}
		return e.closeTrade(ctx, trade, price, reason, "")
	}

	if trade.TakeProfit2 > 0 && trade.PartialExitsDone == 1 && e.targetHit(trade, trade.TakeProfit2, price) {
		qty := trade.OriginalQuantity * e.cfg.Tier2ExitPercent
		return e.partialExit(ctx, trade, qty, price, 2, trade.TakeProfit1, "tp2 touched")
	}

	if trade.PartialExitsDone == 0 && trade.TakeProfit1 > 0 && e.targetHit(trade, trade.TakeProfit1, price) {
		qty := trade.OriginalQuantity * e.cfg.Tier1ExitPercent
		// The price-driven stop migration goes to entry exactly; the fee pad
		// applies only to operator-instructed breakeven moves.
		return e.partialExit(ctx, trade, qty, price, 1, e.breakevenTarget(trade, 0), "tp1 touched")
	}

	return nil
}

func (e *Engine) stopHit(trade *domain.Trade, price float64) bool {
	if trade.Side == domain.Long {
		return price <= trade.StopLoss
	}
	return price >= trade.StopLoss
}

func (e *Engine) targetHit(trade *domain.Trade, target, price float64) bool {
	if trade.Side == domain.Long {
		return price >= target
	}
	return price <= target
}

// partialExit exits qty at price, records the audit row and persists the
// trade. newStop is the stop migration accompanying the exit (0 = leave the
// stop alone); it is recorded on the audit row when it takes effect. The
// remaining quantity clamps at what is actually open; if the remainder falls
// under the epsilon the trade closes as fully exited.
func (e *Engine) partialExit(ctx context.Context, trade *domain.Trade, qty, price float64, tpLevel int, newStop float64, note string) error {
	if qty > trade.RemainingQty {
		qty = trade.RemainingQty
	}
	if qty <= 0 {
		return nil
	}

	res := e.recon.ExecuteReduce(ctx, trade, qty)
	if res.FailureNote != "" {
		note = note + "; " + res.FailureNote
	}

	pnl := slicePNL(trade, price, qty)
	pe := &domain.PartialExit{
		TradeID:   trade.ID,
		ExitPrice: price,
		Quantity:  qty,
		PNL:       pnl,
		TPLevel:   tpLevel,
		Notes:     note,
		CreatedAt: time.Now(),
	}

	trade.RemainingQty -= qty
	trade.PartialPNL += pnl
	trade.PartialExitsDone++
	appendNote(trade, note)

	if trade.RemainingQty <= e.cfg.RemainderEpsilon {
		trade.RemainingQty = 0
		trade.Status = domain.StatusClosed
		trade.ExitPrice = price
		trade.ExitTime = time.Now()
		trade.CloseReason = domain.CloseReasonPartialsDone
	}

	if trade.IsOpen() && newStop > 0 && e.migrateStop(ctx, trade, newStop) {
		pe.NewStopLoss = newStop
	}

	if _, err := e.trades.CreatePartialExit(ctx, pe); err != nil {
		return fmt.Errorf("failed to record partial exit: %w", err)
	}
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to persist trade after partial exit: %w", err)
	}

	e.logger.Info(ctx, "Partial exit booked", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "quantity": qty,
		"price": price, "pnl": pnl, "remaining": trade.RemainingQty,
		"executed": res.Executed,
	})
	return nil
}

// breakevenTarget is the stop level at entry, optionally padded past it to
// cover fees.
func (e *Engine) breakevenTarget(trade *domain.Trade, feePad float64) float64 {
	if trade.Side == domain.Long {
		return trade.EntryPrice * (1 + feePad)
	}
	return trade.EntryPrice * (1 - feePad)
}

// moveStopToBreakeven migrates the stop to entry, optionally padded past it
// to cover fees. The stop never moves back toward risk: if it already sits
// at or beyond the target level this is a no-op.
func (e *Engine) moveStopToBreakeven(ctx context.Context, trade *domain.Trade, feePad float64) error {
	if !e.migrateStop(ctx, trade, e.breakevenTarget(trade, feePad)) {
		return nil
	}
	return e.trades.UpdateTrade(ctx, trade)
}

// migrateStop moves the stop only in the direction that reduces risk and
// reports whether anything changed.
func (e *Engine) migrateStop(ctx context.Context, trade *domain.Trade, newStop float64) bool {
	improved := false
	if trade.Side == domain.Long {
		improved = newStop > trade.StopLoss
	} else {
		improved = newStop < trade.StopLoss || trade.StopLoss == 0
	}
	if !improved {
		e.logger.Debug(ctx, "Stop migration skipped, current stop already tighter", map[string]interface{}{
			"tradeID": trade.ID, "current": trade.StopLoss, "proposed": newStop,
		})
		return false
	}
	old := trade.StopLoss
	trade.StopLoss = newStop
	e.logger.Info(ctx, "Stop-loss migrated", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "from": old, "to": newStop,
	})
	return true
}

// closeTrade exits the whole remaining quantity and finalizes the record.
func (e *Engine) closeTrade(ctx context.Context, trade *domain.Trade, price float64, reason domain.CloseReason, note string) error {
	if !trade.IsOpen() {
		return ports.ErrTradeClosed
	}

	qty := trade.RemainingQty
	var failure string
	if qty > 0 {
		res := e.recon.ExecuteReduce(ctx, trade, qty)
		failure = res.FailureNote
	}

	pnl := slicePNL(trade, price, qty)
	trade.RemainingQty = 0
	trade.PartialPNL += pnl
	trade.Status = domain.StatusClosed
	trade.ExitPrice = price
	trade.ExitTime = time.Now()
	trade.CloseReason = reason
	if note != "" {
		appendNote(trade, note)
	}
	if failure != "" {
		appendNote(trade, failure)
	}

	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to persist trade close: %w", err)
	}

	e.logger.Info(ctx, "Trade closed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "reason": string(reason),
		"exitPrice": price, "totalPNL": trade.PartialPNL,
	})
	return nil
}

func slicePNL(trade *domain.Trade, price, qty float64) float64 {
	if trade.Side == domain.Long {
		return (price - trade.EntryPrice) * qty
	}
	return (trade.EntryPrice - price) * qty
}

func appendNote(trade *domain.Trade, note string) {
	if note == "" {
		return
	}
	if trade.Notes == "" {
		trade.Notes = note
		return
	}
	trade.Notes = trade.Notes + "; " + note
}
