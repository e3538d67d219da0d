package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

// Result is the uniform outcome of one exchange-side execution attempt.
// The reconciler never retries beyond a single attempt per strategy; retry
// policy is an external concern.
type Result struct {
	Executed      bool
	AvgPrice      float64 // Filled price when available (0 otherwise)
	ClientOrderID string
	Strategy      string // Which strategy in the chain succeeded
	FailureNote   string // Distinct audit marker when the remote call failed
}

// OrderRequest describes the exchange order implied by a transition.
type OrderRequest struct {
	Symbol   string
	Side     domain.OrderSide
	Quantity float64
	Price    float64 // Limit price; 0 for market
}

// Strategy is one way of getting an order onto the exchange. Strategies are
// tried in sequence; the first success wins.
type Strategy interface {
	Name() string
	Place(ctx context.Context, exchange ports.ExchangeClient, req OrderRequest, clientOrderID string) (*ports.OrderResponse, error)
}

type limitStrategy struct{}

func (limitStrategy) Name() string { return "limit" }

func (limitStrategy) Place(ctx context.Context, exchange ports.ExchangeClient, req OrderRequest, clientOrderID string) (*ports.OrderResponse, error) {
	return exchange.PlaceLimitOrder(ctx, req.Symbol, req.Side, req.Quantity, req.Price, clientOrderID)
}

type marketStrategy struct{}

func (marketStrategy) Name() string { return "market" }

func (marketStrategy) Place(ctx context.Context, exchange ports.ExchangeClient, req OrderRequest, clientOrderID string) (*ports.OrderResponse, error) {
	return exchange.PlaceMarketOrder(ctx, req.Symbol, req.Side, req.Quantity, clientOrderID)
}

// Reconciler wraps the exchange client and executes the order implied by a
// lifecycle transition. A remote failure must never silently desynchronize
// the ledger: reductions report the failure in the result so the ledger
// write still proceeds with an audit annotation.
type Reconciler struct {
	exchange ports.ExchangeClient
	logger   ports.Logger
}

// New creates a reconciler over the given exchange client.
func New(exchange ports.ExchangeClient, logger ports.Logger) (*Reconciler, error) {
	if exchange == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler")
	}
	return &Reconciler{exchange: exchange, logger: logger}, nil
}

// ExecuteEntry opens exposure for a new trade. Limit entries try the resting
// order first and fall back to a market order; a failure of the whole chain
// aborts the open (there is nothing to keep the ledger consistent with).
func (r *Reconciler) ExecuteEntry(ctx context.Context, symbol string, side domain.Side, quantity float64, entryType domain.EntryType, limitPrice float64, leverage int) (*Result, error) {
	if err := r.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		// Leverage mismatch is survivable; the order itself decides the trade.
		r.logger.Warn(ctx, "Failed to set leverage, continuing with account default", map[string]interface{}{
			"symbol": symbol, "leverage": leverage, "error": err.Error(),
		})
	}

	req := OrderRequest{Symbol: symbol, Side: side.EntryOrder(), Quantity: quantity, Price: limitPrice}

	var chain []Strategy
	if entryType == domain.EntryLimit && limitPrice > 0 {
		chain = append(chain, limitStrategy{})
	}
	chain = append(chain, marketStrategy{})

	var lastErr error
	for _, strat := range chain {
		clientOrderID := newClientOrderID()
		resp, err := strat.Place(ctx, r.exchange, req, clientOrderID)
		if err != nil {
			lastErr = err
			r.logger.Warn(ctx, "Entry strategy failed, trying next", map[string]interface{}{
				"symbol": symbol, "strategy": strat.Name(), "error": err.Error(),
			})
			continue
		}
		r.logger.Info(ctx, "Entry order placed", map[string]interface{}{
			"symbol": symbol, "strategy": strat.Name(), "orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
		})
		return &Result{
			Executed:      true,
			AvgPrice:      resp.AvgPrice,
			ClientOrderID: clientOrderID,
			Strategy:      strat.Name(),
		}, nil
	}
	return nil, fmt.Errorf("all entry strategies failed for %s: %w", symbol, lastErr)
}

// ExecuteReduce closes part or all of an existing exposure with a market
// order. The result always comes back non-nil: when the remote call fails
// the caller proceeds with the ledger write and records FailureNote so a
// downstream reconciliation job can detect the drift.
func (r *Reconciler) ExecuteReduce(ctx context.Context, trade *domain.Trade, quantity float64) *Result {
	clientOrderID := newClientOrderID()
	resp, err := r.exchange.PlaceMarketOrder(ctx, trade.Symbol, trade.Side.ExitOrder(), quantity, clientOrderID)
	if err != nil {
		r.logger.Error(ctx, err, "Exchange reduce order failed, ledger write proceeds", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "quantity": quantity,
		})
		return &Result{
			Executed:      false,
			ClientOrderID: clientOrderID,
			FailureNote:   fmt.Sprintf("EXCHANGE ERROR: %s", truncate(err.Error(), 100)),
		}
	}
	r.logger.Info(ctx, "Reduce order executed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "quantity": quantity, "orderID": resp.OrderID,
	})
	return &Result{
		Executed:      true,
		AvgPrice:      resp.AvgPrice,
		ClientOrderID: clientOrderID,
		Strategy:      "market",
	}
}

func newClientOrderID() string {
	return "ct-" + uuid.NewString()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
