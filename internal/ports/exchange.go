package ports

import (
	"context"
	"time"

	"copytrader/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	ClientOrderID string    // Caller-supplied order ID (for audit correlation)
	Symbol        string    // Symbol for the order
	Price         float64   // Price of the order (0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED)
	Type          string    // Order type (MARKET, LIMIT)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ExchangeClient defines the interface for interacting with the exchange
// trading API collaborator. All calls are synchronous and may return a
// transport error; the reconciler treats any error as a failed attempt.
type ExchangeClient interface {
	// GetTickerPrice retrieves the last ticker price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetAvailableMargin retrieves the free balance for a quote asset (e.g., "USDT").
	GetAvailableMargin(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a specific symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, clientOrderID string) (*OrderResponse, error)

	// PlaceLimitOrder places a limit order at the given price.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price float64, clientOrderID string) (*OrderResponse, error)

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error
}
