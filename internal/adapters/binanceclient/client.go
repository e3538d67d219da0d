package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance rejects quantities and prices with excess precision; the
	// exact step size varies per symbol but these are safe upper bounds.
	quantityPrecision = 3
	pricePrecision    = 7
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance futures client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected / ReduceOnly order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2014, -2015: // API-key invalid or lacks permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2019, -3005, -3041: // Insufficient margin/balance/position
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -4015: // Qty/price/leverage not within permissible range
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(exchangeSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetAvailableMargin retrieves the free balance for a quote asset (e.g., "USDT").
func (c *Client) GetAvailableMargin(ctx context.Context, asset string) (float64, error) {
	op := "GetAvailableMargin"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.AvailableBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.AvailableBalance, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	err = fmt.Errorf("asset %s not found in account balance", asset)
	return 0, c.handleError(ctx, err, op)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(exchangeSymbol(symbol)).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarketOrder places a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, clientOrderID string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	qty := formatQuantity(quantity)

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(exchangeSymbol(symbol)).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": qty, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// PlaceLimitOrder places a limit order at the given price (GTC).
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price float64, clientOrderID string) (*ports.OrderResponse, error) {
	op := "PlaceLimitOrder"
	qty := formatQuantity(quantity)
	px := formatPrice(price)

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(exchangeSymbol(symbol)).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty).
		Price(px)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": qty, "price": px, "orderID": resp.OrderID})
	return resp, nil
}

// --- Translation Helpers ---

// exchangeSymbol converts the canonical "BASE/QUOTE" symbol into the
// exchange's concatenated form ("BTC/USDT" -> "BTCUSDT").
func exchangeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// formatQuantity renders a float quantity without binary float artifacts
// (e.g. 0.30000000000000004 becomes "0.3").
func formatQuantity(q float64) string {
	return decimal.NewFromFloat(q).Round(quantityPrecision).String()
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(pricePrecision).String()
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}
