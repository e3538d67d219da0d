package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/config"
	"copytrader/internal/adapters/enrichment"
	"copytrader/internal/dedup"
	"copytrader/internal/domain"
	"copytrader/internal/interpreter"
	"copytrader/internal/lifecycle"
	"copytrader/internal/parser"
	"copytrader/internal/ports"
	"copytrader/internal/reconciler"
	"copytrader/internal/sizing"
)

// --- Mocks ---

type noopLogger struct{}

func (noopLogger) Debug(_ context.Context, _ string, _ ...map[string]interface{}) {}
func (noopLogger) Info(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Warn(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Error(_ context.Context, _ error, _ string, _ ...map[string]interface{}) {
}

// mockStore backs the message archive, the trade ledger and the dedup
// markers in memory.
type mockStore struct {
	mu       sync.Mutex
	messages []*domain.Message
	nextID   int64
	trades   map[int64]*domain.Trade
	partials []*domain.PartialExit
	markers  map[string]time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		trades:  make(map[int64]*domain.Trade),
		markers: make(map[string]time.Time),
	}
}

func (m *mockStore) StoreMessage(_ context.Context, msg *domain.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, msg)
	return msg.ID, nil
}

func (m *mockStore) UnprocessedSince(_ context.Context, cutoff time.Time) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Message
	for _, msg := range m.messages {
		if msg.Timestamp.After(cutoff) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) CreateTrade(_ context.Context, trade *domain.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *trade
	cp.ID = m.nextID
	m.trades[cp.ID] = &cp
	return cp.ID, nil
}

func (m *mockStore) UpdateTrade(_ context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *mockStore) FindTradeByID(_ context.Context, id int64) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) FindOpenTrades(_ context.Context) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.Status == domain.StatusOpen {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) FindOpenBySymbol(_ context.Context, symbol string) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.Status == domain.StatusOpen && t.Symbol == symbol {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) FindClosedTrades(_ context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.Status == domain.StatusClosed && len(out) < limit {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CountOpenedSince(_ context.Context, symbol string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.trades {
		if t.Symbol == symbol && t.EntryTime.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) CreatePartialExit(_ context.Context, pe *domain.PartialExit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pe
	cp.ID = int64(len(m.partials) + 1)
	m.partials = append(m.partials, &cp)
	return cp.ID, nil
}

func (m *mockStore) FindPartialExits(_ context.Context, tradeID int64) ([]*domain.PartialExit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PartialExit
	for _, pe := range m.partials {
		if pe.TradeID == tradeID {
			cp := *pe
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) GetTotalProfit(_ context.Context) (float64, error) { return 0, nil }

func (m *mockStore) IsProcessed(_ context.Context, kind ports.MarkerKind, fingerprint, symbol string, ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[string(kind)+"|"+fingerprint+"|"+symbol]; ok {
		return true, nil
	}
	for key, v := range m.markers {
		if symbol != "" && key == string(kind)+"|ts|"+symbol && v.Equal(ts) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) MarkProcessed(_ context.Context, kind ports.MarkerKind, fingerprint, symbol, _ string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(kind) + "|" + fingerprint + "|" + symbol
	if _, ok := m.markers[key]; ok {
		return ports.ErrDuplicateEntry
	}
	m.markers[key] = ts
	m.markers[string(kind)+"|ts|"+symbol] = ts
	return nil
}

type mockExchange struct {
	mu           sync.Mutex
	price        float64
	marketOrders int
	limitOrders  int
}

func (m *mockExchange) GetTickerPrice(_ context.Context, _ string) (float64, error) {
	return m.price, nil
}
func (m *mockExchange) GetAvailableMargin(_ context.Context, _ string) (float64, error) {
	return 1_000_000, nil
}
func (m *mockExchange) SetLeverage(_ context.Context, _ string, _ int) error { return nil }
func (m *mockExchange) PlaceMarketOrder(_ context.Context, symbol string, _ domain.OrderSide, _ float64, clientOrderID string) (*ports.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketOrders++
	return &ports.OrderResponse{OrderID: int64(m.marketOrders), ClientOrderID: clientOrderID, Symbol: symbol, Status: "FILLED"}, nil
}
func (m *mockExchange) PlaceLimitOrder(_ context.Context, symbol string, _ domain.OrderSide, _, price float64, clientOrderID string) (*ports.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limitOrders++
	return &ports.OrderResponse{OrderID: int64(m.limitOrders), ClientOrderID: clientOrderID, Symbol: symbol, Price: price, Status: "NEW"}, nil
}
func (m *mockExchange) Ping(_ context.Context) error { return nil }

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		QuoteAsset:          "USDT",
		MaxLossPerTrade:     25,
		Leverage:            10,
		MarginUsageFraction: 0.9,
		EntryCooldown:       5 * time.Minute,
		Tier1ExitPercent:    0.4,
		Tier2ExitPercent:    0.3,
		BreakevenFeePad:     0.001,
		RemainderEpsilon:    1e-4,
		MessagePollInterval: time.Minute,
		PricePollInterval:   5 * time.Second,
		SignalLookback:      24 * time.Hour,
		UpdateLookback:      6 * time.Hour,
	}
}

func newTestService(t *testing.T, store *mockStore, exchange *mockExchange) *Service {
	t.Helper()
	cfg := testConfig()
	log := noopLogger{}

	policies, err := interpreter.NewPolicyStore("", log)
	require.NoError(t, err)
	sizer, err := sizing.New(sizing.Config{
		MaxLossPerTrade:     cfg.MaxLossPerTrade,
		Leverage:            cfg.Leverage,
		MarginUsageFraction: cfg.MarginUsageFraction,
	}, log)
	require.NoError(t, err)
	recon, err := reconciler.New(exchange, log)
	require.NoError(t, err)
	engine, err := lifecycle.NewEngine(store, recon, lifecycle.Config{
		Tier1ExitPercent: cfg.Tier1ExitPercent,
		Tier2ExitPercent: cfg.Tier2ExitPercent,
		BreakevenFeePad:  cfg.BreakevenFeePad,
		RemainderEpsilon: cfg.RemainderEpsilon,
	}, log)
	require.NoError(t, err)

	svc, err := NewService(cfg, log, exchange, store, store,
		dedup.NewGate(store, log), parser.New(cfg.QuoteAsset),
		interpreter.New(policies), policies, sizer, engine,
		enrichment.NewNoop())
	require.NoError(t, err)
	return svc
}

// --- Tests ---

func TestProcessMessages_SignalOpensTrade(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	_, err := store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.processMessages(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	trade := open[0]
	assert.Equal(t, "BTC/USDT", trade.Symbol)
	assert.Equal(t, 113000.0, trade.EntryPrice)
	assert.Equal(t, 111468.0, trade.StopLoss)
	assert.Equal(t, 114786.0, trade.TakeProfit1)
	// Fixed risk: quantity * stop distance == configured loss.
	assert.InDelta(t, 25.0, trade.OriginalQuantity*(113000-111468), 1e-6)
	assert.Equal(t, 1, exchange.marketOrders)
}

func TestProcessMessages_RedeliveryIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	_, err := store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	// The archive keeps returning the message on every scan; only the first
	// pass may act on it.
	require.NoError(t, svc.processMessages(ctx))
	require.NoError(t, svc.processMessages(ctx))
	require.NoError(t, svc.processMessages(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, 1, exchange.marketOrders)
}

func TestProcessMessages_CooldownSkipsSecondSignal(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	_, err := store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468",
		Timestamp: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, svc.processMessages(ctx))

	// A second, different setup for the same symbol arrives within the
	// cooldown window.
	_, err = store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC Buying Setup\nEntry: CMP\nTP: 118000\nSL: 112000",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.processMessages(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, 1, exchange.marketOrders)
}

func TestCheckCooldown(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	require.NoError(t, svc.checkCooldown(ctx, "BTC/USDT"))

	_, err := store.CreateTrade(ctx, &domain.Trade{
		Symbol: "BTC/USDT", Side: domain.Long, EntryPrice: 113000,
		EntryTime: time.Now(), OriginalQuantity: 1, RemainingQty: 1,
		StopLoss: 111468, TakeProfit1: 114786, Status: domain.StatusOpen,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.checkCooldown(ctx, "BTC/USDT"), ports.ErrCooldown)
	require.NoError(t, svc.checkCooldown(ctx, "ETH/USDT"))
}

func TestProcessMessages_UpdateAppliesToOpenTrade(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	_, err := store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468",
		Timestamp: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, svc.processMessages(ctx))

	_, err = store.StoreMessage(ctx, &domain.Message{
		Text:      "$BTC update: book 50% and move SL to entry",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	exchange.price = 114000
	require.NoError(t, svc.processMessages(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	trade := open[0]
	assert.Equal(t, 1, trade.PartialExitsDone)
	assert.InDelta(t, trade.OriginalQuantity/2, trade.RemainingQty, 1e-9)
	// Instructed breakeven moves carry the fee pad.
	assert.InDelta(t, trade.EntryPrice*1.001, trade.StopLoss, 1e-6)
}

func TestProcessMessages_AllTradesRiskFree(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 113000}
	svc := newTestService(t, store, exchange)

	for _, text := range []string{
		"$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468",
		"$ETH Buying Setup\nEntry: CMP\nTP: 3100\nSL: 2600",
	} {
		_, err := store.StoreMessage(ctx, &domain.Message{Text: text, Timestamp: time.Now().Add(-time.Minute)})
		require.NoError(t, err)
	}
	require.NoError(t, svc.processMessages(ctx))

	_, err := store.StoreMessage(ctx, &domain.Message{
		Text:      "Both trades risk free. Letting the targets cook 🔥",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.processMessages(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, trade := range open {
		assert.True(t, trade.IsRiskFree(), "trade %s should be risk-free", trade.Symbol)
		// Stops moved, nothing exited.
		assert.Equal(t, trade.OriginalQuantity, trade.RemainingQty)
	}
}

func TestCheckOpenTrades_DrivesLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 100}
	svc := newTestService(t, store, exchange)

	trade := &domain.Trade{
		Symbol:           "BTC/USDT",
		Side:             domain.Long,
		EntryPrice:       100,
		EntryTime:        time.Now(),
		OriginalQuantity: 10,
		RemainingQty:     10,
		StopLoss:         90,
		TakeProfit1:      110,
		Leverage:         10,
		Status:           domain.StatusOpen,
	}
	_, err := store.CreateTrade(ctx, trade)
	require.NoError(t, err)

	exchange.price = 111
	require.NoError(t, svc.checkOpenTrades(ctx))

	open, err := store.FindOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 1, open[0].PartialExitsDone)
	assert.InDelta(t, 6.0, open[0].RemainingQty, 1e-9)
}

func TestHeat(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	exchange := &mockExchange{price: 100}
	svc := newTestService(t, store, exchange)

	_, err := store.CreateTrade(ctx, &domain.Trade{
		Symbol: "BTC/USDT", Side: domain.Long, EntryPrice: 100, EntryTime: time.Now(),
		OriginalQuantity: 10, RemainingQty: 10, StopLoss: 90, TakeProfit1: 110,
		Status: domain.StatusOpen,
	})
	require.NoError(t, err)
	_, err = store.CreateTrade(ctx, &domain.Trade{
		Symbol: "ETH/USDT", Side: domain.Long, EntryPrice: 100, EntryTime: time.Now(),
		OriginalQuantity: 5, RemainingQty: 5, StopLoss: 100, TakeProfit1: 120,
		Status: domain.StatusOpen,
	})
	require.NoError(t, err)

	heat, err := svc.Heat(ctx)
	require.NoError(t, err)
	// Only the first trade still carries risk; the second sits at breakeven.
	assert.InDelta(t, 100.0, heat, 1e-9)
}
