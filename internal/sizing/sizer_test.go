package sizing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(_ context.Context, _ string, _ ...map[string]interface{}) {}
func (noopLogger) Info(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Warn(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Error(_ context.Context, _ error, _ string, _ ...map[string]interface{}) {
}

func newTestSizer(t *testing.T) *Sizer {
	t.Helper()
	s, err := New(Config{
		MaxLossPerTrade:     25.0,
		Leverage:            10,
		MarginUsageFraction: 0.9,
	}, noopLogger{})
	require.NoError(t, err)
	return s
}

func TestSize_FixedRisk(t *testing.T) {
	s := newTestSizer(t)

	res, err := s.Size(context.Background(), 100, 90, 1_000_000, 1.0)
	require.NoError(t, err)

	// Quantity times stop distance must equal the configured risk.
	assert.InDelta(t, 2.5, res.Quantity, 1e-9)
	assert.InDelta(t, 25.0, res.Quantity*10, 1e-9)
	assert.Equal(t, 10, res.Leverage)
	assert.InDelta(t, 250.0, res.Notional, 1e-9)
	assert.InDelta(t, 25.0, res.MarginRequired, 1e-9)
	assert.InDelta(t, 25.0, res.RiskAmount, 1e-9)
	assert.False(t, res.ScaledDown)
}

func TestSize_TightStopIncreasesQuantity(t *testing.T) {
	s := newTestSizer(t)

	res, err := s.Size(context.Background(), 100, 99, 1_000_000, 1.0)
	require.NoError(t, err)

	assert.InDelta(t, 25.0, res.Quantity, 1e-9)
	assert.InDelta(t, 25.0, res.RiskAmount, 1e-9)
}

func TestSize_MarginScaleDown(t *testing.T) {
	s := newTestSizer(t)

	// Full size needs 250 margin; only 90 of the 100 available is usable.
	res, err := s.Size(context.Background(), 100, 99, 100, 1.0)
	require.NoError(t, err)

	assert.True(t, res.ScaledDown)
	assert.InDelta(t, 90.0, res.MarginRequired, 1e-9)
	assert.InDelta(t, 9.0, res.Quantity, 1e-9)
	// Risk shrinks with the position; it never exceeds the configured cap.
	assert.InDelta(t, 9.0, res.RiskAmount, 1e-9)
	assert.Less(t, res.RiskAmount, 25.0)
}

func TestSize_DegenerateStop(t *testing.T) {
	s := newTestSizer(t)

	_, err := s.Size(context.Background(), 100, 100, 1_000_000, 1.0)
	assert.ErrorIs(t, err, ports.ErrDegenerateStop)
}

func TestSize_NoMarginAtAll(t *testing.T) {
	s := newTestSizer(t)

	// A drained account cannot be scaled down into a position.
	_, err := s.Size(context.Background(), 100, 90, 0, 1.0)
	assert.ErrorIs(t, err, ports.ErrInsufficientMargin)
}

func TestSize_MultiplierAppliedAfterMarginCheck(t *testing.T) {
	s := newTestSizer(t)

	res, err := s.Size(context.Background(), 100, 90, 1_000_000, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 1.25, res.Quantity, 1e-9)
	assert.InDelta(t, 12.5, res.RiskAmount, 1e-9)
}

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero risk", cfg: Config{MaxLossPerTrade: 0, Leverage: 10, MarginUsageFraction: 0.9}},
		{name: "zero leverage", cfg: Config{MaxLossPerTrade: 25, Leverage: 0, MarginUsageFraction: 0.9}},
		{name: "fraction too high", cfg: Config{MaxLossPerTrade: 25, Leverage: 10, MarginUsageFraction: 1.5}},
		{name: "fraction zero", cfg: Config{MaxLossPerTrade: 25, Leverage: 10, MarginUsageFraction: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, noopLogger{})
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}
}
