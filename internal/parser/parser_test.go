package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

func TestParse_MarketEntry(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("$BTC Buying Setup\nEntry: CMP\nTP: 114786\nSL: 111468")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, domain.Long, sig.Side)
	assert.Equal(t, domain.EntryMarket, sig.EntryType)
	assert.Zero(t, sig.EntryPrice)
	assert.Equal(t, 114786.0, sig.TakeProfit1)
	assert.Zero(t, sig.TakeProfit2)
	assert.Equal(t, 111468.0, sig.StopLoss)
}

func TestParse_LimitEntryDownTo(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("$ETH Buying Setup\nEntry: CMP down to 2780\nTP: 3100\nSL: 2600")
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT", sig.Symbol)
	assert.Equal(t, domain.EntryLimit, sig.EntryType)
	// The order rests a small buffer above the stated target.
	assert.InDelta(t, 2780*1.0063, sig.EntryPrice, 1e-9)
	assert.Equal(t, 3100.0, sig.TakeProfit1)
	assert.Equal(t, 2600.0, sig.StopLoss)
}

func TestParse_LimitEntryTillConnector(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("$SEI Spot/Swing Buying Setup\nEntry: CMP till 0.41\nTP: 0.43\nSL: 0.26")
	require.NoError(t, err)

	assert.Equal(t, "SEI/USDT", sig.Symbol)
	assert.Equal(t, domain.EntryLimit, sig.EntryType)
	assert.InDelta(t, 0.41*1.0063, sig.EntryPrice, 1e-9)
	assert.Equal(t, 0.43, sig.TakeProfit1)
	assert.Equal(t, 0.26, sig.StopLoss)
}

func TestParse_ExplicitLimitEntry(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("$SOL Buying Setup\nEntry: 150.5 (a bit above)\nTP1: 160\nTP2: 175\nSL: 140\nRR: 2")
	require.NoError(t, err)

	assert.Equal(t, domain.EntryLimit, sig.EntryType)
	assert.Equal(t, 150.5, sig.EntryPrice)
	assert.Equal(t, "a bit above", sig.EntryHint)
	assert.Equal(t, 160.0, sig.TakeProfit1)
	assert.Equal(t, 175.0, sig.TakeProfit2)
	assert.Equal(t, 140.0, sig.StopLoss)
	assert.Equal(t, 2.0, sig.RiskReward)
}

func TestParse_MultiplierTarget(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("$INJ Buying Setup\nEntry: 20\nTP: 2x\nSL: 18")
	require.NoError(t, err)

	// "2x" resolves against the entry price.
	assert.Equal(t, 40.0, sig.TakeProfit1)
	assert.Equal(t, 20.0, sig.EntryPrice)
}

func TestParse_SymbolWithoutDollarMarker(t *testing.T) {
	p := New("USDT")
	sig, err := p.Parse("BTC Buying Setup\nEntry: CMP\nTarget: 114786\nInvalidation: 111468")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, 114786.0, sig.TakeProfit1)
	assert.Equal(t, 111468.0, sig.StopLoss)
}

func TestParse_NotASignal(t *testing.T) {
	p := New("USDT")

	tests := []struct {
		name string
		text string
	}{
		{name: "plain chatter", text: "ETH looking strong today"},
		{name: "update message", text: "$BTC update: 1.5R locked, risk free now"},
		{name: "empty", text: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.text)
			assert.ErrorIs(t, err, ports.ErrNotSignal)
		})
	}
}

func TestParse_MissingMandatoryFields(t *testing.T) {
	p := New("USDT")

	tests := []struct {
		name string
		text string
	}{
		{name: "no stop-loss", text: "$BTC Buying Setup\nEntry: CMP\nTP: 114786"},
		{name: "no take-profit", text: "$BTC Buying Setup\nEntry: CMP\nSL: 111468"},
		{name: "entry only", text: "$BTC Buying Setup\nEntry: CMP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.text)
			assert.ErrorIs(t, err, ports.ErrInvalidSignal)
		})
	}
}
