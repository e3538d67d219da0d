package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/internal/domain"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	store, err := NewPolicyStore("", nil)
	require.NoError(t, err)
	return New(store)
}

func TestInterpret_ActionRMention(t *testing.T) {
	in := newTestInterpreter(t)

	tests := []struct {
		name       string
		text       string
		wantPct    float64
		wantBE     bool
		wantRValue float64
	}{
		{name: "first band locked", text: "$BTC update: 1.5R locked", wantPct: 40, wantBE: true, wantRValue: 1.5},
		{name: "first band done", text: "$ETH trade 1R done already", wantPct: 40, wantBE: true, wantRValue: 1},
		{name: "second band secured", text: "$SOL update: 2.5R secured", wantPct: 30, wantBE: false, wantRValue: 2.5},
		{name: "second band reached", text: "$INJ 3R reached", wantPct: 30, wantBE: false, wantRValue: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs := in.Interpret(tt.text, "USDT")
			require.Len(t, instrs, 1)
			instr := instrs[0]
			assert.Equal(t, domain.UpdatePartialExit, instr.Type)
			assert.Equal(t, tt.wantPct, instr.Percent)
			assert.Equal(t, tt.wantBE, instr.MoveStopToBE)
			assert.Equal(t, tt.wantRValue, instr.RValue)
			assert.False(t, instr.AppliesToAll())
		})
	}
}

func TestInterpret_InformationalRMentionIsIgnored(t *testing.T) {
	in := newTestInterpreter(t)

	assert.Empty(t, in.Interpret("$BTC 1.5R running, looking great", "USDT"))
	assert.Empty(t, in.Interpret("$ETH 2R profit running", "USDT"))

	// A running mention wins even when an action verb shows up elsewhere in
	// the same message.
	assert.Empty(t, in.Interpret("$SOL 2R running after 1R locked earlier", "USDT"))
}

func TestInterpret_ExplicitBooking(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("$SOL trade: book 50% at this level", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdatePartialExit, instrs[0].Type)
	assert.Equal(t, "SOL/USDT", instrs[0].Symbol)
	assert.Equal(t, 50.0, instrs[0].Percent)
	assert.False(t, instrs[0].MoveStopToBE)
}

func TestInterpret_BookingWithRiskFree(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("$SOL book 30% and move SL to entry", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdatePartialExit, instrs[0].Type)
	assert.Equal(t, 30.0, instrs[0].Percent)
	assert.True(t, instrs[0].MoveStopToBE)
}

func TestInterpret_RiskFreeOnly(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("$ETH SL to breakeven now", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdateBreakeven, instrs[0].Type)
	assert.Equal(t, "ETH/USDT", instrs[0].Symbol)
	assert.True(t, instrs[0].MoveStopToBE)
}

func TestInterpret_AllTradesRiskFree(t *testing.T) {
	in := newTestInterpreter(t)

	// A portfolio-wide risk-free call moves every stop to breakeven and
	// never implies a partial exit on its own.
	instrs := in.Interpret("Both trades risk free. Letting the targets cook 🔥", "USDT")
	require.Len(t, instrs, 1)
	instr := instrs[0]
	assert.Equal(t, domain.UpdateBreakeven, instr.Type)
	assert.True(t, instr.AppliesToAll())
	assert.True(t, instr.MoveStopToBE)
	assert.Zero(t, instr.Percent)
}

func TestInterpret_AllTradesWithExplicitBooking(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("All positions are risk free, book 30% everywhere", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdatePartialExit, instrs[0].Type)
	assert.True(t, instrs[0].AppliesToAll())
	assert.Equal(t, 30.0, instrs[0].Percent)
	assert.True(t, instrs[0].MoveStopToBE)
}

func TestInterpret_LetCookSuppressesInferredPartial(t *testing.T) {
	in := newTestInterpreter(t)

	// The stop migration from the band survives; only the partial is
	// suppressed.
	instrs := in.Interpret("$BTC 1.2R locked, let the targets cook", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdateBreakeven, instrs[0].Type)
	assert.True(t, instrs[0].MoveStopToBE)

	// A band with no stop move leaves nothing to do.
	assert.Empty(t, in.Interpret("$BTC 2.5R locked, let the targets cook", "USDT"))
}

func TestInterpret_MultiTargetBullets(t *testing.T) {
	in := newTestInterpreter(t)

	text := "Update on open trades:\n👉 $BTC — 1.2R locked\n👉 $ETH — 2.1R secured"
	instrs := in.Interpret(text, "USDT")
	require.Len(t, instrs, 2)

	assert.Equal(t, "BTC/USDT", instrs[0].Symbol)
	assert.Equal(t, 40.0, instrs[0].Percent)
	assert.True(t, instrs[0].MoveStopToBE)

	assert.Equal(t, "ETH/USDT", instrs[1].Symbol)
	assert.Equal(t, 30.0, instrs[1].Percent)
	assert.False(t, instrs[1].MoveStopToBE)
}

func TestInterpret_FullClose(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("$BTC closing it here, market turned", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdateFullClose, instrs[0].Type)

	instrs = in.Interpret("$DOGE closing at -0.8R loss", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdateFullClose, instrs[0].Type)
	assert.Equal(t, -0.8, instrs[0].RValue)
}

func TestInterpret_BookEverythingIsFullClose(t *testing.T) {
	in := newTestInterpreter(t)

	instrs := in.Interpret("$BTC book 100% now", "USDT")
	require.Len(t, instrs, 1)
	assert.Equal(t, domain.UpdateFullClose, instrs[0].Type)
}

func TestInterpret_NothingActionable(t *testing.T) {
	in := newTestInterpreter(t)

	assert.Empty(t, in.Interpret("gm everyone, great day for the market", "USDT"))
	assert.Empty(t, in.Interpret("$BTC chart looks bullish", "USDT"))
}
