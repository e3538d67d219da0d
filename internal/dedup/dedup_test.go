package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

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

type markerKey struct {
	kind        ports.MarkerKind
	fingerprint string
	symbol      string
}

type mockMarkerRepo struct {
	mu      sync.Mutex
	markers map[markerKey]time.Time
}

func newMockMarkerRepo() *mockMarkerRepo {
	return &mockMarkerRepo{markers: make(map[markerKey]time.Time)}
}

func (m *mockMarkerRepo) IsProcessed(_ context.Context, kind ports.MarkerKind, fingerprint, symbol string, ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.markers {
		if k.kind != kind {
			continue
		}
		if k.fingerprint == fingerprint {
			return true, nil
		}
		if symbol != "" && k.symbol == symbol && v.Equal(ts) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockMarkerRepo) MarkProcessed(_ context.Context, kind ports.MarkerKind, fingerprint, symbol, _ string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markerKey{kind: kind, fingerprint: fingerprint, symbol: symbol}
	if _, ok := m.markers[key]; ok {
		return ports.ErrDuplicateEntry
	}
	m.markers[key] = ts
	return nil
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("$BTC Buying Setup Entry: CMP TP: 114786 SL: 111468")
	b := Fingerprint("$BTC Buying Setup Entry: CMP TP: 114786 SL: 111468")
	c := Fingerprint("$BTC Buying Setup Entry: CMP TP: 114786 SL: 111469")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGate_SeenAfterMark(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(newMockMarkerRepo(), noopLogger{})
	ts := time.Now()
	fp := Fingerprint("some message")

	seen, err := gate.Seen(ctx, ports.MarkerSignal, fp, "BTC/USDT", ts)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, gate.Mark(ctx, ports.MarkerSignal, fp, "BTC/USDT", "opened", ts))

	seen, err = gate.Seen(ctx, ports.MarkerSignal, fp, "BTC/USDT", ts)
	require.NoError(t, err)
	assert.True(t, seen)

	// The update pipeline keeps its own markers.
	seen, err = gate.Seen(ctx, ports.MarkerUpdate, fp, "BTC/USDT", ts)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGate_RedundantSymbolTimestampCheck(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(newMockMarkerRepo(), noopLogger{})
	ts := time.Now()

	require.NoError(t, gate.Mark(ctx, ports.MarkerSignal, Fingerprint("original text"), "BTC/USDT", "opened", ts))

	// Same symbol and timestamp with a different fingerprint (edited
	// re-delivery) still counts as seen.
	seen, err := gate.Seen(ctx, ports.MarkerSignal, Fingerprint("edited text"), "BTC/USDT", ts)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestGate_ConcurrentMarkIsDuplicate(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(newMockMarkerRepo(), noopLogger{})
	ts := time.Now()
	fp := Fingerprint("raced message")

	require.NoError(t, gate.Mark(ctx, ports.MarkerSignal, fp, "BTC/USDT", "opened", ts))
	err := gate.Mark(ctx, ports.MarkerSignal, fp, "BTC/USDT", "opened", ts)
	assert.ErrorIs(t, err, ports.ErrDuplicate)
}
