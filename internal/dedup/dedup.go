package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"copytrader/internal/ports"
)

// Fingerprint computes the stable content hash used to deduplicate messages.
// The same raw text always yields the same fingerprint, independent of
// delivery metadata.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Gate rejects re-processing of messages already recorded in the ledger.
// The underlying marker store provides the check-then-insert atomicity;
// the gate only adds fingerprinting and error translation.
type Gate struct {
	markers ports.MarkerRepository
	logger  ports.Logger
}

// NewGate creates a deduplication gate over the given marker store.
func NewGate(markers ports.MarkerRepository, logger ports.Logger) *Gate {
	return &Gate{markers: markers, logger: logger}
}

// Seen reports whether the fingerprint, or the redundant (symbol, timestamp)
// pair, has already been processed for the given pipeline.
func (g *Gate) Seen(ctx context.Context, kind ports.MarkerKind, fingerprint, symbol string, ts time.Time) (bool, error) {
	seen, err := g.markers.IsProcessed(ctx, kind, fingerprint, symbol, ts)
	if err != nil {
		return false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return seen, nil
}

// Mark records the fingerprint as processed. Returns ports.ErrDuplicate when
// a concurrent poller won the race for the same message, so the caller can
// treat the outcome as a clean no-op.
func (g *Gate) Mark(ctx context.Context, kind ports.MarkerKind, fingerprint, symbol, action string, ts time.Time) error {
	err := g.markers.MarkProcessed(ctx, kind, fingerprint, symbol, action, ts)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			g.logger.Debug(ctx, "Marker already recorded by concurrent writer", map[string]interface{}{
				"kind": string(kind), "symbol": symbol,
			})
			return ports.ErrDuplicate
		}
		return fmt.Errorf("failed to record processed marker: %w", err)
	}
	return nil
}
