package enrichment

import (
	"context"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

// Noop is the enrichment client used when no collaborator is configured.
// Every signal gets the default advice and proceeds at full size.
type Noop struct{}

// NewNoop creates a no-op enrichment client.
func NewNoop() *Noop { return &Noop{} }

// Analyze returns the default advice unconditionally.
func (Noop) Analyze(_ context.Context, _ *domain.Signal) (ports.Advice, error) {
	return ports.DefaultAdvice(), nil
}
