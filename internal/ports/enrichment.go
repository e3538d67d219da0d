package ports

import (
	"context"

	"copytrader/internal/domain"
)

// Confidence is the enrichment collaborator's quality grade for a signal.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Recommendation is the enrichment collaborator's execution verdict.
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendAvoid   Recommendation = "avoid"
)

// Advice is the enrichment result applied on top of a parsed signal.
type Advice struct {
	Confidence     Confidence
	Recommendation Recommendation
	SizeMultiplier float64 // Applied multiplicatively to quantity and realized risk
}

// DefaultAdvice is used when the enrichment collaborator is absent or
// skipped (market-entry fast path): proceed at full size.
func DefaultAdvice() Advice {
	return Advice{
		Confidence:     ConfidenceHigh,
		Recommendation: RecommendProceed,
		SizeMultiplier: 1.0,
	}
}

// EnrichmentClient is the optional signal-quality collaborator. The core
// must function correctly without it.
type EnrichmentClient interface {
	// Analyze grades a signal against its raw text. Implementations should
	// degrade to DefaultAdvice on transport failure rather than block trading.
	Analyze(ctx context.Context, signal *domain.Signal) (Advice, error)
}
