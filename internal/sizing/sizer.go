package sizing

import (
	"context"
	"fmt"
	"math"

	"copytrader/internal/ports"
)

// Config holds the fixed-risk sizing parameters.
type Config struct {
	MaxLossPerTrade     float64 // Fiat amount lost if the stop is hit at full size
	Leverage            int     // Leverage applied to every trade
	MarginUsageFraction float64 // Fraction of free margin usable when scaling down
}

// Result is the outcome of sizing one entry.
type Result struct {
	Quantity       float64 // Order quantity in base units
	Leverage       int     // Effective leverage
	Notional       float64 // Position value at entry
	MarginRequired float64 // Margin consumed at the effective leverage
	RiskAmount     float64 // Actual fiat at risk; below MaxLossPerTrade after a scale-down
	ScaledDown     bool    // Whether the margin constraint reduced the size
}

// Sizer computes order quantity from fixed fiat risk and stop distance.
type Sizer struct {
	cfg    Config
	logger ports.Logger
}

// New creates a position sizer.
func New(cfg Config, logger ports.Logger) (*Sizer, error) {
	if cfg.MaxLossPerTrade <= 0 {
		return nil, fmt.Errorf("%w: MaxLossPerTrade must be positive", ports.ErrConfigurationError)
	}
	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("%w: Leverage must be positive", ports.ErrConfigurationError)
	}
	if cfg.MarginUsageFraction <= 0 || cfg.MarginUsageFraction > 1.0 {
		return nil, fmt.Errorf("%w: MarginUsageFraction must be within (0.0, 1.0]", ports.ErrConfigurationError)
	}
	return &Sizer{cfg: cfg, logger: logger}, nil
}

// Size computes the order quantity for an entry at entryPrice with the given
// stop. availableMargin is the free balance in the quote asset; multiplier is
// the enrichment collaborator's size modifier (1.0 when absent) and is
// applied after the margin check.
func (s *Sizer) Size(ctx context.Context, entryPrice, stopLoss, availableMargin, multiplier float64) (*Result, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive", ports.ErrInvalidRequest)
	}
	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return nil, ports.ErrDegenerateStop
	}

	leverage := float64(s.cfg.Leverage)
	quantity := s.cfg.MaxLossPerTrade / riskPerUnit
	notional := quantity * entryPrice
	marginRequired := notional / leverage
	riskAmount := s.cfg.MaxLossPerTrade
	scaledDown := false

	// Margin-constrained scale-down: size to what the account can carry and
	// report the reduced risk instead of failing.
	if marginRequired > availableMargin*s.cfg.MarginUsageFraction {
		affordable := availableMargin * s.cfg.MarginUsageFraction
		if affordable <= 0 {
			return nil, fmt.Errorf("%w: available margin %.2f cannot carry any position", ports.ErrInsufficientMargin, availableMargin)
		}
		notional = affordable * leverage
		quantity = notional / entryPrice
		marginRequired = affordable
		riskAmount = quantity * riskPerUnit
		scaledDown = true
		s.logger.Warn(ctx, "Insufficient margin, scaling position down", map[string]interface{}{
			"requestedRisk": s.cfg.MaxLossPerTrade,
			"actualRisk":    riskAmount,
			"available":     availableMargin,
		})
	}

	if multiplier > 0 && multiplier != 1.0 {
		quantity *= multiplier
		riskAmount *= multiplier
		notional = quantity * entryPrice
		marginRequired = notional / leverage
	}

	return &Result{
		Quantity:       quantity,
		Leverage:       s.cfg.Leverage,
		Notional:       notional,
		MarginRequired: marginRequired,
		RiskAmount:     riskAmount,
		ScaledDown:     scaledDown,
	}, nil
}
