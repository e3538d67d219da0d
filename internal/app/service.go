package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"copytrader/config"
	"copytrader/internal/dedup"
	"copytrader/internal/domain"
	"copytrader/internal/interpreter"
	"copytrader/internal/lifecycle"
	"copytrader/internal/parser"
	"copytrader/internal/ports"
	"copytrader/internal/sizing"
)

// Service orchestrates the copy-trading pipeline: it polls the message
// archive for new signals and updates, and polls prices to drive open
// trades through their lifecycle.
type Service struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeClient
	messages   ports.MessageRepository
	trades     ports.TradeRepository
	gate       *dedup.Gate
	parser     *parser.Parser
	interp     *interpreter.Interpreter
	policies   *interpreter.PolicyStore
	sizer      *sizing.Sizer
	engine     *lifecycle.Engine
	enrichment ports.EnrichmentClient
}

// NewService creates the application service instance.
func NewService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	messages ports.MessageRepository,
	trades ports.TradeRepository,
	gate *dedup.Gate,
	sigParser *parser.Parser,
	interp *interpreter.Interpreter,
	policies *interpreter.PolicyStore,
	sizer *sizing.Sizer,
	engine *lifecycle.Engine,
	enrichment ports.EnrichmentClient,
) (*Service, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || messages == nil || trades == nil ||
		gate == nil || sigParser == nil || interp == nil || policies == nil ||
		sizer == nil || engine == nil || enrichment == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if cfg.MessagePollInterval <= 0 || cfg.PricePollInterval <= 0 {
		return nil, fmt.Errorf("poll intervals must be positive")
	}

	return &Service{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		messages:   messages,
		trades:     trades,
		gate:       gate,
		parser:     sigParser,
		interp:     interp,
		policies:   policies,
		sizer:      sizer,
		engine:     engine,
		enrichment: enrichment,
	}, nil
}

// Start runs the service until the context is canceled or a shutdown signal
// arrives.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting copy-trading service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange is unreachable at startup")
		return fmt.Errorf("exchange ping failed: %w", err)
	}
	s.logger.Info(ctx, "Exchange connection verified")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.messageLoop(gctx) })
	g.Go(func() error { return s.priceLoop(gctx) })
	g.Go(func() error { return s.policies.Watch(gctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info(ctx, "Service stopped")
	return nil
}

// messageLoop scans the archive on a fixed interval and routes each new
// message to the signal or update pipeline. A failure in one iteration is
// logged and the loop continues.
func (s *Service) messageLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.MessagePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.processMessages(ctx); err != nil {
				s.logger.Error(ctx, err, "Message scan failed, will retry next interval")
			}
		}
	}
}

func (s *Service) processMessages(ctx context.Context) error {
	// Signals tolerate a longer lookback than updates; scan the wider
	// window once and filter per pipeline.
	lookback := s.cfg.SignalLookback
	if s.cfg.UpdateLookback > lookback {
		lookback = s.cfg.UpdateLookback
	}
	msgs, err := s.messages.UnprocessedSince(ctx, time.Now().Add(-lookback))
	if err != nil {
		return fmt.Errorf("failed to read message archive: %w", err)
	}

	updateCutoff := time.Now().Add(-s.cfg.UpdateLookback)
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fp := dedup.Fingerprint(msg.Text)

		sig, err := s.parser.Parse(msg.Text)
		switch {
		case err == nil:
			sig.MessageID = msg.ID
			sig.Timestamp = msg.Timestamp
			sig.Fingerprint = fp
			sig.RawText = msg.Text
			if err := s.handleSignal(ctx, sig); err != nil {
				s.logger.Error(ctx, err, "Failed to handle signal", map[string]interface{}{
					"symbol": sig.Symbol, "messageID": msg.ID,
				})
			}
		case errors.Is(err, ports.ErrInvalidSignal):
			s.logger.Warn(ctx, "Signal rejected, missing mandatory fields", map[string]interface{}{
				"messageID": msg.ID,
			})
		default:
			// Not a signal; try the update pipeline within its own window.
			if msg.Timestamp.Before(updateCutoff) {
				continue
			}
			for _, instr := range s.interp.Interpret(msg.Text, s.cfg.QuoteAsset) {
				instr.MessageID = msg.ID
				instr.Timestamp = msg.Timestamp
				instr.Fingerprint = fp
				if err := s.handleUpdate(ctx, instr); err != nil {
					s.logger.Error(ctx, err, "Failed to handle update", map[string]interface{}{
						"symbol": instr.Symbol, "type": string(instr.Type), "messageID": msg.ID,
					})
				}
			}
		}
	}
	return nil
}

// handleSignal runs one parsed signal through dedup, cooldown, enrichment,
// sizing and entry. Every terminal outcome marks the fingerprint processed
// so the next scan skips the message.
func (s *Service) handleSignal(ctx context.Context, sig *domain.Signal) error {
	seen, err := s.gate.Seen(ctx, ports.MarkerSignal, sig.Fingerprint, sig.Symbol, sig.Timestamp)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	if err := s.checkCooldown(ctx, sig.Symbol); err != nil {
		if !errors.Is(err, ports.ErrCooldown) {
			return err
		}
		s.logger.Info(ctx, "Signal skipped, symbol in entry cooldown", map[string]interface{}{
			"symbol": sig.Symbol,
		})
		return s.mark(ctx, ports.MarkerSignal, sig.Fingerprint, sig.Symbol, "skipped: cooldown", sig.Timestamp)
	}

	advice := ports.DefaultAdvice()
	if sig.EntryType != domain.EntryMarket {
		// Market entries take the fast path; waiting on a collaborator
		// defeats the point of entering at the current price.
		advice, err = s.enrichment.Analyze(ctx, sig)
		if err != nil {
			s.logger.Warn(ctx, "Enrichment unavailable, proceeding with defaults", map[string]interface{}{
				"symbol": sig.Symbol, "error": err.Error(),
			})
			advice = ports.DefaultAdvice()
		}
		if advice.Recommendation == ports.RecommendAvoid {
			s.logger.Info(ctx, "Signal skipped on enrichment advice", map[string]interface{}{
				"symbol": sig.Symbol, "confidence": string(advice.Confidence),
			})
			return s.mark(ctx, ports.MarkerSignal, sig.Fingerprint, sig.Symbol, "skipped: avoid", sig.Timestamp)
		}
	}

	currentPrice, err := s.exchange.GetTickerPrice(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch price for %s: %w", sig.Symbol, err)
	}
	entryPrice := currentPrice
	if sig.EntryType == domain.EntryLimit && sig.EntryPrice > 0 {
		entryPrice = sig.EntryPrice
	}

	margin, err := s.exchange.GetAvailableMargin(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("failed to fetch available margin: %w", err)
	}

	size, err := s.sizer.Size(ctx, entryPrice, sig.StopLoss, margin, advice.SizeMultiplier)
	if err != nil {
		if errors.Is(err, ports.ErrDegenerateStop) {
			s.logger.Warn(ctx, "Signal skipped, stop equals entry", map[string]interface{}{"symbol": sig.Symbol})
			return s.mark(ctx, ports.MarkerSignal, sig.Fingerprint, sig.Symbol, "skipped: degenerate stop", sig.Timestamp)
		}
		return err
	}

	trade, err := s.engine.OpenFromSignal(ctx, sig, size.Quantity, size.Leverage, currentPrice)
	if err != nil {
		// Entry failed on the exchange side; leave the message unmarked so
		// the next scan retries it.
		return err
	}

	s.logger.Info(ctx, "Signal executed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": sig.Symbol, "quantity": size.Quantity,
		"scaledDown": size.ScaledDown, "riskAmount": size.RiskAmount,
	})
	return s.mark(ctx, ports.MarkerSignal, sig.Fingerprint, sig.Symbol, "opened", sig.Timestamp)
}

// checkCooldown returns ports.ErrCooldown when the symbol already opened a
// trade within the cooldown window.
func (s *Service) checkCooldown(ctx context.Context, symbol string) error {
	recent, err := s.trades.CountOpenedSince(ctx, symbol, time.Now().Add(-s.cfg.EntryCooldown))
	if err != nil {
		return err
	}
	if recent > 0 {
		return fmt.Errorf("%w: %s", ports.ErrCooldown, symbol)
	}
	return nil
}

// handleUpdate applies one instruction to its target trades. Instructions
// with an empty symbol apply to every open trade.
func (s *Service) handleUpdate(ctx context.Context, instr *domain.UpdateInstruction) error {
	seen, err := s.gate.Seen(ctx, ports.MarkerUpdate, instr.Fingerprint, instr.Symbol, instr.Timestamp)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	var targets []*domain.Trade
	if instr.AppliesToAll() {
		targets, err = s.trades.FindOpenTrades(ctx)
	} else {
		targets, err = s.trades.FindOpenBySymbol(ctx, instr.Symbol)
	}
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		s.logger.Info(ctx, "Update has no open target", map[string]interface{}{
			"symbol": instr.Symbol, "type": string(instr.Type),
		})
		return s.mark(ctx, ports.MarkerUpdate, instr.Fingerprint, instr.Symbol, "no-target", instr.Timestamp)
	}

	applied := 0
	for _, trade := range targets {
		price, perr := s.exchange.GetTickerPrice(ctx, trade.Symbol)
		if perr != nil {
			s.logger.Error(ctx, perr, "Price fetch failed, update deferred for trade", map[string]interface{}{
				"tradeID": trade.ID, "symbol": trade.Symbol,
			})
			continue
		}
		if aerr := s.engine.ApplyUpdate(ctx, trade, instr, price); aerr != nil {
			if errors.Is(aerr, ports.ErrTradeClosed) {
				continue
			}
			s.logger.Error(ctx, aerr, "Failed to apply update to trade", map[string]interface{}{
				"tradeID": trade.ID, "symbol": trade.Symbol,
			})
			continue
		}
		applied++
	}
	if applied == 0 && len(targets) > 0 {
		// Nothing stuck; leave unmarked so the next scan retries.
		return fmt.Errorf("update applied to none of %d targets", len(targets))
	}
	return s.mark(ctx, ports.MarkerUpdate, instr.Fingerprint, instr.Symbol,
		fmt.Sprintf("applied:%d", applied), instr.Timestamp)
}

// priceLoop drives open trades on every tick. Prices are fetched once per
// symbol per iteration.
func (s *Service) priceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PricePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.checkOpenTrades(ctx); err != nil {
				s.logger.Error(ctx, err, "Price check iteration failed")
			}
		}
	}
}

func (s *Service) checkOpenTrades(ctx context.Context) error {
	open, err := s.trades.FindOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open trades: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	prices := make(map[string]float64)
	heat := 0.0
	for _, trade := range open {
		price, ok := prices[trade.Symbol]
		if !ok {
			price, err = s.exchange.GetTickerPrice(ctx, trade.Symbol)
			if err != nil {
				s.logger.Warn(ctx, "Price fetch failed, skipping symbol this tick", map[string]interface{}{
					"symbol": trade.Symbol, "error": err.Error(),
				})
				continue
			}
			prices[trade.Symbol] = price
		}
		if err := s.engine.CheckPrice(ctx, trade, price); err != nil {
			s.logger.Error(ctx, err, "Lifecycle check failed for trade", map[string]interface{}{
				"tradeID": trade.ID, "symbol": trade.Symbol,
			})
			continue
		}
		heat += trade.OpenRisk()
	}

	s.logger.Debug(ctx, "Price tick processed", map[string]interface{}{
		"openTrades": len(open), "portfolioHeat": heat,
	})
	return nil
}

// Heat reports the total fiat at risk across all open trades.
func (s *Service) Heat(ctx context.Context) (float64, error) {
	open, err := s.trades.FindOpenTrades(ctx)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, trade := range open {
		total += trade.OpenRisk()
	}
	return total, nil
}

func (s *Service) mark(ctx context.Context, kind ports.MarkerKind, fp, symbol, action string, ts time.Time) error {
	if err := s.gate.Mark(ctx, kind, fp, symbol, action, ts); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			// A concurrent scanner won the race; this outcome already stands.
			return nil
		}
		return err
	}
	return nil
}
