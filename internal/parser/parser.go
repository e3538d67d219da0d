package parser

import (
	"regexp"
	"strconv"
	"strings"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

// entryBuffer is the conservative buffer applied above a "down to" limit
// target, so the order rests slightly before the stated level.
const entryBuffer = 0.0063

// Parser turns one raw message into a structured Signal, or classifies it
// as not a signal. Parsing is pure and side-effect-free; message identity
// fields (ID, timestamp, fingerprint) are the caller's concern.
type Parser struct {
	quoteAsset string

	buyingSetup *regexp.Regexp
	symbol      *regexp.Regexp
	entryPrice  *regexp.Regexp
	entryHint   *regexp.Regexp
	entryRange  *regexp.Regexp
	takeProfit  *regexp.Regexp
	stopLoss    *regexp.Regexp
	riskReward  *regexp.Regexp
}

// New creates a signal parser. Symbols are normalized to "SYM/<quoteAsset>".
func New(quoteAsset string) *Parser {
	return &Parser{
		quoteAsset: quoteAsset,

		// The source's new-entry wording is always a "buying setup"; anything
		// without that phrase is not a signal.
		buyingSetup: regexp.MustCompile(`(?i)buying\s+setup`),
		// The leading $ marker is optional ("$BTC" and "BTC" are equivalent).
		symbol:     regexp.MustCompile(`(?i)\$?([A-Z]{2,10})\s*.*(?:Setup|buying)`),
		entryPrice: regexp.MustCompile(`(?i)Entry\s*:\s*\$?([0-9]+\.?[0-9]*|CMP)(?:\s+(?:down\s+to|till)\s+\$?([0-9]+\.?[0-9]*))?`),
		entryHint:  regexp.MustCompile(`(?i)Entry\s*:\s*\$?[0-9]+\.?[0-9]*\s*\(([^)]+)\)`),
		entryRange: regexp.MustCompile(`(?i)Entry\s*:\s*([0-9]+\.?[0-9]*)\s*-\s*([0-9]+\.?[0-9]*)`),
		takeProfit: regexp.MustCompile(`(?i)(?:TP\s*[12]?|Target\s*[12]?)\s*:\s*\$?([0-9]+\.?[0-9]*)(x?)`),
		stopLoss:   regexp.MustCompile(`(?i)(?:SL|Invalidation)\s*:\s*\$?([0-9]+\.?[0-9]*)`),
		riskReward: regexp.MustCompile(`(?i)RR\s*:\s*([0-9]+\.?[0-9]*)`),
	}
}

// Parse extracts a Signal from raw message text. Returns ports.ErrNotSignal
// when the text is not a buying setup, and ports.ErrInvalidSignal when it is
// one but lacks the mandatory stop-loss or take-profit.
func (p *Parser) Parse(text string) (*domain.Signal, error) {
	if !p.buyingSetup.MatchString(text) {
		return nil, ports.ErrNotSignal
	}

	symMatch := p.symbol.FindStringSubmatch(text)
	if symMatch == nil {
		return nil, ports.ErrNotSignal
	}

	sig := &domain.Signal{
		Symbol:    strings.ToUpper(symMatch[1]) + "/" + p.quoteAsset,
		Side:      domain.Long,
		EntryType: domain.EntryMarket,
		RawText:   text,
	}

	if m := p.entryPrice.FindStringSubmatch(text); m != nil {
		entryToken, downTo := m[1], m[2]
		if isMarketToken(entryToken) {
			if downTo != "" {
				// "CMP down to X": rest a limit order a small buffer above the
				// stated target instead of chasing the market.
				target, err := strconv.ParseFloat(downTo, 64)
				if err != nil {
					return nil, ports.ErrNotSignal
				}
				sig.EntryType = domain.EntryLimit
				sig.EntryPrice = target * (1 + entryBuffer)
			}
			// Bare "CMP" stays a market entry.
		} else {
			price, err := strconv.ParseFloat(entryToken, 64)
			if err != nil {
				return nil, ports.ErrNotSignal
			}
			sig.EntryType = domain.EntryLimit
			sig.EntryPrice = price
		}
	}

	if m := p.entryHint.FindStringSubmatch(text); m != nil {
		sig.EntryHint = strings.TrimSpace(m[1])
	}

	if m := p.stopLoss.FindStringSubmatch(text); m != nil {
		sig.StopLoss, _ = strconv.ParseFloat(m[1], 64)
	}

	p.parseTakeProfits(text, sig)

	if m := p.riskReward.FindStringSubmatch(text); m != nil && sig.RiskReward == 0 {
		sig.RiskReward, _ = strconv.ParseFloat(m[1], 64)
	}

	if !sig.IsValid() {
		return nil, ports.ErrInvalidSignal
	}
	return sig, nil
}

// parseTakeProfits fills TakeProfit1/TakeProfit2 from up to two TP tokens.
// A multiplier token ("2x") is resolved against the entry price, falling
// back to the midpoint of a stated entry range when the entry is symbolic.
func (p *Parser) parseTakeProfits(text string, sig *domain.Signal) {
	matches := p.takeProfit.FindAllStringSubmatch(text, 2)
	for i, m := range matches {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if m[2] == "x" || m[2] == "X" {
			value = p.resolveMultiplier(text, sig, value)
		}
		if i == 0 {
			sig.TakeProfit1 = value
		} else {
			sig.TakeProfit2 = value
		}
	}
}

func (p *Parser) resolveMultiplier(text string, sig *domain.Signal, mult float64) float64 {
	if sig.EntryPrice > 0 {
		return sig.EntryPrice * mult
	}
	if m := p.entryRange.FindStringSubmatch(text); m != nil {
		low, errLow := strconv.ParseFloat(m[1], 64)
		high, errHigh := strconv.ParseFloat(m[2], 64)
		if errLow == nil && errHigh == nil {
			mid := (low + high) / 2
			// Use the mid-range as the representative entry going forward.
			sig.EntryType = domain.EntryLimit
			sig.EntryPrice = mid
			sig.RiskReward = mult
			return mid * mult
		}
	}
	// No usable entry to resolve against; keep the raw multiplier value and
	// record it as the stated risk/reward.
	sig.RiskReward = mult
	return mult
}

// isMarketToken reports whether the entry token is the "current market
// price" sentinel rather than a literal price.
func isMarketToken(token string) bool {
	return strings.EqualFold(token, "CMP")
}
