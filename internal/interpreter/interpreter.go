package interpreter

import (
	"regexp"
	"strconv"
	"strings"

	"copytrader/internal/domain"
)

// Interpreter turns one raw message into zero or more UpdateInstructions
// addressed at already-open trades. Interpretation is pure; the active
// policy table is read per call so hot reloads take effect immediately.
type Interpreter struct {
	policies *PolicyStore

	// Action R-mentions ("1.2R locked") trigger a partial exit; informational
	// ones ("1.2R running") never do.
	rAction     *regexp.Regexp
	rInfo       *regexp.Regexp
	riskFree    *regexp.Regexp
	bookPartial *regexp.Regexp
	fullClose   *regexp.Regexp
	closingR    *regexp.Regexp
	symbolLine  *regexp.Regexp
	bothAll     *regexp.Regexp
	letCook     *regexp.Regexp
	symbolTag   *regexp.Regexp
	symbolBare  *regexp.Regexp
}

// New creates an update interpreter backed by the given policy store.
func New(policies *PolicyStore) *Interpreter {
	return &Interpreter{
		policies: policies,

		rAction:     regexp.MustCompile(`(?i)([0-9]+\.?[0-9]*)\s*R\s+(locked|done|reached|secured|taken)`),
		rInfo:       regexp.MustCompile(`(?i)([0-9]+\.?[0-9]*)\s*R\s+(?:profit\s+)?running`),
		riskFree:    regexp.MustCompile(`(?i)risk.?free|move.{0,20}?(?:sl|stop.{0,10}?loss).{0,20}?(?:to|at).{0,20}?(?:entry|breakeven)|sl.?(?:to|at).?(?:breakeven|be\b)|moving.{0,20}?stop.{0,20}?to.{0,20}?entry`),
		bookPartial: regexp.MustCompile(`(?i)book\s+([0-9]+)\s*%|take\s+([0-9]+)\s*%|partial.{0,20}?([0-9]+)\s*%`),
		fullClose:   regexp.MustCompile(`(?i)clos(?:e|ing)\s+(?:it\s+)?here|target\s+(?:achieved|hit)|tp\s+hit`),
		closingR:    regexp.MustCompile(`(?i)clos(?:e|ing).{0,40}?(-?[0-9]+\.?[0-9]*)\s*R\s*(loss|gain)`),
		symbolLine:  regexp.MustCompile(`(?i)^\s*(?:👉🏻|👉|•|-)\s*\$?([A-Z]{2,10})\s*[—–-]\s*(.+)$`),
		bothAll:     regexp.MustCompile(`(?i)\b(?:both|all)\s+(?:trades?|positions?)\b`),
		letCook:     regexp.MustCompile(`(?i)let(?:ting)?\s+(?:the\s+)?(?:final\s+)?targets?\s+cook|patience|\bhold\b`),
		symbolTag:   regexp.MustCompile(`(?i)\$([A-Z]{2,10})`),
		symbolBare:  regexp.MustCompile(`([A-Z]{2,10})\s*(?:UPDATE|TRADE|:)`),
	}
}

// Interpret extracts instructions from raw text. An empty result with a nil
// error means the message carries nothing actionable.
func (in *Interpreter) Interpret(text, quoteAsset string) []*domain.UpdateInstruction {
	policy := in.policies.Current()
	letCook := in.letCook.MatchString(text)

	// Multi-target mode: repeated "bullet — symbol — content" lines, each an
	// independent instruction with its own R-mention.
	var out []*domain.UpdateInstruction
	for _, line := range strings.Split(text, "\n") {
		m := in.symbolLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		symbol := strings.ToUpper(m[1]) + "/" + quoteAsset
		if instr := in.interpretContent(m[2], symbol, policy, letCook, text); instr != nil {
			out = append(out, instr)
		}
	}
	if len(out) > 0 {
		return out
	}

	// Generic scope: "both/all trades risk-free" migrates every open trade's
	// stop to breakeven, and never implies a partial exit on its own.
	if in.bothAll.MatchString(text) && in.riskFree.MatchString(text) {
		instr := &domain.UpdateInstruction{
			Type:         domain.UpdateBreakeven,
			MoveStopToBE: true,
			RawText:      text,
		}
		if pct, ok := in.bookedPercent(text); ok && !letCook {
			instr.Type = domain.UpdatePartialExit
			instr.Percent = pct
		}
		return []*domain.UpdateInstruction{instr}
	}

	// Single-target mode: one symbol marker plus an action phrase anywhere.
	symbol := in.findSymbol(text)
	if symbol == "" {
		return nil
	}
	if instr := in.interpretContent(text, symbol+"/"+quoteAsset, policy, letCook, text); instr != nil {
		return []*domain.UpdateInstruction{instr}
	}
	return nil
}

// interpretContent determines the action for one target from its content.
// Precedence: action R-mention, explicit percentage booking, risk-free
// phrasing, explicit close phrasing.
func (in *Interpreter) interpretContent(content, symbol string, policy Policy, letCook bool, raw string) *domain.UpdateInstruction {
	base := domain.UpdateInstruction{Symbol: symbol, RawText: raw}

	// Informational R-mentions ("2R running") win over action verbs that may
	// appear elsewhere in the same content; the R handling is skipped and
	// other phrasing still gets a chance below.
	if m := in.rAction.FindStringSubmatch(content); m != nil && !in.rInfo.MatchString(content) {
		r, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if band, ok := policy.Lookup(r); ok {
				instr := base
				instr.RValue = r
				instr.MoveStopToBE = band.MoveStopToBreakeven
				if letCook || band.PartialPercent <= 0 {
					// "Let targets cook" suppresses the inferred partial but
					// keeps the stop migration.
					if !band.MoveStopToBreakeven {
						return nil
					}
					instr.Type = domain.UpdateBreakeven
					return &instr
				}
				instr.Type = domain.UpdatePartialExit
				instr.Percent = band.PartialPercent
				return &instr
			}
		}
	}

	if pct, ok := in.bookedPercent(content); ok {
		instr := base
		if pct >= 100 {
			instr.Type = domain.UpdateFullClose
			return &instr
		}
		instr.Type = domain.UpdatePartialExit
		instr.Percent = pct
		instr.MoveStopToBE = in.riskFree.MatchString(content)
		return &instr
	}

	if in.riskFree.MatchString(content) {
		instr := base
		instr.Type = domain.UpdateBreakeven
		instr.MoveStopToBE = true
		return &instr
	}

	if m := in.closingR.FindStringSubmatch(content); m != nil {
		instr := base
		instr.Type = domain.UpdateFullClose
		instr.RValue, _ = strconv.ParseFloat(m[1], 64)
		return &instr
	}
	if in.fullClose.MatchString(content) {
		instr := base
		instr.Type = domain.UpdateFullClose
		if m := in.rAction.FindStringSubmatch(content); m != nil {
			instr.RValue, _ = strconv.ParseFloat(m[1], 64)
		}
		return &instr
	}

	// Informational R-mentions and everything else: nothing actionable.
	return nil
}

// bookedPercent extracts an explicit percentage-booking mention.
func (in *Interpreter) bookedPercent(text string) (float64, bool) {
	m := in.bookPartial.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		pct, err := strconv.ParseFloat(g, 64)
		if err == nil && pct > 0 {
			return pct, true
		}
	}
	return 0, false
}

// findSymbol locates the single target symbol of a non-bulleted update.
func (in *Interpreter) findSymbol(text string) string {
	if m := in.symbolTag.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := in.symbolBare.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}
