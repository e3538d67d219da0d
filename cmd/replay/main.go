package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"copytrader/internal/dedup"
	"copytrader/internal/interpreter"
	"copytrader/internal/parser"
	"copytrader/internal/ports"
)

// replay runs archived messages through the parser and interpreter without
// touching the exchange or the database. Messages in the input file are
// separated by lines containing only "---".
func main() {
	var (
		input      = flag.String("input", "", "path to a text file of messages separated by --- lines")
		quoteAsset = flag.String("quote", "USDT", "quote asset appended to parsed symbols")
		policyPath = flag.String("policy", "", "optional YAML policy file for R-value bands")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	policies, err := interpreter.NewPolicyStore(*policyPath, noopLogger{})
	if err != nil {
		log.Fatalf("FATAL: Failed to load policy: %v", err)
	}

	sigParser := parser.New(*quoteAsset)
	interp := interpreter.New(policies)

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("FATAL: Failed to open input: %v", err)
	}
	defer f.Close()

	for i, text := range readMessages(f) {
		fmt.Printf("=== message %d (fingerprint %.12s)\n", i+1, dedup.Fingerprint(text))

		sig, err := sigParser.Parse(text)
		if err == nil {
			fmt.Printf("  SIGNAL %s %s entry=%s", sig.Symbol, sig.Side, string(sig.EntryType))
			if sig.EntryPrice > 0 {
				fmt.Printf("@%g", sig.EntryPrice)
			}
			fmt.Printf(" sl=%g tp1=%g", sig.StopLoss, sig.TakeProfit1)
			if sig.TakeProfit2 > 0 {
				fmt.Printf(" tp2=%g", sig.TakeProfit2)
			}
			fmt.Println()
			continue
		}

		instrs := interp.Interpret(text, *quoteAsset)
		if len(instrs) == 0 {
			fmt.Printf("  IGNORED (%v)\n", err)
			continue
		}
		for _, instr := range instrs {
			target := instr.Symbol
			if instr.AppliesToAll() {
				target = "<all open trades>"
			}
			fmt.Printf("  UPDATE %s target=%s", instr.Type, target)
			if instr.Percent > 0 {
				fmt.Printf(" percent=%g", instr.Percent)
			}
			if instr.RValue > 0 {
				fmt.Printf(" r=%g", instr.RValue)
			}
			if instr.MoveStopToBE {
				fmt.Printf(" move_stop_to_breakeven")
			}
			fmt.Println()
		}
	}
}

func readMessages(f *os.File) []string {
	var (
		msgs []string
		cur  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			msgs = append(msgs, s)
		}
		cur.Reset()
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return msgs
}

// noopLogger satisfies ports.Logger for offline replay runs.
type noopLogger struct{}

var _ ports.Logger = noopLogger{}

func (noopLogger) Debug(_ context.Context, _ string, _ ...map[string]interface{}) {}
func (noopLogger) Info(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Warn(_ context.Context, _ string, _ ...map[string]interface{})  {}
func (noopLogger) Error(_ context.Context, _ error, _ string, _ ...map[string]interface{}) {
}
