package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"copytrader/config"
	"copytrader/internal/adapters/logger"
	"copytrader/internal/adapters/sqlite"
	"copytrader/internal/utils"
)

// report prints the closed-trade ledger and optionally exports it to CSV.
func main() {
	var (
		limit  = flag.Int("limit", 50, "maximum number of closed trades to show")
		csvOut = flag.String("csv", "", "optional path for a CSV export")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.New(logger.ParseLevel(cfg.LogLevel))
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	closed, err := repo.FindClosedTrades(ctx, *limit)
	if err != nil {
		log.Fatalf("FATAL: Failed to load closed trades: %v", err)
	}
	total, err := repo.GetTotalProfit(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to compute total profit: %v", err)
	}

	fmt.Printf("%-5s %-12s %-6s %-12s %-12s %-8s %-10s %s\n",
		"ID", "SYMBOL", "SIDE", "ENTRY", "EXIT", "PARTIALS", "PNL", "REASON")
	for _, t := range closed {
		fmt.Printf("%-5d %-12s %-6s %-12g %-12g %-8d %-10.2f %s\n",
			t.ID, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice,
			t.PartialExitsDone, t.PartialPNL, t.CloseReason)
	}
	fmt.Printf("\nTotal realized P&L (%s): %.2f\n", cfg.QuoteAsset, total)

	if *csvOut != "" {
		if err := utils.WriteTradesToCSV(closed, *csvOut); err != nil {
			log.Fatalf("FATAL: Failed to write CSV: %v", err)
		}
		fmt.Printf("Exported %d trades to %s\n", len(closed), *csvOut)
	}
}
