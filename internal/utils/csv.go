package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"copytrader/internal/domain"
)

// WriteTradesToCSV exports closed-trade ledger rows for offline review.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "symbol", "side", "entry_time", "entry_price", "original_qty",
		"exit_time", "exit_price", "partial_exits", "realized_pnl", "close_reason", "notes"})

	for _, t := range trades {
		exitTime := ""
		if !t.ExitTime.IsZero() {
			exitTime = t.ExitTime.Format(time.RFC3339)
		}
		writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			string(t.Side),
			t.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.OriginalQuantity, 'f', -1, 64),
			exitTime,
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.Itoa(t.PartialExitsDone),
			strconv.FormatFloat(t.PartialPNL, 'f', -1, 64),
			string(t.CloseReason),
			t.Notes,
		})
	}
	return writer.Error()
}
