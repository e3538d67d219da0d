package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

// Repository implements the ports.MessageRepository, ports.TradeRepository
// and ports.MarkerRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/copytrader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		ts TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		original_qty REAL NOT NULL,
		remaining_qty REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit1 REAL NOT NULL,
		take_profit2 REAL DEFAULT 0,
		leverage REAL NOT NULL,
		partial_exits_done INTEGER NOT NULL DEFAULT 0,
		partial_pnl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		notes TEXT DEFAULT '',
		fingerprint TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS partial_exits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl REAL NOT NULL,
		tp_level INTEGER NOT NULL DEFAULT 0,
		new_stop_loss REAL NOT NULL DEFAULT 0,
		notes TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processed_markers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		ts TIMESTAMP NOT NULL,
		UNIQUE (kind, fingerprint, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages (ts);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_partial_exits_trade ON partial_exits (trade_id);
	CREATE INDEX IF NOT EXISTS idx_markers_symbol_ts ON processed_markers (kind, symbol, ts);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- MessageRepository Implementation ---

// StoreMessage appends a raw message to the archive and returns its ID.
func (r *Repository) StoreMessage(ctx context.Context, msg *domain.Message) (int64, error) {
	const query = `INSERT INTO messages (text, ts) VALUES (?, ?)`
	result, err := r.db.ExecContext(ctx, query, msg.Text, msg.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for message: %w", err)
	}
	msg.ID = id
	return id, nil
}

// UnprocessedSince retrieves archived messages newer than the cutoff, most
// recent first.
func (r *Repository) UnprocessedSince(ctx context.Context, cutoff time.Time) ([]*domain.Message, error) {
	const query = `SELECT id, text, ts FROM messages WHERE ts > ? ORDER BY ts DESC`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages since %s: %w", cutoff, err)
	}
	defer rows.Close()

	msgs := make([]*domain.Message, 0)
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return msgs, nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, entry_price, entry_time, original_qty, remaining_qty,
	                    stop_loss, take_profit1, take_profit2, leverage, partial_exits_done,
	                    partial_pnl, status, notes, fingerprint)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.Side, trade.EntryPrice, trade.EntryTime,
		trade.OriginalQuantity, trade.RemainingQty, trade.StopLoss,
		trade.TakeProfit1, trade.TakeProfit2, trade.Leverage,
		trade.PartialExitsDone, trade.PartialPNL, trade.Status,
		trade.Notes, trade.Fingerprint)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol})
	return id, nil
}

// UpdateTrade modifies an existing trade based on its ID.
func (r *Repository) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET remaining_qty = ?, stop_loss = ?, take_profit1 = ?, take_profit2 = ?,
	    partial_exits_done = ?, partial_pnl = ?, status = ?, exit_price = ?,
	    exit_time = ?, close_reason = ?, notes = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	if !trade.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: trade.ExitTime, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.RemainingQty, trade.StopLoss, trade.TakeProfit1, trade.TakeProfit2,
		trade.PartialExitsDone, trade.PartialPNL, trade.Status, trade.ExitPrice,
		exitTime, trade.CloseReason, trade.Notes,
		trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w", trade.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update trade ID %d: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "status": trade.Status})
	return nil
}

// FindTradeByID retrieves a trade by its unique ID.
func (r *Repository) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, selectTrade+` WHERE id = ?`, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return trade, nil
}

// FindOpenTrades retrieves all open trades, oldest entry first.
func (r *Repository) FindOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	return r.queryTrades(ctx, selectTrade+` WHERE status = ? ORDER BY entry_time ASC`, domain.StatusOpen)
}

// FindOpenBySymbol retrieves all open trades for a symbol.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	return r.queryTrades(ctx, selectTrade+` WHERE symbol = ? AND status = ? ORDER BY entry_time ASC`, symbol, domain.StatusOpen)
}

// FindClosedTrades retrieves closed trades, most recent exit first, up to a limit.
func (r *Repository) FindClosedTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return r.queryTrades(ctx, selectTrade+` WHERE status = ? ORDER BY exit_time DESC LIMIT ?`, domain.StatusClosed, limit)
}

// CountOpenedSince counts trades on a symbol entered after the cutoff.
func (r *Repository) CountOpenedSince(ctx context.Context, symbol string, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND entry_time > ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent trades for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// CreatePartialExit saves a partial-exit audit record and returns its ID.
func (r *Repository) CreatePartialExit(ctx context.Context, pe *domain.PartialExit) (int64, error) {
	const query = `
	INSERT INTO partial_exits (trade_id, exit_price, quantity, pnl, tp_level, new_stop_loss, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pe.TradeID, pe.ExitPrice, pe.Quantity, pe.PNL, pe.TPLevel, pe.NewStopLoss, pe.Notes, pe.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert partial exit for trade %d: %w", pe.TradeID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for partial exit: %w", err)
	}
	pe.ID = id
	return id, nil
}

// FindPartialExits retrieves the partial-exit audit trail for a trade.
func (r *Repository) FindPartialExits(ctx context.Context, tradeID int64) ([]*domain.PartialExit, error) {
	const query = `
	SELECT id, trade_id, exit_price, quantity, pnl, tp_level, new_stop_loss, notes, created_at
	FROM partial_exits WHERE trade_id = ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query partial exits for trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	exits := make([]*domain.PartialExit, 0)
	for rows.Next() {
		pe := &domain.PartialExit{}
		if err := rows.Scan(&pe.ID, &pe.TradeID, &pe.ExitPrice, &pe.Quantity, &pe.PNL,
			&pe.TPLevel, &pe.NewStopLoss, &pe.Notes, &pe.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan partial exit row: %w", err)
		}
		exits = append(exits, pe)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partial exit rows: %w", err)
	}
	return exits, nil
}

// GetTotalProfit calculates the sum of realized P&L for all closed trades.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(partial_pnl), 0) FROM trades WHERE status = ?`
	var totalProfit float64
	err := r.db.QueryRowContext(ctx, query, domain.StatusClosed).Scan(&totalProfit)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return totalProfit, nil
}

// --- MarkerRepository Implementation ---

// IsProcessed reports whether a fingerprint, or the redundant
// (symbol, timestamp) pair, has already been recorded for the given kind.
func (r *Repository) IsProcessed(ctx context.Context, kind ports.MarkerKind, fingerprint, symbol string, ts time.Time) (bool, error) {
	const query = `
	SELECT EXISTS (
		SELECT 1 FROM processed_markers
		WHERE kind = ? AND (fingerprint = ? OR (symbol = ? AND symbol != '' AND ts = ?))
	)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, kind, fingerprint, symbol, ts).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return exists, nil
}

// MarkProcessed records a fingerprint. The unique index makes concurrent
// markers race safely: the loser gets ports.ErrDuplicateEntry.
func (r *Repository) MarkProcessed(ctx context.Context, kind ports.MarkerKind, fingerprint, symbol, action string, ts time.Time) error {
	const query = `INSERT INTO processed_markers (kind, fingerprint, symbol, action, ts) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, kind, fingerprint, symbol, action, ts)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ports.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert processed marker: %w", err)
	}
	return nil
}

// --- Helper Scan Functions ---

const selectTrade = `
	SELECT id, symbol, side, entry_price, entry_time, original_qty, remaining_qty,
	       stop_loss, take_profit1, take_profit2, leverage, partial_exits_done,
	       partial_pnl, status, COALESCE(exit_price, 0), exit_time,
	       COALESCE(close_reason, ''), notes, fingerprint
	FROM trades`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, status, closeReason string
	var exitTime sql.NullTime
	err := s.Scan(
		&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.EntryTime,
		&t.OriginalQuantity, &t.RemainingQty, &t.StopLoss,
		&t.TakeProfit1, &t.TakeProfit2, &t.Leverage, &t.PartialExitsDone,
		&t.PartialPNL, &status, &t.ExitPrice, &exitTime, &closeReason,
		&t.Notes, &t.Fingerprint)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	if closeReason != "" {
		t.CloseReason = domain.CloseReason(closeReason)
	} else if t.Status == domain.StatusClosed {
		t.CloseReason = domain.CloseReasonUnknown
	}
	return t, nil
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}
