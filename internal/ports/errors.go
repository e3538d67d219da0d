package ports

import "errors"

// Standard application-level errors.
// Adapters and core packages wrap underlying errors with these sentinels.
var (
	// General
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Parsing / validation
	ErrNotSignal          = errors.New("message is not a trading signal")
	ErrInvalidSignal      = errors.New("signal is missing mandatory fields")
	ErrDegenerateStop     = errors.New("stop-loss equals entry price")
	ErrInsufficientMargin = errors.New("insufficient margin for requested size")

	// Deduplication / lifecycle
	ErrDuplicate   = errors.New("message fingerprint already processed")
	ErrCooldown    = errors.New("symbol is in entry cooldown")
	ErrTradeClosed = errors.New("trade is already closed")

	// Exchange
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Database
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
