package logging

import (
	"log/slog"
	"os"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	)
	slog.SetDefault(logger)
}

// Ledger returns the logger used for the money-movement audit trail
// (deposits, withdrawals, refunds, escalations). Kept separate so the
// stream can be filtered or shipped independently of service noise.
func Ledger() *slog.Logger {
	return slog.Default().With("log", "ledger")
}
