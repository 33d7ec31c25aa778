package obs

import (
	"log/slog"
	"os"
)

// NewLogger builds the shared structured logger. Format "text" is meant
// for local development, everything else gets JSON.
func NewLogger(format string) *slog.Logger {
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
